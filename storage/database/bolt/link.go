package boltdb

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/sikhya/portal/core/teaching"
)

type linkRepository struct {
	db *DB
}

var _ teaching.LinkRepository = (*linkRepository)(nil) // interface compliance check

func NewLinkRepository(db *DB) *linkRepository {
	return &linkRepository{db: db}
}

func (repo *linkRepository) Create(ctx context.Context, l teaching.Link) (teaching.Link, error) {
	err := repo.db.update(ctx, func(tx *bbolt.Tx) error {
		links, err := bucket(tx, "links")
		if err != nil {
			return err
		}
		pairs, err := bucket(tx, "linksByPair")
		if err != nil {
			return err
		}

		pair := compositeKey(l.TeacherID, l.StudentID)
		if pairs.Get(pair) != nil {
			return teaching.ErrLinkExists
		}
		seq, err := links.NextSequence()
		if err != nil {
			return errors.Wrap(err, "generating link key")
		}
		l.ID = uuid.New().String()
		key := append(prefixKey(l.TeacherID), itob(seq)...)
		if err = put(links, key, l); err != nil {
			return err
		}
		return pairs.Put(pair, key)
	})
	if err != nil {
		if errors.Cause(err) == teaching.ErrLinkExists {
			return teaching.Link{}, teaching.ErrLinkExists
		}
		return teaching.Link{}, errors.Wrap(err, "inserting link")
	}
	return l, nil
}

func (repo *linkRepository) Exists(ctx context.Context, teacherID, studentID string) (exists bool, err error) {
	err = repo.db.view(ctx, func(tx *bbolt.Tx) error {
		pairs, err := bucket(tx, "linksByPair")
		if err != nil {
			return err
		}
		exists = pairs.Get(compositeKey(teacherID, studentID)) != nil
		return nil
	})
	return exists, err
}

func (repo *linkRepository) ListByTeacher(ctx context.Context, teacherID string) ([]teaching.Link, error) {
	var links []teaching.Link
	err := repo.db.view(ctx, func(tx *bbolt.Tx) error {
		b, err := bucket(tx, "links")
		if err != nil {
			return err
		}
		links, err = listByPrefix[teaching.Link](b, prefixKey(teacherID))
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing links")
	}
	return links, nil
}
