package boltdb

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/progress"
)

type progressRepository struct {
	db *DB
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(db *DB) *progressRepository {
	return &progressRepository{db: db}
}

func (repo *progressRepository) Get(ctx context.Context, userID string, subject core.Subject) (prog progress.Progress, err error) {
	err = repo.db.view(ctx, func(tx *bbolt.Tx) error {
		pairs, err := bucket(tx, "progressByPair")
		if err != nil {
			return err
		}
		data, err := bucket(tx, "progress")
		if err != nil {
			return err
		}
		ref := pairs.Get(compositeKey(userID, string(subject)))
		if ref == nil {
			return progress.ErrNotFound
		}
		var ok bool
		if prog, ok, err = get[progress.Progress](data, ref); err != nil {
			return err
		} else if !ok {
			return progress.ErrNotFound
		}
		return nil
	})
	return prog, err
}

func (repo *progressRepository) listIndexed(ctx context.Context, index string, prefix []byte) ([]progress.Progress, error) {
	var progs []progress.Progress
	err := repo.db.view(ctx, func(tx *bbolt.Tx) error {
		idx, err := bucket(tx, index)
		if err != nil {
			return err
		}
		data, err := bucket(tx, "progress")
		if err != nil {
			return err
		}
		progs, err = resolveIndex[progress.Progress](idx, data, prefix)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing progress")
	}
	return progs, nil
}

func (repo *progressRepository) ListByUser(ctx context.Context, userID string) ([]progress.Progress, error) {
	return repo.listIndexed(ctx, "progressByUser", prefixKey(userID))
}

func (repo *progressRepository) ListBySubject(ctx context.Context, subject core.Subject) ([]progress.Progress, error) {
	return repo.listIndexed(ctx, "progressBySubject", prefixKey(string(subject)))
}

func (repo *progressRepository) Save(ctx context.Context, prog progress.Progress) (progress.Progress, error) {
	err := repo.db.update(ctx, func(tx *bbolt.Tx) error {
		pairs, err := bucket(tx, "progressByPair")
		if err != nil {
			return err
		}
		data, err := bucket(tx, "progress")
		if err != nil {
			return err
		}

		pair := compositeKey(prog.UserID, string(prog.Subject))
		if ref := pairs.Get(pair); ref != nil {
			orig, ok, err := get[progress.Progress](data, ref)
			if err != nil {
				return err
			}
			if ok {
				prog.ID = orig.ID
				prog.CreatedAt = orig.CreatedAt
				return put(data, ref, prog)
			}
		}

		byUser, err := bucket(tx, "progressByUser")
		if err != nil {
			return err
		}
		bySubject, err := bucket(tx, "progressBySubject")
		if err != nil {
			return err
		}
		seq, err := data.NextSequence()
		if err != nil {
			return errors.Wrap(err, "generating progress key")
		}
		ref := itob(seq)
		prog.ID = uuid.New().String()
		if err = put(data, ref, prog); err != nil {
			return err
		}
		if err = pairs.Put(pair, ref); err != nil {
			return err
		}
		if err = byUser.Put(append(prefixKey(prog.UserID), ref...), ref); err != nil {
			return err
		}
		return bySubject.Put(append(prefixKey(string(prog.Subject)), ref...), ref)
	})
	if err != nil {
		return progress.Progress{}, errors.Wrap(err, "saving progress")
	}
	return prog, nil
}

// appendLog stores doc under (userID, subject, seq) in the named bucket.
func appendLog[T any](ctx context.Context, db *DB, name, userID string, subject core.Subject, doc func(id string) T) (T, error) {
	var out T
	err := db.update(ctx, func(tx *bbolt.Tx) error {
		b, err := bucket(tx, name)
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return errors.Wrap(err, "generating log key")
		}
		out = doc(uuid.New().String())
		return put(b, append(prefixKey(userID, string(subject)), itob(seq)...), out)
	})
	return out, err
}

func listLog[T any](ctx context.Context, db *DB, name, userID string, subject core.Subject) ([]T, error) {
	var out []T
	err := db.view(ctx, func(tx *bbolt.Tx) error {
		b, err := bucket(tx, name)
		if err != nil {
			return err
		}
		out, err = listByPrefix[T](b, prefixKey(userID, string(subject)))
		return err
	})
	return out, err
}

func (repo *progressRepository) AddQuizAttempt(ctx context.Context, a progress.QuizAttempt) (progress.QuizAttempt, error) {
	a, err := appendLog(ctx, repo.db, "quizAttempts", a.UserID, a.Subject, func(id string) progress.QuizAttempt {
		a.ID = id
		return a
	})
	return a, errors.Wrap(err, "inserting quiz attempt")
}

func (repo *progressRepository) ListQuizAttempts(ctx context.Context, userID string, subject core.Subject) ([]progress.QuizAttempt, error) {
	attempts, err := listLog[progress.QuizAttempt](ctx, repo.db, "quizAttempts", userID, subject)
	return attempts, errors.Wrap(err, "listing quiz attempts")
}

func (repo *progressRepository) AddSubmission(ctx context.Context, s progress.AssignmentSubmission) (progress.AssignmentSubmission, error) {
	s, err := appendLog(ctx, repo.db, "submissions", s.UserID, s.Subject, func(id string) progress.AssignmentSubmission {
		s.ID = id
		return s
	})
	return s, errors.Wrap(err, "inserting assignment submission")
}

func (repo *progressRepository) ListSubmissions(ctx context.Context, userID string, subject core.Subject) ([]progress.AssignmentSubmission, error) {
	subs, err := listLog[progress.AssignmentSubmission](ctx, repo.db, "submissions", userID, subject)
	return subs, errors.Wrap(err, "listing assignment submissions")
}
