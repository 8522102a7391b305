package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/sikhya/portal/core/teaching"
)

type linkRepository struct {
	db *DB
}

var _ teaching.LinkRepository = (*linkRepository)(nil) // interface compliance check

func NewLinkRepository(db *DB) *linkRepository {
	return &linkRepository{db: db}
}

func (repo *linkRepository) exists(teacherID, studentID string) bool {
	for _, l := range repo.db.links {
		if l.TeacherID == teacherID && l.StudentID == studentID {
			return true
		}
	}
	return false
}

func (repo *linkRepository) Create(ctx context.Context, l teaching.Link) (teaching.Link, error) {
	defer repo.db.lock(ctx)()

	if repo.exists(l.TeacherID, l.StudentID) {
		return teaching.Link{}, teaching.ErrLinkExists
	}
	l.ID = uuid.New().String()
	repo.db.links = append(repo.db.links, l)
	return l, nil
}

func (repo *linkRepository) Exists(ctx context.Context, teacherID, studentID string) (bool, error) {
	defer repo.db.lock(ctx)()
	return repo.exists(teacherID, studentID), nil
}

func (repo *linkRepository) ListByTeacher(ctx context.Context, teacherID string) ([]teaching.Link, error) {
	defer repo.db.lock(ctx)()

	links := make([]teaching.Link, 0)
	for _, l := range repo.db.links {
		if l.TeacherID == teacherID {
			links = append(links, l)
		}
	}
	return links, nil
}
