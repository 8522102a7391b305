package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/sikhya/portal/core/teaching"
)

const linkColumns = "id, teacher_id, student_id, created_at"

type linkRow struct {
	ID        string    `db:"id"`
	TeacherID string    `db:"teacher_id"`
	StudentID string    `db:"student_id"`
	CreatedAt time.Time `db:"created_at"`
}

type linkRepository struct {
	db *DB
}

var _ teaching.LinkRepository = (*linkRepository)(nil) // interface compliance check

func NewLinkRepository(db *DB) *linkRepository {
	return &linkRepository{db: db}
}

func (repo linkRepository) Create(ctx context.Context, l teaching.Link) (teaching.Link, error) {
	l.ID = uuid.New().String()
	row := linkRow{ID: l.ID, TeacherID: l.TeacherID, StudentID: l.StudentID, CreatedAt: l.CreatedAt.UTC()}

	const q = `INSERT INTO teacher_students (` + linkColumns + `)
		VALUES (:id, :teacher_id, :student_id, :created_at)
		ON CONFLICT (teacher_id, student_id) DO NOTHING
		RETURNING id`
	exec := repo.db.getExec(ctx)
	query, args, err := exec.BindNamed(q, row)
	if err != nil {
		return teaching.Link{}, errors.Wrap(err, "binding link")
	}
	var id string
	if err = sqlx.GetContext(ctx, exec, &id, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return teaching.Link{}, teaching.ErrLinkExists
		}
		return teaching.Link{}, errors.Wrap(err, "inserting link")
	}
	l.CreatedAt = row.CreatedAt
	return l, nil
}

func (repo linkRepository) Exists(ctx context.Context, teacherID, studentID string) (bool, error) {
	var exists bool
	const q = "SELECT EXISTS (SELECT 1 FROM teacher_students WHERE teacher_id = $1 AND student_id = $2)"
	if err := sqlx.GetContext(ctx, repo.db.getExec(ctx), &exists, q, teacherID, studentID); err != nil {
		return false, errors.Wrap(err, "checking link")
	}
	return exists, nil
}

func (repo linkRepository) ListByTeacher(ctx context.Context, teacherID string) ([]teaching.Link, error) {
	links := make([]teaching.Link, 0)
	if _, err := uuid.Parse(teacherID); err != nil {
		return links, nil
	}
	var rows []linkRow
	q := "SELECT " + linkColumns + " FROM teacher_students WHERE teacher_id = $1 ORDER BY seq"
	if err := sqlx.SelectContext(ctx, repo.db.getExec(ctx), &rows, q, teacherID); err != nil {
		return nil, errors.Wrap(err, "selecting links")
	}
	for _, r := range rows {
		links = append(links, teaching.Link{ID: r.ID, TeacherID: r.TeacherID, StudentID: r.StudentID, CreatedAt: r.CreatedAt.UTC()})
	}
	return links, nil
}
