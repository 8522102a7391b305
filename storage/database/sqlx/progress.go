package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/progress"
)

const (
	progressColumns = "id, user_id, subject, videos_completed, assignments_completed, quiz_score, quiz_completed, notes_viewed, created_at, updated_at"
	attemptColumns  = "id, user_id, subject, score, total_questions, time_spent, answers, created_at"
	submitColumns   = "id, user_id, subject, answers, submitted_at"
)

type progressRow struct {
	ID                   string    `db:"id"`
	UserID               string    `db:"user_id"`
	Subject              string    `db:"subject"`
	VideosCompleted      int       `db:"videos_completed"`
	AssignmentsCompleted int       `db:"assignments_completed"`
	QuizScore            null.Int  `db:"quiz_score"`
	QuizCompleted        bool      `db:"quiz_completed"`
	NotesViewed          bool      `db:"notes_viewed"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

func toProgressRow(p progress.Progress) progressRow {
	return progressRow{
		ID:                   p.ID,
		UserID:               p.UserID,
		Subject:              string(p.Subject),
		VideosCompleted:      p.VideosCompleted,
		AssignmentsCompleted: p.AssignmentsCompleted,
		QuizScore:            null.IntFromPtr(p.QuizScore),
		QuizCompleted:        p.QuizCompleted,
		NotesViewed:          p.NotesViewed,
		CreatedAt:            p.CreatedAt.UTC(),
		UpdatedAt:            p.UpdatedAt.UTC(),
	}
}

func (r progressRow) toProgress() progress.Progress {
	return progress.Progress{
		ID:                   r.ID,
		UserID:               r.UserID,
		Subject:              core.Subject(r.Subject),
		VideosCompleted:      r.VideosCompleted,
		AssignmentsCompleted: r.AssignmentsCompleted,
		QuizScore:            r.QuizScore.Ptr(),
		QuizCompleted:        r.QuizCompleted,
		NotesViewed:          r.NotesViewed,
		CreatedAt:            r.CreatedAt.UTC(),
		UpdatedAt:            r.UpdatedAt.UTC(),
	}
}

type attemptRow struct {
	ID             string         `db:"id"`
	UserID         string         `db:"user_id"`
	Subject        string         `db:"subject"`
	Score          int            `db:"score"`
	TotalQuestions int            `db:"total_questions"`
	TimeSpent      int            `db:"time_spent"`
	Answers        types.JSONText `db:"answers"`
	CreatedAt      time.Time      `db:"created_at"`
}

type submissionRow struct {
	ID          string         `db:"id"`
	UserID      string         `db:"user_id"`
	Subject     string         `db:"subject"`
	Answers     types.JSONText `db:"answers"`
	SubmittedAt time.Time      `db:"submitted_at"`
}

type progressRepository struct {
	db *DB
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(db *DB) *progressRepository {
	return &progressRepository{db: db}
}

func (repo progressRepository) list(ctx context.Context, where string, args ...interface{}) ([]progress.Progress, error) {
	var rows []progressRow
	q := "SELECT " + progressColumns + " FROM progress WHERE " + where + " ORDER BY seq"
	if err := sqlx.SelectContext(ctx, repo.db.getExec(ctx), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting progress")
	}
	progs := make([]progress.Progress, 0, len(rows))
	for _, r := range rows {
		progs = append(progs, r.toProgress())
	}
	return progs, nil
}

func (repo progressRepository) Get(ctx context.Context, userID string, subject core.Subject) (progress.Progress, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return progress.Progress{}, progress.ErrNotFound
	}
	var row progressRow
	q := "SELECT " + progressColumns + " FROM progress WHERE user_id = $1 AND subject = $2"
	if err := sqlx.GetContext(ctx, repo.db.getExec(ctx), &row, q, userID, string(subject)); err != nil {
		if err == sql.ErrNoRows {
			return progress.Progress{}, progress.ErrNotFound
		}
		return progress.Progress{}, errors.Wrap(err, "selecting progress")
	}
	return row.toProgress(), nil
}

func (repo progressRepository) ListByUser(ctx context.Context, userID string) ([]progress.Progress, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return []progress.Progress{}, nil
	}
	return repo.list(ctx, "user_id = $1", userID)
}

func (repo progressRepository) ListBySubject(ctx context.Context, subject core.Subject) ([]progress.Progress, error) {
	return repo.list(ctx, "subject = $1", string(subject))
}

func (repo progressRepository) Save(ctx context.Context, p progress.Progress) (progress.Progress, error) {
	row := toProgressRow(p)
	row.ID = uuid.New().String()

	const q = `INSERT INTO progress (` + progressColumns + `)
		VALUES (:id, :user_id, :subject, :videos_completed, :assignments_completed, :quiz_score,
			:quiz_completed, :notes_viewed, :created_at, :updated_at)
		ON CONFLICT (user_id, subject) DO UPDATE SET
			videos_completed = EXCLUDED.videos_completed,
			assignments_completed = EXCLUDED.assignments_completed,
			quiz_score = EXCLUDED.quiz_score,
			quiz_completed = EXCLUDED.quiz_completed,
			notes_viewed = EXCLUDED.notes_viewed,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + progressColumns

	exec := repo.db.getExec(ctx)
	query, args, err := exec.BindNamed(q, row)
	if err != nil {
		return progress.Progress{}, errors.Wrap(err, "binding progress")
	}
	var saved progressRow
	if err = sqlx.GetContext(ctx, exec, &saved, query, args...); err != nil {
		return progress.Progress{}, errors.Wrap(err, "upserting progress")
	}
	return saved.toProgress(), nil
}

func (repo progressRepository) AddQuizAttempt(ctx context.Context, a progress.QuizAttempt) (progress.QuizAttempt, error) {
	answers, err := json.Marshal(nonNilQuizAnswers(a.Answers))
	if err != nil {
		return progress.QuizAttempt{}, errors.Wrap(err, "encoding answers")
	}
	a.ID = uuid.New().String()
	row := attemptRow{
		ID:             a.ID,
		UserID:         a.UserID,
		Subject:        string(a.Subject),
		Score:          a.Score,
		TotalQuestions: a.TotalQuestions,
		TimeSpent:      a.TimeSpent,
		Answers:        types.JSONText(answers),
		CreatedAt:      a.CreatedAt.UTC(),
	}
	const q = `INSERT INTO quiz_attempts (` + attemptColumns + `)
		VALUES (:id, :user_id, :subject, :score, :total_questions, :time_spent, :answers, :created_at)`
	if _, err = sqlx.NamedExecContext(ctx, repo.db.getExec(ctx), q, row); err != nil {
		return progress.QuizAttempt{}, errors.Wrap(err, "inserting quiz attempt")
	}
	return a, nil
}

func (repo progressRepository) ListQuizAttempts(ctx context.Context, userID string, subject core.Subject) ([]progress.QuizAttempt, error) {
	attempts := make([]progress.QuizAttempt, 0)
	if _, err := uuid.Parse(userID); err != nil {
		return attempts, nil
	}
	var rows []attemptRow
	q := "SELECT " + attemptColumns + " FROM quiz_attempts WHERE user_id = $1 AND subject = $2 ORDER BY seq"
	if err := sqlx.SelectContext(ctx, repo.db.getExec(ctx), &rows, q, userID, string(subject)); err != nil {
		return nil, errors.Wrap(err, "selecting quiz attempts")
	}
	for _, r := range rows {
		a := progress.QuizAttempt{
			ID:             r.ID,
			UserID:         r.UserID,
			Subject:        core.Subject(r.Subject),
			Score:          r.Score,
			TotalQuestions: r.TotalQuestions,
			TimeSpent:      r.TimeSpent,
			CreatedAt:      r.CreatedAt.UTC(),
		}
		if err := r.Answers.Unmarshal(&a.Answers); err != nil {
			return nil, errors.Wrap(err, "decoding answers")
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}

func (repo progressRepository) AddSubmission(ctx context.Context, s progress.AssignmentSubmission) (progress.AssignmentSubmission, error) {
	answers, err := json.Marshal(nonNilAssignmentAnswers(s.Answers))
	if err != nil {
		return progress.AssignmentSubmission{}, errors.Wrap(err, "encoding answers")
	}
	s.ID = uuid.New().String()
	row := submissionRow{
		ID:          s.ID,
		UserID:      s.UserID,
		Subject:     string(s.Subject),
		Answers:     types.JSONText(answers),
		SubmittedAt: s.SubmittedAt.UTC(),
	}
	const q = `INSERT INTO assignment_submissions (` + submitColumns + `)
		VALUES (:id, :user_id, :subject, :answers, :submitted_at)`
	if _, err = sqlx.NamedExecContext(ctx, repo.db.getExec(ctx), q, row); err != nil {
		return progress.AssignmentSubmission{}, errors.Wrap(err, "inserting assignment submission")
	}
	return s, nil
}

func (repo progressRepository) ListSubmissions(ctx context.Context, userID string, subject core.Subject) ([]progress.AssignmentSubmission, error) {
	subs := make([]progress.AssignmentSubmission, 0)
	if _, err := uuid.Parse(userID); err != nil {
		return subs, nil
	}
	var rows []submissionRow
	q := "SELECT " + submitColumns + " FROM assignment_submissions WHERE user_id = $1 AND subject = $2 ORDER BY seq"
	if err := sqlx.SelectContext(ctx, repo.db.getExec(ctx), &rows, q, userID, string(subject)); err != nil {
		return nil, errors.Wrap(err, "selecting assignment submissions")
	}
	for _, r := range rows {
		s := progress.AssignmentSubmission{
			ID:          r.ID,
			UserID:      r.UserID,
			Subject:     core.Subject(r.Subject),
			SubmittedAt: r.SubmittedAt.UTC(),
		}
		if err := r.Answers.Unmarshal(&s.Answers); err != nil {
			return nil, errors.Wrap(err, "decoding answers")
		}
		subs = append(subs, s)
	}
	return subs, nil
}

func nonNilQuizAnswers(a []progress.QuizAnswer) []progress.QuizAnswer {
	if a == nil {
		return []progress.QuizAnswer{}
	}
	return a
}

func nonNilAssignmentAnswers(a []progress.AssignmentAnswer) []progress.AssignmentAnswer {
	if a == nil {
		return []progress.AssignmentAnswer{}
	}
	return a
}
