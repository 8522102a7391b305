package inmemdb

import (
	"context"

	"github.com/google/uuid"

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

func copyProgress(p progress.Progress) progress.Progress {
	if p.QuizScore != nil {
		score := *p.QuizScore
		p.QuizScore = &score
	}
	return p
}

func (repo *progressRepository) Get(ctx context.Context, userID string, subject core.Subject) (progress.Progress, error) {
	defer repo.db.lock(ctx)()

	for _, p := range repo.db.progress {
		if p.UserID == userID && p.Subject == subject {
			return copyProgress(p), nil
		}
	}
	return progress.Progress{}, progress.ErrNotFound
}

func (repo *progressRepository) list(ctx context.Context, match func(p progress.Progress) bool) []progress.Progress {
	defer repo.db.lock(ctx)()

	progs := make([]progress.Progress, 0)
	for _, p := range repo.db.progress {
		if match(p) {
			progs = append(progs, copyProgress(p))
		}
	}
	return progs
}

func (repo *progressRepository) ListByUser(ctx context.Context, userID string) ([]progress.Progress, error) {
	return repo.list(ctx, func(p progress.Progress) bool { return p.UserID == userID }), nil
}

func (repo *progressRepository) ListBySubject(ctx context.Context, subject core.Subject) ([]progress.Progress, error) {
	return repo.list(ctx, func(p progress.Progress) bool { return p.Subject == subject }), nil
}

func (repo *progressRepository) Save(ctx context.Context, prog progress.Progress) (progress.Progress, error) {
	defer repo.db.lock(ctx)()

	prog = copyProgress(prog)
	for i, p := range repo.db.progress {
		if p.UserID == prog.UserID && p.Subject == prog.Subject {
			prog.ID = p.ID
			prog.CreatedAt = p.CreatedAt
			repo.db.progress[i] = prog
			return copyProgress(prog), nil
		}
	}
	prog.ID = uuid.New().String()
	repo.db.progress = append(repo.db.progress, prog)
	return copyProgress(prog), nil
}

func (repo *progressRepository) AddQuizAttempt(ctx context.Context, a progress.QuizAttempt) (progress.QuizAttempt, error) {
	defer repo.db.lock(ctx)()

	a.ID = uuid.New().String()
	a.Answers = append([]progress.QuizAnswer{}, a.Answers...)
	repo.db.attempts = append(repo.db.attempts, a)
	return a, nil
}

func (repo *progressRepository) ListQuizAttempts(ctx context.Context, userID string, subject core.Subject) ([]progress.QuizAttempt, error) {
	defer repo.db.lock(ctx)()

	attempts := make([]progress.QuizAttempt, 0)
	for _, a := range repo.db.attempts {
		if a.UserID == userID && a.Subject == subject {
			a.Answers = append([]progress.QuizAnswer{}, a.Answers...)
			attempts = append(attempts, a)
		}
	}
	return attempts, nil
}

func (repo *progressRepository) AddSubmission(ctx context.Context, s progress.AssignmentSubmission) (progress.AssignmentSubmission, error) {
	defer repo.db.lock(ctx)()

	s.ID = uuid.New().String()
	s.Answers = append([]progress.AssignmentAnswer{}, s.Answers...)
	repo.db.submissions = append(repo.db.submissions, s)
	return s, nil
}

func (repo *progressRepository) ListSubmissions(ctx context.Context, userID string, subject core.Subject) ([]progress.AssignmentSubmission, error) {
	defer repo.db.lock(ctx)()

	subs := make([]progress.AssignmentSubmission, 0)
	for _, s := range repo.db.submissions {
		if s.UserID == userID && s.Subject == subject {
			s.Answers = append([]progress.AssignmentAnswer{}, s.Answers...)
			subs = append(subs, s)
		}
	}
	return subs, nil
}
