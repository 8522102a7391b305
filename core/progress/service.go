package progress

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/user"
)

var (
	// errors
	ErrNotFound = errors.New("progress not found")

	errInvalidSubject = errors.New("invalid subject")
)

type (
	Repository interface {
		// Get returns ErrNotFound when the (user, subject) pair has no progress yet.
		Get(ctx context.Context, userID string, subject core.Subject) (Progress, error)
		ListByUser(ctx context.Context, userID string) ([]Progress, error)
		ListBySubject(ctx context.Context, subject core.Subject) ([]Progress, error)
		// Save inserts or replaces the record of the (UserID, Subject) pair.
		Save(ctx context.Context, p Progress) (Progress, error)
		AddQuizAttempt(ctx context.Context, a QuizAttempt) (QuizAttempt, error)
		ListQuizAttempts(ctx context.Context, userID string, subject core.Subject) ([]QuizAttempt, error)
		AddSubmission(ctx context.Context, s AssignmentSubmission) (AssignmentSubmission, error)
		ListSubmissions(ctx context.Context, userID string, subject core.Subject) ([]AssignmentSubmission, error)
	}

	Service interface {
		UpdateVideo(ctx context.Context, p core.Principal, subject core.Subject, videoNumber int) (Progress, error)
		UpdateNotesViewed(ctx context.Context, p core.Principal, subject core.Subject) (Progress, error)
		SubmitAssignment(ctx context.Context, p core.Principal, subject core.Subject, answers []AssignmentAnswer) (Progress, error)
		SubmitQuiz(ctx context.Context, p core.Principal, subject core.Subject, answers []QuizAnswer, timeSpent int) (QuizResult, error)
		Patch(ctx context.Context, p core.Principal, subject core.Subject, u Updates) (Progress, error)
		MyProgress(ctx context.Context, p core.Principal) ([]Progress, error)
		Dashboard(ctx context.Context, p core.Principal) (StudentDashboard, error)
		SubjectProgress(ctx context.Context, p core.Principal, subject core.Subject) (*Progress, error)
	}

	StudentDashboard struct {
		User     user.User  `json:"user"`
		Progress []Progress `json:"progress"`
	}

	service struct {
		tx      core.Transactor
		repo    Repository
		usrRepo user.Repository
	}
)

var _ Service = (*service)(nil)

func NewService(tx core.Transactor, repo Repository, usrRepo user.Repository) Service {
	return &service{tx: tx, repo: repo, usrRepo: usrRepo}
}

func validateSubject(subject core.Subject) error {
	if !subject.IsValid() {
		return core.NewValidationError(errInvalidSubject, core.FieldError{Field: "subject", Error: errInvalidSubject.Error()})
	}
	return nil
}

// student resolves p and checks that it is a student.
func (svc *service) student(ctx context.Context, p core.Principal) (user.User, error) {
	usr, err := user.Resolve(ctx, svc.usrRepo, p)
	if err != nil {
		return user.User{}, err
	}
	if !usr.IsStudent() {
		return user.User{}, core.ErrUnauthorized
	}
	return usr, nil
}

// mutate runs fn on the caller's record for subject inside a transaction and saves the result.
// The record passed to fn is the stored one, or the default one when absent.
func (svc *service) mutate(ctx context.Context, p core.Principal, subject core.Subject, fn func(ctx context.Context, usr user.User, prog *Progress) error) (Progress, error) {
	if err := validateSubject(subject); err != nil {
		return Progress{}, err
	}

	var prog Progress
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		usr, err := svc.student(ctx, p)
		if err != nil {
			return err
		}

		prog, err = svc.repo.Get(ctx, usr.ID, subject)
		switch {
		case errors.Cause(err) == ErrNotFound:
			prog = New(usr.ID, subject)
		case err != nil:
			return errors.Wrap(err, "getting progress")
		}

		if err = fn(ctx, usr, &prog); err != nil {
			return err
		}
		prog.UpdatedAt = time.Now().UTC()
		prog, err = svc.repo.Save(ctx, prog)
		return errors.Wrap(err, "saving progress")
	})
	if err != nil {
		return Progress{}, err
	}
	return prog, nil
}

func (svc *service) UpdateVideo(ctx context.Context, p core.Principal, subject core.Subject, videoNumber int) (Progress, error) {
	return svc.mutate(ctx, p, subject, func(_ context.Context, _ user.User, prog *Progress) error {
		if videoNumber > prog.VideosCompleted {
			prog.VideosCompleted = videoNumber
		}
		return nil
	})
}

func (svc *service) UpdateNotesViewed(ctx context.Context, p core.Principal, subject core.Subject) (Progress, error) {
	return svc.mutate(ctx, p, subject, func(_ context.Context, _ user.User, prog *Progress) error {
		prog.NotesViewed = true
		return nil
	})
}

func (svc *service) SubmitAssignment(ctx context.Context, p core.Principal, subject core.Subject, answers []AssignmentAnswer) (Progress, error) {
	return svc.mutate(ctx, p, subject, func(ctx context.Context, usr user.User, prog *Progress) error {
		sub := AssignmentSubmission{
			UserID:      usr.ID,
			Subject:     subject,
			Answers:     append([]AssignmentAnswer{}, answers...),
			SubmittedAt: time.Now().UTC(),
		}
		if _, err := svc.repo.AddSubmission(ctx, sub); err != nil {
			return errors.Wrap(err, "adding assignment submission")
		}
		prog.AssignmentsCompleted++
		return nil
	})
}

func (svc *service) SubmitQuiz(ctx context.Context, p core.Principal, subject core.Subject, answers []QuizAnswer, timeSpent int) (QuizResult, error) {
	res := QuizResult{Score: Score(answers), TotalQuestions: len(answers)}
	_, err := svc.mutate(ctx, p, subject, func(ctx context.Context, usr user.User, prog *Progress) error {
		attempt := QuizAttempt{
			UserID:         usr.ID,
			Subject:        subject,
			Score:          res.Score,
			TotalQuestions: res.TotalQuestions,
			TimeSpent:      timeSpent,
			Answers:        append([]QuizAnswer{}, answers...),
			CreatedAt:      time.Now().UTC(),
		}
		if _, err := svc.repo.AddQuizAttempt(ctx, attempt); err != nil {
			return errors.Wrap(err, "adding quiz attempt")
		}
		score := res.Score
		prog.QuizScore = &score
		prog.QuizCompleted = true
		return nil
	})
	if err != nil {
		return QuizResult{}, err
	}
	return res, nil
}

func (svc *service) Patch(ctx context.Context, p core.Principal, subject core.Subject, u Updates) (Progress, error) {
	return svc.mutate(ctx, p, subject, func(_ context.Context, _ user.User, prog *Progress) error {
		u.Apply(prog)
		return nil
	})
}

// MyProgress lists the caller's records. Callers that cannot be resolved get an empty list.
func (svc *service) MyProgress(ctx context.Context, p core.Principal) ([]Progress, error) {
	usr, err := user.Resolve(ctx, svc.usrRepo, p)
	if err != nil {
		if errors.Cause(err) == core.ErrUnauthorized {
			return []Progress{}, nil
		}
		return nil, err
	}
	progs, err := svc.repo.ListByUser(ctx, usr.ID)
	if err != nil {
		return nil, errors.Wrap(err, "listing progress")
	}
	return progs, nil
}

func (svc *service) Dashboard(ctx context.Context, p core.Principal) (StudentDashboard, error) {
	usr, err := svc.student(ctx, p)
	if err != nil {
		return StudentDashboard{}, err
	}
	progs, err := svc.repo.ListByUser(ctx, usr.ID)
	if err != nil {
		return StudentDashboard{}, errors.Wrap(err, "listing progress")
	}
	return StudentDashboard{User: usr, Progress: progs}, nil
}

// SubjectProgress returns nil when the caller has no progress for subject.
func (svc *service) SubjectProgress(ctx context.Context, p core.Principal, subject core.Subject) (*Progress, error) {
	if err := validateSubject(subject); err != nil {
		return nil, err
	}
	usr, err := svc.student(ctx, p)
	if err != nil {
		return nil, err
	}
	prog, err := svc.repo.Get(ctx, usr.ID, subject)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, "getting progress")
	}
	return &prog, nil
}
