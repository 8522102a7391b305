package teaching

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/progress"
	"github.com/sikhya/portal/core/user"
)

var (
	// errors
	ErrNotTeachingSubject = errors.New("not teaching this subject")
	ErrLinkExists         = errors.New("student is already linked to this teacher")

	errInvalidSubject = errors.New("invalid subject")
)

// fetchConcurrency bounds the per-student sub-fetches of a single request.
const fetchConcurrency = 8

type (
	LinkRepository interface {
		// Create returns ErrLinkExists when the pair is already linked.
		Create(ctx context.Context, l Link) (Link, error)
		Exists(ctx context.Context, teacherID, studentID string) (bool, error)
		// ListByTeacher returns the teacher's links in creation order.
		ListByTeacher(ctx context.Context, teacherID string) ([]Link, error)
	}

	Service interface {
		// Dashboard never fails: problems are reported through Dashboard.Status.
		Dashboard(ctx context.Context, p core.Principal) Dashboard
		SetTeacherProfile(ctx context.Context, p core.Principal, tp TeacherProfile) (user.User, error)
		SubjectProgress(ctx context.Context, p core.Principal, subject core.Subject) ([]SubjectStudent, error)
		// ReconcileTeacher links the teacher to every current student of their grade. It returns the number of new links.
		ReconcileTeacher(ctx context.Context, teacher user.User) (int, error)
		// ReconcileLinks runs ReconcileTeacher for every teacher with a grade.
		ReconcileLinks(ctx context.Context) (int, error)
	}

	service struct {
		tx       core.Transactor
		links    LinkRepository
		usrRepo  user.Repository
		progRepo progress.Repository
		logger   core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(
	tx core.Transactor,
	links LinkRepository,
	usrRepo user.Repository,
	progRepo progress.Repository,
	logger core.Logger,
) Service {
	return &service{
		tx:       tx,
		links:    links,
		usrRepo:  usrRepo,
		progRepo: progRepo,
		logger:   logger,
	}
}

func (svc *service) teacher(ctx context.Context, p core.Principal) (user.User, error) {
	usr, err := user.Resolve(ctx, svc.usrRepo, p)
	if err != nil {
		return user.User{}, err
	}
	if !usr.IsTeacher() {
		return user.User{}, core.ErrUnauthorized
	}
	return usr, nil
}

func (svc *service) SetTeacherProfile(ctx context.Context, p core.Principal, tp TeacherProfile) (user.User, error) {
	var usr user.User
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if usr, err = user.Resolve(ctx, svc.usrRepo, p); err != nil {
			return err
		}
		usr.Role = user.RoleTeacher
		usr.Grade = tp.Grade
		usr.Subjects = core.CopySubjects(tp.Subjects)
		if usr.Subjects == nil {
			usr.Subjects = []core.Subject{}
		}
		usr.UpdatedAt = time.Now().UTC()
		if usr, err = svc.usrRepo.Update(ctx, usr); err != nil {
			return errors.Wrap(err, "updating user")
		}

		_, err = svc.backfill(ctx, usr)
		return errors.Wrap(err, "backfilling links")
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

// backfill creates the missing links between teacher and the students of their grade.
func (svc *service) backfill(ctx context.Context, teacher user.User) (int, error) {
	if !teacher.Grade.IsSet() {
		return 0, nil
	}
	students, err := svc.usrRepo.QueryByRoleAndGrade(ctx, user.RoleStudent, teacher.Grade)
	if err != nil {
		return 0, errors.Wrap(err, "querying students")
	}

	var created int
	for _, st := range students {
		exists, err := svc.links.Exists(ctx, teacher.ID, st.ID)
		if err != nil {
			return created, errors.Wrap(err, "checking link")
		}
		if exists {
			continue
		}
		_, err = svc.links.Create(ctx, Link{TeacherID: teacher.ID, StudentID: st.ID, CreatedAt: time.Now().UTC()})
		if err != nil && errors.Cause(err) != ErrLinkExists {
			return created, errors.Wrap(err, "creating link")
		}
		if err == nil {
			created++
		}
	}
	return created, nil
}

func (svc *service) ReconcileTeacher(ctx context.Context, teacher user.User) (int, error) {
	if !teacher.IsTeacher() {
		return 0, nil
	}
	var created int
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		created, err = svc.backfill(ctx, teacher)
		return err
	})
	return created, err
}

func (svc *service) ReconcileLinks(ctx context.Context) (int, error) {
	teachers, err := svc.usrRepo.QueryByRole(ctx, user.RoleTeacher)
	if err != nil {
		return 0, errors.Wrap(err, "querying teachers")
	}
	var total int
	for _, t := range teachers {
		if err = ctx.Err(); err != nil {
			return total, err
		}
		n, err := svc.ReconcileTeacher(ctx, t)
		total += n
		if err != nil {
			return total, errors.Wrapf(err, "reconciling teacher %s", t.ID)
		}
	}
	return total, nil
}

func (svc *service) SubjectProgress(ctx context.Context, p core.Principal, subject core.Subject) ([]SubjectStudent, error) {
	if !subject.IsValid() {
		return nil, core.NewValidationError(errInvalidSubject, core.FieldError{Field: "subject", Error: errInvalidSubject.Error()})
	}
	teacher, err := svc.teacher(ctx, p)
	if err != nil {
		return nil, err
	}
	if !teacher.Teaches(subject) {
		return nil, ErrNotTeachingSubject
	}
	if !teacher.Grade.IsSet() {
		return []SubjectStudent{}, nil
	}

	students, err := svc.usrRepo.QueryByRoleAndGrade(ctx, user.RoleStudent, teacher.Grade)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}

	rows := make([]SubjectStudent, len(students))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, st := range students {
		i, st := i, st
		g.Go(func() error {
			row := SubjectStudent{Student: st}
			prog, err := svc.progRepo.Get(gctx, st.ID, subject)
			switch {
			case err == nil:
				row.Progress = &prog
			case errors.Cause(err) != progress.ErrNotFound:
				return errors.Wrap(err, "getting progress")
			}
			if row.QuizAttempts, err = svc.progRepo.ListQuizAttempts(gctx, st.ID, subject); err != nil {
				return errors.Wrap(err, "listing quiz attempts")
			}
			rows[i] = row
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}
