package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/sikhya/portal/core"
)

var (
	// errors
	ErrNotFound         = errors.New("user not found")
	ErrEmailExists      = errors.New("a user with this email already exists")
	ErrStudentIDExists  = errors.New("a student with this ID already exists")
	ErrInvalidStudentID = errors.New("Invalid student ID")
	ErrTeacherEmail     = errors.New("this email belongs to a teacher")
)

const welcomeTeacherTemplate = "welcome_teacher"

type (
	Repository interface {
		Create(ctx context.Context, usr User) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		GetByStudentID(ctx context.Context, studentID string) (User, error)
		// QueryByRole returns users of the given role in creation order.
		QueryByRole(ctx context.Context, role Role) ([]User, error)
		// QueryByRoleAndGrade returns users of the given role and grade in creation order.
		QueryByRoleAndGrade(ctx context.Context, role Role, grade core.Grade) ([]User, error)
		Update(ctx context.Context, usr User) (User, error)
	}

	Service interface {
		RegisterTeacher(ctx context.Context, nt NewTeacher) (User, error)
		RegisterStudent(ctx context.Context, ns NewStudent) (User, error)
		AddAdmin(ctx context.Context, na NewAdmin) (User, error)
		LoginStudent(ctx context.Context, studentID string) (User, error)
		SetStudentProfile(ctx context.Context, p core.Principal, sp StudentProfile) (User, error)
		Me(ctx context.Context, p core.Principal) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		GetByStudentID(ctx context.Context, studentID string) (User, error)
	}

	service struct {
		tx      core.Transactor
		repo    Repository
		mailSvc core.EmailService
	}
)

var _ Service = (*service)(nil)

func NewService(tx core.Transactor, repo Repository, mailSvc core.EmailService) Service {
	return &service{tx: tx, repo: repo, mailSvc: mailSvc}
}

// Resolve loads the user behind p. Anonymous or unknown principals are core.ErrUnauthorized.
func Resolve(ctx context.Context, repo Repository, p core.Principal) (User, error) {
	if p.IsZero() {
		return User{}, core.ErrUnauthorized
	}
	usr, err := repo.GetByID(ctx, p.UserID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, core.ErrUnauthorized
		}
		return User{}, errors.Wrap(err, "resolving principal")
	}
	return usr, nil
}

func (svc *service) RegisterTeacher(ctx context.Context, nt NewTeacher) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:      nt.Name,
		Email:     nt.Email,
		Phone:     nt.Phone,
		School:    nt.School,
		Role:      RoleTeacher,
		Grade:     nt.Grade,
		Subjects:  core.CopySubjects(nt.Subjects),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if usr.Subjects == nil {
		usr.Subjects = []core.Subject{}
	}

	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		_, err := svc.repo.GetByEmail(ctx, usr.Email)
		switch {
		case err == nil:
			return core.NewConflictError(ErrEmailExists, "email")
		case errors.Cause(err) != ErrNotFound:
			return errors.Wrap(err, "checking email uniqueness")
		}
		usr, err = svc.repo.Create(ctx, usr)
		return errors.Wrap(err, "creating teacher")
	})
	if err != nil {
		return User{}, err
	}

	svc.sendWelcomeMail(usr)
	return usr, nil
}

func (svc *service) sendWelcomeMail(usr User) {
	if svc.mailSvc == nil || usr.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Welcome to your teacher dashboard",
		TemplateName: welcomeTeacherTemplate,
		TemplateData: usr,
	})
}

func (svc *service) RegisterStudent(ctx context.Context, ns NewStudent) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:      ns.Name,
		StudentID: ns.StudentID,
		School:    ns.School,
		Role:      RoleStudent,
		Grade:     ns.Grade,
		Subjects:  core.CopySubjects(core.AllSubjects),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		_, err := svc.repo.GetByStudentID(ctx, usr.StudentID)
		switch {
		case err == nil:
			return core.NewConflictError(ErrStudentIDExists, "student_id")
		case errors.Cause(err) != ErrNotFound:
			return errors.Wrap(err, "checking student ID uniqueness")
		}
		usr, err = svc.repo.Create(ctx, usr)
		return errors.Wrap(err, "creating student")
	})
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

// AddAdmin creates an admin, or promotes the user already holding na.Email.
// Teachers are never promoted: a user has a single role and it drives their dashboard.
func (svc *service) AddAdmin(ctx context.Context, na NewAdmin) (User, error) {
	var usr User
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()
		var err error
		usr, err = svc.repo.GetByEmail(ctx, na.Email)
		switch {
		case err == nil:
			if usr.IsTeacher() {
				return core.NewConflictError(ErrTeacherEmail, "email")
			}
			usr.Name = na.Name
			usr.Role = RoleAdmin
			usr.UpdatedAt = now
			usr, err = svc.repo.Update(ctx, usr)
			return errors.Wrap(err, "promoting user")
		case errors.Cause(err) != ErrNotFound:
			return errors.Wrap(err, "finding user by email")
		}
		usr, err = svc.repo.Create(ctx, User{
			Name:      na.Name,
			Email:     na.Email,
			Role:      RoleAdmin,
			Subjects:  []core.Subject{},
			CreatedAt: now,
			UpdatedAt: now,
		})
		return errors.Wrap(err, "creating admin")
	})
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

func (svc *service) LoginStudent(ctx context.Context, studentID string) (User, error) {
	usr, err := svc.repo.GetByStudentID(ctx, core.CleanString(studentID))
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidStudentID
		}
		return User{}, errors.Wrap(err, "finding user by student ID")
	}
	if !usr.IsStudent() {
		return User{}, ErrInvalidStudentID
	}
	return usr, nil
}

func (svc *service) SetStudentProfile(ctx context.Context, p core.Principal, sp StudentProfile) (User, error) {
	var usr User
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if usr, err = Resolve(ctx, svc.repo, p); err != nil {
			return err
		}
		usr.Role = RoleStudent
		usr.Grade = sp.Grade
		usr.UpdatedAt = time.Now().UTC()
		usr, err = svc.repo.Update(ctx, usr)
		return errors.Wrap(err, "updating user")
	})
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

func (svc *service) Me(ctx context.Context, p core.Principal) (User, error) {
	return Resolve(ctx, svc.repo, p)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetByID(ctx, id)
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *service) GetByStudentID(ctx context.Context, studentID string) (User, error) {
	return svc.repo.GetByStudentID(ctx, core.CleanString(studentID))
}
