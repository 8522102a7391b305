package user_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/user"
	emailsvc "github.com/sikhya/portal/services/email"
	inmemdb "github.com/sikhya/portal/storage/database/inmem"
	testutil "github.com/sikhya/portal/tests"
)

func newService(t *testing.T) (user.Service, user.Repository) {
	db := inmemdb.Open()
	repo := inmemdb.NewUserRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(core.NewTestConfig(), new(testutil.Logger))
	emailsvc.ClearSentMessages()
	t.Cleanup(emailsvc.ClearSentMessages)
	return user.NewService(db, repo, mailSvc), repo
}

func TestService_RegisterTeacher(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	usr, err := svc.RegisterTeacher(ctx, user.NewTeacher{
		Name:     "Ravi",
		Email:    "ravi@school.test",
		School:   "Hill School",
		Grade:    core.Grade9,
		Subjects: []core.Subject{core.SubjectMath},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.True(t, usr.IsTeacher())
	assert.Equal(t, core.Grade9, usr.Grade)
	assert.Equal(t, []core.Subject{core.SubjectMath}, usr.Subjects)

	sent := emailsvc.GetSentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "ravi@school.test", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "Hello Ravi,")

	_, err = svc.RegisterTeacher(ctx, user.NewTeacher{Name: "Other", Email: "ravi@school.test"})
	require.True(t, core.IsConflict(err))
	assert.Equal(t, "email", errors.Cause(err).(*core.ConflictError).Field)
	assert.Len(t, emailsvc.GetSentMessages(), 1)

	usr, err = svc.RegisterTeacher(ctx, user.NewTeacher{Name: "Mina", Email: "mina@school.test"})
	require.NoError(t, err)
	assert.NotNil(t, usr.Subjects)
	assert.Empty(t, usr.Subjects)
}

func TestService_RegisterStudent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	usr, err := svc.RegisterStudent(ctx, user.NewStudent{Name: "Asha", StudentID: "S001", Grade: core.Grade8})
	require.NoError(t, err)
	assert.True(t, usr.IsStudent())
	assert.Equal(t, core.AllSubjects, usr.Subjects)
	assert.Empty(t, emailsvc.GetSentMessages(), "students get no welcome email")

	_, err = svc.RegisterStudent(ctx, user.NewStudent{Name: "Other", StudentID: "S001", Grade: core.Grade9})
	require.True(t, core.IsConflict(err))
	assert.Equal(t, "student_id", errors.Cause(err).(*core.ConflictError).Field)
}

func TestService_AddAdmin(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)

	usr, err := svc.AddAdmin(ctx, user.NewAdmin{Name: "Kiran", Email: "kiran@school.test"})
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.True(t, usr.IsAdmin())

	pending := testutil.CreateUser(t, repo, "Meena", "meena@school.test")
	usr, err = svc.AddAdmin(ctx, user.NewAdmin{Name: "Meena K", Email: "meena@school.test"})
	require.NoError(t, err)
	assert.Equal(t, pending.ID, usr.ID)
	assert.True(t, usr.IsAdmin())
	assert.Equal(t, "Meena K", usr.Name)

	testutil.CreateTeacher(t, repo, "Asha", "asha@school.test", core.Grade9, nil)
	_, err = svc.AddAdmin(ctx, user.NewAdmin{Name: "Asha", Email: "asha@school.test"})
	require.True(t, core.IsConflict(err))
	assert.Equal(t, user.ErrTeacherEmail, errors.Cause(err).(*core.ConflictError).Err)

	stored, err := repo.GetByEmail(ctx, "asha@school.test")
	require.NoError(t, err)
	assert.True(t, stored.IsTeacher())
}

func TestService_LoginStudent(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)

	st := testutil.CreateStudent(t, repo, "Asha", "S001", core.Grade8)
	testutil.CreateTeacher(t, repo, "Ravi", "ravi@school.test", core.Grade8, nil)

	usr, err := svc.LoginStudent(ctx, " S001 ")
	require.NoError(t, err)
	assert.Equal(t, st.ID, usr.ID)

	_, err = svc.LoginStudent(ctx, "S404")
	assert.Equal(t, user.ErrInvalidStudentID, err)
}

func TestService_SetStudentProfile(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)

	usr := testutil.CreateUser(t, repo, "Asha", "asha@school.test")
	got, err := svc.SetStudentProfile(ctx, core.Principal{UserID: usr.ID}, user.StudentProfile{Grade: core.Grade10})
	require.NoError(t, err)
	assert.True(t, got.IsStudent())
	assert.Equal(t, core.Grade10, got.Grade)

	got, err = svc.Me(ctx, core.Principal{UserID: usr.ID})
	require.NoError(t, err)
	assert.Equal(t, core.Grade10, got.Grade)

	_, err = svc.SetStudentProfile(ctx, core.Principal{}, user.StudentProfile{Grade: core.Grade10})
	assert.Equal(t, core.ErrUnauthorized, err)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	_, repo := newService(t)
	st := testutil.CreateStudent(t, repo, "Asha", "S001", core.Grade8)

	usr, err := user.Resolve(ctx, repo, core.Principal{UserID: st.ID})
	require.NoError(t, err)
	assert.Equal(t, st.ID, usr.ID)

	_, err = user.Resolve(ctx, repo, core.Principal{})
	assert.Equal(t, core.ErrUnauthorized, err)
	_, err = user.Resolve(ctx, repo, core.Principal{UserID: "deleted"})
	assert.Equal(t, core.ErrUnauthorized, err)
}

func TestValidate(t *testing.T) {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())

	tests := []struct {
		name    string
		payload interface{ Validate(*validator.Validate) error }
		fields  []string
	}{
		{"teacher ok", &user.NewTeacher{Name: "Ravi", Email: "Ravi@School.test", Grade: "9"}, nil},
		{"teacher blank", &user.NewTeacher{Name: "  ", Email: "nope"}, []string{"name", "email", "grade"}},
		{"teacher missing grade", &user.NewTeacher{Name: "Ravi", Email: "r@s.test"}, []string{"grade"}},
		{"teacher bad grade", &user.NewTeacher{Name: "Ravi", Email: "r@s.test", Grade: "7"}, []string{"grade"}},
		{"teacher bad subject", &user.NewTeacher{Name: "Ravi", Email: "r@s.test", Grade: "8", Subjects: []core.Subject{"chemistry"}}, []string{"subjects[0]"}},
		{"teacher duplicate subjects", &user.NewTeacher{Name: "Ravi", Email: "r@s.test", Grade: "8", Subjects: []core.Subject{"math", "math"}}, []string{"subjects"}},
		{"student ok", &user.NewStudent{Name: "Asha", StudentID: "S001", Grade: " 9 "}, nil},
		{"student missing", &user.NewStudent{}, []string{"name", "student_id", "grade"}},
		{"admin ok", &user.NewAdmin{Name: " Kiran ", Email: "Kiran@School.test"}, nil},
		{"admin missing", &user.NewAdmin{}, []string{"name", "email"}},
		{"login missing", &user.StudentLogin{}, []string{"student_id"}},
		{"profile bad grade", &user.StudentProfile{Grade: "11"}, []string{"grade"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.payload.Validate(validate)
			if tc.fields == nil {
				assert.NoError(t, err)
				return
			}
			var verrs validator.ValidationErrors
			require.True(t, errors.As(err, &verrs), "got %v", err)
			got := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				got = append(got, fe.Field())
			}
			assert.ElementsMatch(t, tc.fields, got)
		})
	}
}

func TestNewTeacher_Validate_cleans(t *testing.T) {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())

	nt := user.NewTeacher{Name: "  Ravi  ", Email: " Ravi@School.TEST ", Grade: " 10 "}
	require.NoError(t, nt.Validate(validate))
	assert.Equal(t, "Ravi", nt.Name)
	assert.Equal(t, "ravi@school.test", nt.Email)
	assert.Equal(t, core.Grade10, nt.Grade)
}
