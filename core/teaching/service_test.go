package teaching_test

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/progress"
	"github.com/sikhya/portal/core/teaching"
	"github.com/sikhya/portal/core/user"
	emailsvc "github.com/sikhya/portal/services/email"
	inmemdb "github.com/sikhya/portal/storage/database/inmem"
	testutil "github.com/sikhya/portal/tests"
)

type userRepository interface {
	user.Repository
	Delete(ctx context.Context, id string) error
}

type fixture struct {
	db       *inmemdb.DB
	usrRepo  userRepository
	progRepo progress.Repository
	links    teaching.LinkRepository
	logger   *testutil.Logger
	svc      teaching.Service
}

func newFixture(t *testing.T) *fixture {
	db := inmemdb.Open()
	f := &fixture{
		db:       db,
		usrRepo:  inmemdb.NewUserRepository(db),
		progRepo: inmemdb.NewProgressRepository(db),
		links:    inmemdb.NewLinkRepository(db),
		logger:   new(testutil.Logger),
	}
	f.svc = teaching.NewService(db, f.links, f.usrRepo, f.progRepo, f.logger)
	return f
}

func as(usr user.User) core.Principal { return core.Principal{UserID: usr.ID} }

func studentIDs(rows []teaching.StudentProgress) []string {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.Student.ID)
	}
	return ids
}

func subjects(progs []progress.Progress) []core.Subject {
	out := make([]core.Subject, 0, len(progs))
	for _, p := range progs {
		out = append(out, p.Subject)
	}
	return out
}

func TestDashboard_Links(t *testing.T) {
	f := newFixture(t)
	teacher := testutil.CreateTeacher(t, f.usrRepo, "Ravi", "ravi@school.test", core.Grade9, []core.Subject{core.SubjectMath})
	s1 := testutil.CreateStudent(t, f.usrRepo, "Asha", "S001", core.Grade9)
	s2 := testutil.CreateStudent(t, f.usrRepo, "Binod", "S002", core.Grade9)
	testutil.LinkStudent(t, f.links, teacher, s1)
	testutil.SaveProgress(t, f.progRepo, s1, core.SubjectMath, 2)
	testutil.SaveProgress(t, f.progRepo, s1, core.SubjectEnglish, 1)
	testutil.SaveProgress(t, f.progRepo, s2, core.SubjectMath, 4)

	dash := f.svc.Dashboard(context.Background(), as(teacher))
	assert.Equal(t, teaching.StatusOK, dash.Status)
	assert.Equal(t, teaching.SourceLinks, dash.Source)
	require.NotNil(t, dash.Teacher)
	assert.Equal(t, teacher.ID, dash.Teacher.ID)
	assert.Equal(t, []string{s1.ID}, studentIDs(dash.StudentProgress), "unlinked students are not consulted")
	assert.Equal(t, []core.Subject{core.SubjectMath}, subjects(dash.StudentProgress[0].Progress))
}

func TestDashboard_LinksKeepOrderAndDropDeleted(t *testing.T) {
	f := newFixture(t)
	teacher := testutil.CreateTeacher(t, f.usrRepo, "Ravi", "ravi@school.test", core.Grade9, nil)
	var students []user.User
	for _, sid := range []string{"S001", "S002", "S003", "S004", "S005", "S006", "S007", "S008", "S009", "S010"} {
		st := testutil.CreateStudent(t, f.usrRepo, sid, sid, core.Grade10)
		testutil.LinkStudent(t, f.links, teacher, st)
		students = append(students, st)
	}
	require.NoError(t, f.usrRepo.Delete(context.Background(), students[3].ID))

	dash := f.svc.Dashboard(context.Background(), as(teacher))
	assert.Equal(t, teaching.SourceLinks, dash.Source)
	want := make([]string, 0)
	for i, st := range students {
		if i != 3 {
			want = append(want, st.ID)
		}
	}
	assert.Equal(t, want, studentIDs(dash.StudentProgress))
	for _, row := range dash.StudentProgress {
		assert.NotNil(t, row.Progress)
	}
}

func TestDashboard_Grade(t *testing.T) {
	f := newFixture(t)
	teacher := testutil.CreateTeacher(t, f.usrRepo, "Ravi", "ravi@school.test", core.Grade9, []core.Subject{core.SubjectMath, core.SubjectPhysics})
	s1 := testutil.CreateStudent(t, f.usrRepo, "Asha", "S001", core.Grade9)
	testutil.CreateStudent(t, f.usrRepo, "Binod", "S002", core.Grade10)
	s3 := testutil.CreateStudent(t, f.usrRepo, "Chitra", "S003", core.Grade9)
	testutil.SaveProgress(t, f.progRepo, s3, core.SubjectBiology, 1)
	testutil.SaveProgress(t, f.progRepo, s3, core.SubjectPhysics, 1)

	// every link points to a deleted student, so the link tier is empty
	ghost := testutil.CreateStudent(t, f.usrRepo, "Ghost", "S404", core.Grade9)
	testutil.LinkStudent(t, f.links, teacher, ghost)
	require.NoError(t, f.usrRepo.Delete(context.Background(), ghost.ID))

	dash := f.svc.Dashboard(context.Background(), as(teacher))
	assert.Equal(t, teaching.StatusOK, dash.Status)
	assert.Equal(t, teaching.SourceGrade, dash.Source)
	assert.Equal(t, []string{s1.ID, s3.ID}, studentIDs(dash.StudentProgress))
	assert.Empty(t, dash.StudentProgress[0].Progress)
	assert.Equal(t, []core.Subject{core.SubjectPhysics}, subjects(dash.StudentProgress[1].Progress))
}

func TestDashboard_Subjects(t *testing.T) {
	f := newFixture(t)
	teacher := testutil.CreateTeacher(t, f.usrRepo, "Ravi", "ravi@school.test", core.Grade9, []core.Subject{core.SubjectMath, core.SubjectEnglish})

	// role never set: only visible through its progress
	stale := testutil.CreateUser(t, f.usrRepo, "Stale", "stale@school.test")
	stale.Grade = core.Grade9
	_, err := f.usrRepo.Update(context.Background(), stale)
	require.NoError(t, err)
	other := testutil.CreateUser(t, f.usrRepo, "Other", "other@school.test")
	other.Grade = core.Grade8
	_, err = f.usrRepo.Update(context.Background(), other)
	require.NoError(t, err)
	gone := testutil.CreateUser(t, f.usrRepo, "Gone", "gone@school.test")

	testutil.SaveProgress(t, f.progRepo, stale, core.SubjectMath, 3)
	testutil.SaveProgress(t, f.progRepo, stale, core.SubjectBiology, 1)
	testutil.SaveProgress(t, f.progRepo, other, core.SubjectMath, 1)
	testutil.SaveProgress(t, f.progRepo, gone, core.SubjectMath, 1)
	testutil.SaveProgress(t, f.progRepo, teacher, core.SubjectMath, 1)
	testutil.SaveProgress(t, f.progRepo, stale, core.SubjectEnglish, 2)
	require.NoError(t, f.usrRepo.Delete(context.Background(), gone.ID))

	dash := f.svc.Dashboard(context.Background(), as(teacher))
	assert.Equal(t, teaching.StatusOK, dash.Status)
	assert.Equal(t, teaching.SourceSubjects, dash.Source)
	require.Equal(t, []string{stale.ID}, studentIDs(dash.StudentProgress))
	assert.Equal(t, []core.Subject{core.SubjectMath, core.SubjectEnglish}, subjects(dash.StudentProgress[0].Progress))
}

func TestDashboard_Empty(t *testing.T) {
	f := newFixture(t)
	teacher := testutil.CreateTeacher(t, f.usrRepo, "Ravi", "ravi@school.test", core.Grade8, nil)

	dash := f.svc.Dashboard(context.Background(), as(teacher))
	assert.Equal(t, teaching.StatusOK, dash.Status)
	assert.Equal(t, teaching.SourceSubjects, dash.Source)
	assert.NotNil(t, dash.StudentProgress)
	assert.Empty(t, dash.StudentProgress)
}

func TestDashboard_IncompleteProfile(t *testing.T) {
	f := newFixture(t)
	noGrade := testutil.CreateTeacher(t, f.usrRepo, "Ravi", "ravi@school.test", "", nil)
	st := testutil.CreateStudent(t, f.usrRepo, "Asha", "S001", core.Grade9)
	pending := testutil.CreateUser(t, f.usrRepo, "New", "new@school.test")

	tests := []struct {
		name    string
		p       core.Principal
		teacher *user.User
	}{
		{"anonymous", core.Principal{}, nil},
		{"unknown", core.Principal{UserID: "unknown"}, nil},
		{"teacher without grade", as(noGrade), &noGrade},
		{"student", as(st), &st},
		{"no role", as(pending), &pending},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dash := f.svc.Dashboard(context.Background(), tc.p)
			assert.Equal(t, teaching.StatusIncompleteProfile, dash.Status)
			assert.NotNil(t, dash.StudentProgress)
			assert.Empty(t, dash.StudentProgress)
			if tc.teacher == nil {
				assert.Nil(t, dash.Teacher)
			} else {
				require.NotNil(t, dash.Teacher)
				assert.Equal(t, tc.teacher.ID, dash.Teacher.ID)
			}
		})
	}
	assert.Empty(t, f.logger.Entries())
}

type failingLinks struct {
	teaching.LinkRepository
	panic bool
}

func (l failingLinks) ListByTeacher(context.Context, string) ([]teaching.Link, error) {
	if l.panic {
		panic("links exploded")
	}
	return nil, errors.New("connection reset")
}

func TestDashboard_Degraded(t *testing.T) {
	for _, panics := range []bool{false, true} {
		f := newFixture(t)
		teacher := testutil.CreateTeacher(t, f.usrRepo, "Ravi", "ravi@school.test", core.Grade9, nil)
		testutil.CreateStudent(t, f.usrRepo, "Asha", "S001", core.Grade9)
		svc := teaching.NewService(f.db, failingLinks{LinkRepository: f.links, panic: panics}, f.usrRepo, f.progRepo, f.logger)

		dash := svc.Dashboard(context.Background(), as(teacher))
		assert.Equal(t, teaching.StatusDegraded, dash.Status)
		assert.Nil(t, dash.Teacher)
		assert.NotNil(t, dash.StudentProgress)
		assert.Empty(t, dash.StudentProgress)

		entries := f.logger.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, "error", entries[0].Level)
		assert.Contains(t, entries[0].Msg, "building teacher dashboard")
		if !panics {
			assert.Contains(t, entries[0].Args, teacher, "the teacher is reported with the error")
		}
	}
}

func TestScenario_BackfillAndDashboard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	usrSvc := user.NewService(f.db, f.usrRepo, emailsvc.NewConsoleServiceMock(core.NewTestConfig(), f.logger))
	progSvc := progress.NewService(f.db, f.progRepo, f.usrRepo)
	t.Cleanup(emailsvc.ClearSentMessages)

	teacher, err := usrSvc.RegisterTeacher(ctx, user.NewTeacher{
		Name: "Ravi", Email: "ravi@school.test", Grade: core.Grade9,
		Subjects: []core.Subject{core.SubjectMath, core.SubjectPhysics},
	})
	require.NoError(t, err)
	st, err := usrSvc.RegisterStudent(ctx, user.NewStudent{Name: "Asha", StudentID: "S100", Grade: core.Grade9})
	require.NoError(t, err)

	tp := teaching.TeacherProfile{Grade: "9", Subjects: []core.Subject{core.SubjectMath, core.SubjectPhysics}}
	require.NoError(t, tp.Validate(validate))
	_, err = f.svc.SetTeacherProfile(ctx, as(teacher), tp)
	require.NoError(t, err)

	ok, err := f.links.Exists(ctx, teacher.ID, st.ID)
	require.NoError(t, err)
	assert.True(t, ok, "profile update backfills links")

	_, err = progSvc.UpdateVideo(ctx, as(st), core.SubjectMath, 3)
	require.NoError(t, err)
	_, err = progSvc.UpdateNotesViewed(ctx, as(st), core.SubjectBiology)
	require.NoError(t, err)

	dash := f.svc.Dashboard(ctx, as(teacher))
	assert.Equal(t, teaching.StatusOK, dash.Status)
	assert.Equal(t, teaching.SourceLinks, dash.Source)
	require.Len(t, dash.StudentProgress, 1)
	row := dash.StudentProgress[0]
	assert.Equal(t, "S100", row.Student.StudentID)
	require.Len(t, row.Progress, 1)
	assert.Equal(t, core.SubjectMath, row.Progress[0].Subject)
	assert.Equal(t, 3, row.Progress[0].VideosCompleted)
}

func TestService_SetTeacherProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	usr := testutil.CreateUser(t, f.usrRepo, "Ravi", "ravi@school.test")
	s1 := testutil.CreateStudent(t, f.usrRepo, "Asha", "S001", core.Grade10)
	s2 := testutil.CreateStudent(t, f.usrRepo, "Binod", "S002", core.Grade10)
	testutil.CreateStudent(t, f.usrRepo, "Chitra", "S003", core.Grade8)
	testutil.LinkStudent(t, f.links, usr, s2)

	got, err := f.svc.SetTeacherProfile(ctx, as(usr), teaching.TeacherProfile{Grade: core.Grade10})
	require.NoError(t, err)
	assert.True(t, got.IsTeacher())
	assert.Equal(t, core.Grade10, got.Grade)
	assert.NotNil(t, got.Subjects)

	links, err := f.links.ListByTeacher(ctx, usr.ID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, s2.ID, links[0].StudentID)
	assert.Equal(t, s1.ID, links[1].StudentID)

	// idempotent
	_, err = f.svc.SetTeacherProfile(ctx, as(usr), teaching.TeacherProfile{Grade: core.Grade10})
	require.NoError(t, err)
	links, err = f.links.ListByTeacher(ctx, usr.ID)
	require.NoError(t, err)
	assert.Len(t, links, 2)

	_, err = f.svc.SetTeacherProfile(ctx, core.Principal{}, teaching.TeacherProfile{Grade: core.Grade10})
	assert.Equal(t, core.ErrUnauthorized, errors.Cause(err))
}

func TestService_ReconcileLinks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	t1 := testutil.CreateTeacher(t, f.usrRepo, "Ravi", "ravi@school.test", core.Grade9, nil)
	testutil.CreateTeacher(t, f.usrRepo, "Mina", "mina@school.test", "", nil)
	t3 := testutil.CreateTeacher(t, f.usrRepo, "Nila", "nila@school.test", core.Grade8, nil)
	testutil.CreateStudent(t, f.usrRepo, "Asha", "S001", core.Grade9)
	testutil.CreateStudent(t, f.usrRepo, "Binod", "S002", core.Grade9)
	testutil.CreateStudent(t, f.usrRepo, "Chitra", "S003", core.Grade8)

	n, err := f.svc.ReconcileLinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = f.svc.ReconcileLinks(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	l1, err := f.links.ListByTeacher(ctx, t1.ID)
	require.NoError(t, err)
	assert.Len(t, l1, 2)
	l3, err := f.links.ListByTeacher(ctx, t3.ID)
	require.NoError(t, err)
	assert.Len(t, l3, 1)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = f.svc.ReconcileLinks(cancelled)
	assert.Equal(t, context.Canceled, errors.Cause(err))
}

func TestService_SubjectProgress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	teacher := testutil.CreateTeacher(t, f.usrRepo, "Ravi", "ravi@school.test", core.Grade9, []core.Subject{core.SubjectMath})
	noGrade := testutil.CreateTeacher(t, f.usrRepo, "Mina", "mina@school.test", "", []core.Subject{core.SubjectMath})
	s1 := testutil.CreateStudent(t, f.usrRepo, "Asha", "S001", core.Grade9)
	s2 := testutil.CreateStudent(t, f.usrRepo, "Binod", "S002", core.Grade9)
	testutil.CreateStudent(t, f.usrRepo, "Chitra", "S003", core.Grade8)

	progSvc := progress.NewService(f.db, f.progRepo, f.usrRepo)
	_, err := progSvc.SubmitQuiz(ctx, as(s2), core.SubjectMath, []progress.QuizAnswer{{QuestionID: 1, IsCorrect: true}}, 10)
	require.NoError(t, err)
	_, err = progSvc.SubmitQuiz(ctx, as(s2), core.SubjectMath, []progress.QuizAnswer{{QuestionID: 1}}, 20)
	require.NoError(t, err)

	rows, err := f.svc.SubjectProgress(ctx, as(teacher), core.SubjectMath)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, s1.ID, rows[0].Student.ID)
	assert.Nil(t, rows[0].Progress)
	assert.NotNil(t, rows[0].QuizAttempts)
	assert.Empty(t, rows[0].QuizAttempts)
	assert.Equal(t, s2.ID, rows[1].Student.ID)
	require.NotNil(t, rows[1].Progress)
	assert.Equal(t, 0, *rows[1].Progress.QuizScore)
	assert.Len(t, rows[1].QuizAttempts, 2)

	_, err = f.svc.SubjectProgress(ctx, as(teacher), core.SubjectPhysics)
	assert.Equal(t, teaching.ErrNotTeachingSubject, errors.Cause(err))

	_, err = f.svc.SubjectProgress(ctx, as(s1), core.SubjectMath)
	assert.Equal(t, core.ErrUnauthorized, errors.Cause(err))
	_, err = f.svc.SubjectProgress(ctx, core.Principal{}, core.SubjectMath)
	assert.Equal(t, core.ErrUnauthorized, errors.Cause(err))

	rows, err = f.svc.SubjectProgress(ctx, as(noGrade), core.SubjectMath)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)

	_, err = f.svc.SubjectProgress(ctx, as(teacher), "chemistry")
	_, ok := errors.Cause(err).(*core.ValidationError)
	assert.True(t, ok)
}
