// Package storetest holds the behavior every storage backend must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/progress"
	"github.com/sikhya/portal/core/teaching"
	"github.com/sikhya/portal/core/user"
)

type UserRepository interface {
	user.Repository
	Delete(ctx context.Context, id string) error
}

// Store is one backend wired up for a test.
type Store struct {
	Tx       core.Transactor
	Users    UserRepository
	Progress progress.Repository
	Links    teaching.LinkRepository
}

// Run runs the conformance suite. open must return an empty store.
func Run(t *testing.T, open func(t *testing.T) Store) {
	t.Run("users", func(t *testing.T) { testUsers(t, open(t)) })
	t.Run("progress", func(t *testing.T) { testProgress(t, open(t)) })
	t.Run("quiz attempts", func(t *testing.T) { testQuizAttempts(t, open(t)) })
	t.Run("submissions", func(t *testing.T) { testSubmissions(t, open(t)) })
	t.Run("links", func(t *testing.T) { testLinks(t, open(t)) })
	t.Run("transactions", func(t *testing.T) { testTransactions(t, open(t)) })
}

// now is truncated to what every backend can store.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func newStudent(name, studentID string, grade core.Grade) user.User {
	ts := now()
	return user.User{
		Name:      name,
		StudentID: studentID,
		Role:      user.RoleStudent,
		Grade:     grade,
		Subjects:  core.CopySubjects(core.AllSubjects),
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}

func newTeacher(name, email string, grade core.Grade, subjects ...core.Subject) user.User {
	ts := now()
	return user.User{
		Name:      name,
		Email:     email,
		Role:      user.RoleTeacher,
		Grade:     grade,
		Subjects:  subjects,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}

func conflictField(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	cErr, ok := errors.Cause(err).(*core.ConflictError)
	require.Truef(t, ok, "expected a conflict error, got %v", err)
	return cErr.Field
}

func ids(users []user.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.ID)
	}
	return out
}

func testUsers(t *testing.T, s Store) {
	ctx := context.Background()

	st1, err := s.Users.Create(ctx, newStudent("Asha", "S001", core.Grade9))
	require.NoError(t, err)
	require.NotEmpty(t, st1.ID)
	teacher, err := s.Users.Create(ctx, newTeacher("Ravi", "ravi@school.test", core.Grade9, core.SubjectMath))
	require.NoError(t, err)
	st2, err := s.Users.Create(ctx, newStudent("Binod", "S002", core.Grade10))
	require.NoError(t, err)
	st3, err := s.Users.Create(ctx, newStudent("Chitra", "S003", core.Grade9))
	require.NoError(t, err)

	got, err := s.Users.GetByID(ctx, st1.ID)
	require.NoError(t, err)
	assert.Equal(t, "Asha", got.Name)
	assert.Equal(t, core.AllSubjects, got.Subjects)
	assert.True(t, got.CreatedAt.Equal(st1.CreatedAt))

	got, err = s.Users.GetByEmail(ctx, "ravi@school.test")
	require.NoError(t, err)
	assert.Equal(t, teacher.ID, got.ID)
	assert.Equal(t, []core.Subject{core.SubjectMath}, got.Subjects)

	got, err = s.Users.GetByStudentID(ctx, "S002")
	require.NoError(t, err)
	assert.Equal(t, st2.ID, got.ID)

	_, err = s.Users.GetByID(ctx, "missing")
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	_, err = s.Users.GetByEmail(ctx, "nobody@school.test")
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	_, err = s.Users.GetByStudentID(ctx, "S999")
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))

	_, err = s.Users.Create(ctx, newTeacher("Other", "ravi@school.test", core.Grade8))
	assert.Equal(t, "email", conflictField(t, err))
	_, err = s.Users.Create(ctx, newStudent("Other", "S001", core.Grade8))
	assert.Equal(t, "student_id", conflictField(t, err))

	students, err := s.Users.QueryByRole(ctx, user.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, []string{st1.ID, st2.ID, st3.ID}, ids(students))

	students, err = s.Users.QueryByRoleAndGrade(ctx, user.RoleStudent, core.Grade9)
	require.NoError(t, err)
	assert.Equal(t, []string{st1.ID, st3.ID}, ids(students))

	none, err := s.Users.QueryByRoleAndGrade(ctx, user.RoleStudent, core.Grade8)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	// update
	st2.Grade = core.Grade9
	st2.School = "Hill School"
	updated, err := s.Users.Update(ctx, st2)
	require.NoError(t, err)
	assert.Equal(t, "Hill School", updated.School)
	assert.True(t, updated.CreatedAt.Equal(st2.CreatedAt))

	students, err = s.Users.QueryByRoleAndGrade(ctx, user.RoleStudent, core.Grade9)
	require.NoError(t, err)
	assert.Equal(t, []string{st1.ID, st2.ID, st3.ID}, ids(students), "update keeps creation order")
	none, err = s.Users.QueryByRoleAndGrade(ctx, user.RoleStudent, core.Grade10)
	require.NoError(t, err)
	assert.Empty(t, none, "the old grade no longer lists the student")
	teachers, err := s.Users.QueryByRole(ctx, user.RoleTeacher)
	require.NoError(t, err)
	assert.Equal(t, []string{teacher.ID}, ids(teachers))

	st3.StudentID = "S001"
	_, err = s.Users.Update(ctx, st3)
	assert.Equal(t, "student_id", conflictField(t, err))

	teacher.Email = "ravi.k@school.test"
	_, err = s.Users.Update(ctx, teacher)
	require.NoError(t, err)
	_, err = s.Users.GetByEmail(ctx, "ravi@school.test")
	assert.Equal(t, user.ErrNotFound, errors.Cause(err), "old email is released")
	_, err = s.Users.Create(ctx, newTeacher("Other", "ravi@school.test", core.Grade8))
	assert.NoError(t, err)

	ghost := newStudent("Ghost", "S404", core.Grade8)
	ghost.ID = "6a2f41a3-c54c-fce8-32d2-0324e1c32e22"
	_, err = s.Users.Update(ctx, ghost)
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))

	// delete
	require.NoError(t, s.Users.Delete(ctx, st1.ID))
	_, err = s.Users.GetByID(ctx, st1.ID)
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	_, err = s.Users.GetByStudentID(ctx, "S001")
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	students, err = s.Users.QueryByRole(ctx, user.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, []string{st2.ID, st3.ID}, ids(students))
}

func testProgress(t *testing.T, s Store) {
	ctx := context.Background()

	st, err := s.Users.Create(ctx, newStudent("Asha", "S001", core.Grade9))
	require.NoError(t, err)
	other, err := s.Users.Create(ctx, newStudent("Binod", "S002", core.Grade9))
	require.NoError(t, err)

	_, err = s.Progress.Get(ctx, st.ID, core.SubjectMath)
	assert.Equal(t, progress.ErrNotFound, errors.Cause(err))

	empty, err := s.Progress.ListByUser(ctx, st.ID)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	prog := progress.New(st.ID, core.SubjectMath)
	prog.CreatedAt = now()
	prog.UpdatedAt = prog.CreatedAt
	prog.VideosCompleted = 2
	saved, err := s.Progress.Save(ctx, prog)
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)
	assert.Nil(t, saved.QuizScore)

	score := 7
	saved.QuizScore = &score
	saved.QuizCompleted = true
	saved.NotesViewed = true
	saved.UpdatedAt = now()
	resaved, err := s.Progress.Save(ctx, saved)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, resaved.ID, "one record per (user, subject)")

	got, err := s.Progress.Get(ctx, st.ID, core.SubjectMath)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, 2, got.VideosCompleted)
	require.NotNil(t, got.QuizScore)
	assert.Equal(t, 7, *got.QuizScore)
	assert.True(t, got.QuizCompleted)
	assert.True(t, got.NotesViewed)
	assert.True(t, got.CreatedAt.Equal(prog.CreatedAt))

	_, err = s.Progress.Save(ctx, progress.New(st.ID, core.SubjectPhysics))
	require.NoError(t, err)
	_, err = s.Progress.Save(ctx, progress.New(other.ID, core.SubjectMath))
	require.NoError(t, err)

	mine, err := s.Progress.ListByUser(ctx, st.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, core.SubjectMath, mine[0].Subject)
	assert.Equal(t, core.SubjectPhysics, mine[1].Subject)

	math, err := s.Progress.ListBySubject(ctx, core.SubjectMath)
	require.NoError(t, err)
	require.Len(t, math, 2)
	assert.Equal(t, st.ID, math[0].UserID)
	assert.Equal(t, other.ID, math[1].UserID)

	english, err := s.Progress.ListBySubject(ctx, core.SubjectEnglish)
	require.NoError(t, err)
	assert.NotNil(t, english)
	assert.Empty(t, english)
}

func testQuizAttempts(t *testing.T, s Store) {
	ctx := context.Background()

	st, err := s.Users.Create(ctx, newStudent("Asha", "S001", core.Grade9))
	require.NoError(t, err)

	for i, score := range []int{1, 2} {
		a, err := s.Progress.AddQuizAttempt(ctx, progress.QuizAttempt{
			UserID:         st.ID,
			Subject:        core.SubjectMath,
			Score:          score,
			TotalQuestions: 2,
			TimeSpent:      30 * (i + 1),
			Answers: []progress.QuizAnswer{
				{QuestionID: 1, SelectedAnswer: "4", IsCorrect: true},
				{QuestionID: 2, SelectedAnswer: "5", IsCorrect: score == 2},
			},
			CreatedAt: now(),
		})
		require.NoError(t, err)
		require.NotEmpty(t, a.ID)
	}
	_, err = s.Progress.AddQuizAttempt(ctx, progress.QuizAttempt{UserID: st.ID, Subject: core.SubjectPhysics, CreatedAt: now()})
	require.NoError(t, err)

	attempts, err := s.Progress.ListQuizAttempts(ctx, st.ID, core.SubjectMath)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, 1, attempts[0].Score)
	assert.Equal(t, 2, attempts[1].Score)
	assert.Equal(t, 60, attempts[1].TimeSpent)
	assert.Equal(t, []progress.QuizAnswer{
		{QuestionID: 1, SelectedAnswer: "4", IsCorrect: true},
		{QuestionID: 2, SelectedAnswer: "5", IsCorrect: true},
	}, attempts[1].Answers)

	none, err := s.Progress.ListQuizAttempts(ctx, st.ID, core.SubjectEnglish)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func testSubmissions(t *testing.T, s Store) {
	ctx := context.Background()

	st, err := s.Users.Create(ctx, newStudent("Asha", "S001", core.Grade9))
	require.NoError(t, err)

	answers := [][]progress.AssignmentAnswer{
		{{QuestionID: 1, Answer: "first"}},
		{{QuestionID: 1, Answer: "second"}, {QuestionID: 2, Answer: "third"}},
	}
	for _, a := range answers {
		sub, err := s.Progress.AddSubmission(ctx, progress.AssignmentSubmission{
			UserID:      st.ID,
			Subject:     core.SubjectEnglish,
			Answers:     a,
			SubmittedAt: now(),
		})
		require.NoError(t, err)
		require.NotEmpty(t, sub.ID)
	}

	subs, err := s.Progress.ListSubmissions(ctx, st.ID, core.SubjectEnglish)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, answers[0], subs[0].Answers)
	assert.Equal(t, answers[1], subs[1].Answers)

	none, err := s.Progress.ListSubmissions(ctx, st.ID, core.SubjectMath)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func testLinks(t *testing.T, s Store) {
	ctx := context.Background()

	teacher, err := s.Users.Create(ctx, newTeacher("Ravi", "ravi@school.test", core.Grade9))
	require.NoError(t, err)
	var students []user.User
	for _, sid := range []string{"S001", "S002", "S003"} {
		st, err := s.Users.Create(ctx, newStudent(sid, sid, core.Grade9))
		require.NoError(t, err)
		students = append(students, st)
	}

	// created out of user order on purpose
	for _, i := range []int{2, 0} {
		l, err := s.Links.Create(ctx, teaching.Link{TeacherID: teacher.ID, StudentID: students[i].ID, CreatedAt: now()})
		require.NoError(t, err)
		require.NotEmpty(t, l.ID)
	}
	_, err = s.Links.Create(ctx, teaching.Link{TeacherID: teacher.ID, StudentID: students[0].ID, CreatedAt: now()})
	assert.Equal(t, teaching.ErrLinkExists, errors.Cause(err))

	ok, err := s.Links.Exists(ctx, teacher.ID, students[2].ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Links.Exists(ctx, teacher.ID, students[1].ID)
	require.NoError(t, err)
	assert.False(t, ok)

	links, err := s.Links.ListByTeacher(ctx, teacher.ID)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, students[2].ID, links[0].StudentID)
	assert.Equal(t, students[0].ID, links[1].StudentID)

	none, err := s.Links.ListByTeacher(ctx, students[0].ID)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func testTransactions(t *testing.T, s Store) {
	ctx := context.Background()
	errBoom := errors.New("boom")

	err := s.Tx.InTx(ctx, func(ctx context.Context) error {
		st, err := s.Users.Create(ctx, newStudent("Asha", "S001", core.Grade9))
		if err != nil {
			return err
		}
		if _, err = s.Progress.Save(ctx, progress.New(st.ID, core.SubjectMath)); err != nil {
			return err
		}
		return errBoom
	})
	assert.Equal(t, errBoom, errors.Cause(err))

	_, err = s.Users.GetByStudentID(ctx, "S001")
	assert.Equal(t, user.ErrNotFound, errors.Cause(err), "rolled back")
	math, err := s.Progress.ListBySubject(ctx, core.SubjectMath)
	require.NoError(t, err)
	assert.Empty(t, math)

	var id string
	err = s.Tx.InTx(ctx, func(ctx context.Context) error {
		return s.Tx.InTx(ctx, func(ctx context.Context) error {
			st, err := s.Users.Create(ctx, newStudent("Asha", "S001", core.Grade9))
			id = st.ID
			return err
		})
	})
	require.NoError(t, err)

	got, err := s.Users.GetByStudentID(ctx, "S001")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID, "nested transactions commit with the outer one")
}
