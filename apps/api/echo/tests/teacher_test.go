package tests

import (
	"net/http"
	"testing"

	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/progress"
	"github.com/sikhya/portal/core/teaching"
	"github.com/sikhya/portal/core/user"
	testutil "github.com/sikhya/portal/tests"
)

func Test_teacherApi_dashboard(t *testing.T) {
	app := setup(t)
	path := "/v1/teacher/dashboard"

	teacher := testutil.CreateTeacher(t, usrRepo, "Asha", "asha@school.test", core.Grade9, []core.Subject{core.SubjectMath})
	unassigned := testutil.CreateTeacher(t, usrRepo, "Ravi", "ravi@school.test", "", nil)
	newcomer := testutil.CreateTeacher(t, usrRepo, "Meena", "meena@school.test", core.Grade10, nil)
	linked := testutil.CreateStudent(t, usrRepo, "Simran", "S100", core.Grade9)
	testutil.CreateStudent(t, usrRepo, "Gurpreet", "S101", core.Grade9)
	testutil.LinkStudent(t, linkRepo, teacher, linked)

	math := testutil.SaveProgress(t, progRepo, linked, core.SubjectMath, 4)
	testutil.SaveProgress(t, progRepo, linked, core.SubjectEnglish, 2)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "students from links", token: getToken(t, teacher),
			wantData: marchallObj(t, teaching.Dashboard{
				Teacher: &teacher,
				StudentProgress: []teaching.StudentProgress{
					{Student: linked, Progress: []progress.Progress{math}},
				},
				Source: teaching.SourceLinks,
				Status: teaching.StatusOK,
			}),
		},
		{
			name: "no grade", token: getToken(t, unassigned),
			wantData: marchallObj(t, teaching.Dashboard{
				Teacher:         &unassigned,
				StudentProgress: []teaching.StudentProgress{},
				Status:          teaching.StatusIncompleteProfile,
			}),
		},
		{
			name: "no students anywhere", token: getToken(t, newcomer),
			wantData: marchallObj(t, teaching.Dashboard{
				Teacher:         &newcomer,
				StudentProgress: []teaching.StudentProgress{},
				Source:          teaching.SourceSubjects,
				Status:          teaching.StatusOK,
			}),
		},
		{
			name: "unknown user", token: getToken(t, user.User{ID: "00000000-0000-0000-0000-000000000000"}),
			wantData: marchallObj(t, teaching.Dashboard{
				StudentProgress: []teaching.StudentProgress{},
				Status:          teaching.StatusIncompleteProfile,
			}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodGet
		tests[i].path = path
	}
	runTests(t, app, tests)
}

func Test_teacherApi_subjectProgress(t *testing.T) {
	app := setup(t)

	teacher := testutil.CreateTeacher(t, usrRepo, "Asha", "asha@school.test", core.Grade9, []core.Subject{core.SubjectMath})
	student := testutil.CreateStudent(t, usrRepo, "Simran", "S100", core.Grade9)
	idle := testutil.CreateStudent(t, usrRepo, "Gurpreet", "S101", core.Grade9)
	testutil.CreateStudent(t, usrRepo, "Harleen", "S102", core.Grade8)

	math := testutil.SaveProgress(t, progRepo, student, core.SubjectMath, 5)
	token := getToken(t, teacher)

	tests := []httpTest{
		{name: "Auth required", path: "/v1/teacher/subjects/math", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "students only", path: "/v1/teacher/subjects/math", token: getToken(t, student),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errNotAuthed),
		},
		{
			name: "not teaching", path: "/v1/teacher/subjects/english", token: token,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: teaching.ErrNotTeachingSubject.Error()}),
		},
		{
			name: "invalid subject", path: "/v1/teacher/subjects/chemistry", token: token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"subject": "invalid subject"}),
		},
		{
			name: "grade roster", path: "/v1/teacher/subjects/math", token: token,
			wantData: marchallObj(t, []teaching.SubjectStudent{
				{Student: student, Progress: &math, QuizAttempts: []progress.QuizAttempt{}},
				{Student: idle, QuizAttempts: []progress.QuizAttempt{}},
			}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodGet
	}
	runTests(t, app, tests)
}
