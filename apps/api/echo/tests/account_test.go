package tests

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/sikhya/portal/apps/api/echo"
	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/user"
	testutil "github.com/sikhya/portal/tests"
)

// checkAuthResponse checks that rec holds a fresh token issued to the returned user.
func checkAuthResponse(t *testing.T, rec *httptest.ResponseRecorder, wantCode int) echoapi.AuthResponse {
	t.Helper()
	require.Equal(t, wantCode, rec.Code, rec.Body.String())

	var resp echoapi.AuthResponse
	decode(t, rec, &resp)
	require.NotEmpty(t, resp.Token)

	claims := new(echoapi.Claims)
	_, err := jwt.ParseWithClaims(resp.Token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(conf.SecretKey), nil
	})
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.Subject)
	assert.Equal(t, resp.User.IsStudent(), claims.IsStudent)
	assert.Equal(t, resp.User.IsTeacher(), claims.IsTeacher)
	return resp
}

func Test_accountApi_registerTeacher(t *testing.T) {
	app := setup(t)
	path := "/v1/teachers/register"

	existing := testutil.CreateTeacher(t, usrRepo, "Asha", "asha@school.test", core.Grade8, nil)

	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"name":  "this field is required",
				"email": "this field is required",
				"grade": "this field is required",
			}),
		},
		{
			name: "missing grade", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.NewTeacher{Name: "Ravi", Email: "ravi@school.test"}),
			wantData: marchallObj(t, map[string]string{"grade": "this field is required"}),
		},
		{
			name: "invalid fields", wantCode: http.StatusBadRequest,
			body: marchallObj(t, user.NewTeacher{Name: "  ", Email: "lol", Grade: "7", Subjects: []core.Subject{"chemistry"}}),
			wantData: marchallObj(t, map[string]string{
				"name":        "this field is required",
				"email":       "email must be a valid email address",
				"grade":       "must be one of 8, 9 or 10",
				"subjects[0]": "must be one of math, physics, english, biology or punjabi",
			}),
		},
		{
			name: "email taken", wantCode: http.StatusConflict,
			body:     marchallObj(t, user.NewTeacher{Name: "Other", Email: " ASHA@school.test ", Grade: core.Grade8}),
			wantData: marchallObj(t, map[string]string{"email": user.ErrEmailExists.Error()}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = path
	}
	runTests(t, app, tests)

	t.Run("registered", func(t *testing.T) {
		body := marchallObj(t, user.NewTeacher{
			Name:     "Ravi",
			Email:    "Ravi@School.test",
			School:   "Hill School",
			Grade:    core.Grade9,
			Subjects: []core.Subject{core.SubjectMath, core.SubjectPhysics},
		})
		req, rec := newRequest(http.MethodPost, path, body)
		app.ServeHTTP(rec, req)

		resp := checkAuthResponse(t, rec, http.StatusCreated)
		assert.NotEqual(t, existing.ID, resp.User.ID)
		assert.Equal(t, "ravi@school.test", resp.User.Email)
		assert.Equal(t, user.RoleTeacher, resp.User.Role)
		assert.Equal(t, core.Grade9, resp.User.Grade)
		assert.Equal(t, []core.Subject{core.SubjectMath, core.SubjectPhysics}, resp.User.Subjects)

		stored, err := usrRepo.GetByEmail(context.Background(), "ravi@school.test")
		require.NoError(t, err)
		assert.Equal(t, resp.User.ID, stored.ID)
	})
}

func Test_accountApi_loginStudent(t *testing.T) {
	app := setup(t)
	path := "/v1/students/login"

	student := testutil.CreateStudent(t, usrRepo, "Simran", "S100", core.Grade9)
	testutil.CreateTeacher(t, usrRepo, "Asha", "asha@school.test", core.Grade9, nil)

	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"student_id": "this field is required"}),
		},
		{
			name: "unknown student ID", wantCode: http.StatusNotFound,
			body:     marchallObj(t, user.StudentLogin{StudentID: "S999"}),
			wantData: marchallObj(t, httpErr{Error: "Invalid student ID"}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = path
	}
	runTests(t, app, tests)

	t.Run("logged in", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, path, marchallObj(t, user.StudentLogin{StudentID: " S100 "}))
		app.ServeHTTP(rec, req)

		resp := checkAuthResponse(t, rec, http.StatusOK)
		assert.Equal(t, student.ID, resp.User.ID)
		assert.Equal(t, core.Grade9, resp.User.Grade)
	})
}

func Test_accountApi_registerStudent(t *testing.T) {
	app := setup(t)
	path := "/v1/students/register"

	admin := createAdmin(t)
	teacher := testutil.CreateTeacher(t, usrRepo, "Asha", "asha@school.test", core.Grade9, nil)
	testutil.CreateStudent(t, usrRepo, "Simran", "S100", core.Grade9)
	adminToken := getToken(t, admin)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", token: getToken(t, teacher), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "required fields", token: adminToken, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"name":       "this field is required",
				"student_id": "this field is required",
				"grade":      "this field is required",
			}),
		},
		{
			name: "student ID taken", token: adminToken, wantCode: http.StatusConflict,
			body:     marchallObj(t, user.NewStudent{Name: "Other", StudentID: "S100", Grade: core.Grade8}),
			wantData: marchallObj(t, map[string]string{"student_id": user.ErrStudentIDExists.Error()}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = path
	}
	runTests(t, app, tests)

	t.Run("registered", func(t *testing.T) {
		body := marchallObj(t, user.NewStudent{Name: "Gurpreet", StudentID: "S101", Grade: core.Grade10, School: "Hill School"})
		req, rec := newAuthRequest(http.MethodPost, path, adminToken, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var usr user.User
		decode(t, rec, &usr)
		stored, err := usrRepo.GetByStudentID(context.Background(), "S101")
		require.NoError(t, err)
		assert.Equal(t, stored.ID, usr.ID)
		assert.Equal(t, user.RoleStudent, usr.Role)
		assert.Equal(t, core.AllSubjects, usr.Subjects)
	})
}

func Test_accountApi_me(t *testing.T) {
	app := setup(t)

	student := testutil.CreateStudent(t, usrRepo, "Simran", "S100", core.Grade9)
	ghost := user.User{ID: "00000000-0000-0000-0000-000000000000", Name: "Ghost"}

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Invalid token", token: "lol", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"})},
		{name: "Unknown user", token: getToken(t, ghost), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errNotAuthed)},
		{name: "Me", token: getToken(t, student), wantData: marchallObj(t, student)},
	}
	for i := range tests {
		tests[i].method = http.MethodGet
		tests[i].path = "/v1/me"
	}
	runTests(t, app, tests)
}

func Test_accountApi_setStudentProfile(t *testing.T) {
	app := setup(t)
	path := "/v1/me/student-profile"

	usr := testutil.CreateUser(t, usrRepo, "Simran", "simran@school.test")
	token := getToken(t, usr)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "invalid grade", token: token, wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.StudentProfile{Grade: "12"}),
			wantData: marchallObj(t, map[string]string{"grade": "must be one of 8, 9 or 10"}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPut
		tests[i].path = path
	}
	runTests(t, app, tests)

	t.Run("onboarded", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, path, token, marchallObj(t, user.StudentProfile{Grade: core.Grade10}))
		app.ServeHTTP(rec, req)

		resp := checkAuthResponse(t, rec, http.StatusOK)
		assert.Equal(t, usr.ID, resp.User.ID)
		assert.Equal(t, user.RoleStudent, resp.User.Role)
		assert.Equal(t, core.Grade10, resp.User.Grade)
	})
}

func Test_accountApi_setTeacherProfile(t *testing.T) {
	app := setup(t)
	path := "/v1/me/teacher-profile"

	usr := testutil.CreateUser(t, usrRepo, "Asha", "asha@school.test")
	student := testutil.CreateStudent(t, usrRepo, "Simran", "S100", core.Grade8)
	testutil.CreateStudent(t, usrRepo, "Gurpreet", "S101", core.Grade9)
	token := getToken(t, usr)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "required fields", token: token, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"grade": "this field is required"}),
		},
		{
			name: "duplicate subjects", token: token, wantCode: http.StatusBadRequest,
			body: marchallObj(t, map[string]interface{}{"grade": "8", "subjects": []string{"math", "math"}}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPut
		tests[i].path = path
	}
	runTests(t, app, tests)

	t.Run("onboarded", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{"grade": "8", "subjects": []string{"math", "english"}})
		req, rec := newAuthRequest(http.MethodPut, path, token, body)
		app.ServeHTTP(rec, req)

		resp := checkAuthResponse(t, rec, http.StatusOK)
		assert.Equal(t, user.RoleTeacher, resp.User.Role)
		assert.Equal(t, core.Grade8, resp.User.Grade)
		assert.Equal(t, []core.Subject{core.SubjectMath, core.SubjectEnglish}, resp.User.Subjects)

		links, err := linkRepo.ListByTeacher(context.Background(), usr.ID)
		require.NoError(t, err)
		require.Len(t, links, 1)
		assert.Equal(t, student.ID, links[0].StudentID)
	})
}
