package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"

	. "github.com/sikhya/portal/apps/api/echo"
	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/catalog"
	"github.com/sikhya/portal/core/progress"
	"github.com/sikhya/portal/core/teaching"
	"github.com/sikhya/portal/core/user"
	emailsvc "github.com/sikhya/portal/services/email"
	inmemdb "github.com/sikhya/portal/storage/database/inmem"
	testutil "github.com/sikhya/portal/tests"
)

var (
	conf     *core.Config
	cat      *catalog.Catalog
	usrRepo  user.Repository
	progRepo progress.Repository
	linkRepo teaching.LinkRepository

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errNotAuthed    = httpErr{Error: "user not authenticated"}
)

func setup(t *testing.T) Server {
	conf = core.NewTestConfig()
	logger := new(testutil.Logger)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	var err error
	if cat, err = catalog.Load(); err != nil {
		t.Fatalf("catalog.Load() failed: %v", err)
	}

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)
	progRepo = inmemdb.NewProgressRepository(db)
	linkRepo = inmemdb.NewLinkRepository(db)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	emailsvc.ClearSentMessages()
	t.Cleanup(emailsvc.ClearSentMessages)

	// set up server
	return NewServer(&Options{
		Conf:           conf,
		DisableReqLogs: true,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		Catalog:        cat,
		UserSvc:        user.NewService(db, usrRepo, mailSvc),
		ProgressSvc:    progress.NewService(db, progRepo, usrRepo),
		TeachingSvc:    teaching.NewService(db, linkRepo, usrRepo, progRepo, logger),
	})
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	token, err := NewUserToken(usr, conf)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runTests(t *testing.T, app Server, tests []httpTest) {
	for _, tt := range tests {
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

// decode unmarshals the response body into v.
func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
}

func createAdmin(t *testing.T) user.User {
	t.Helper()
	usr := testutil.CreateUser(t, usrRepo, "Admin", "admin@school.test")
	usr.Role = user.RoleAdmin
	return update(t, usr)
}

func update(t *testing.T, usr user.User) user.User {
	t.Helper()
	usr, err := usrRepo.Update(testContext(), usr)
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	return usr
}

func testContext() context.Context {
	return context.Background()
}
