package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/sikhya/portal/apps/api/echo"
	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/teaching"
	"github.com/sikhya/portal/core/user"
	inmemdb "github.com/sikhya/portal/storage/database/inmem"
	testutil "github.com/sikhya/portal/tests"
)

var (
	usrRepo  user.Repository
	linkRepo teaching.LinkRepository
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	conf := core.NewTestConfig()
	conf.Storage.Driver = core.StoragePostgres

	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)
	linkRepo = inmemdb.NewLinkRepository(db)
	progRepo := inmemdb.NewProgressRepository(db)

	// start CLI
	var out bytes.Buffer
	return &commandLine{
		conf:     conf,
		validate: validate,
		usrSvc:   user.NewService(db, usrRepo, nil),
		teachSvc: teaching.NewService(db, linkRepo, usrRepo, progRepo, new(testutil.Logger)),
		out:      &out,
	}, &out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantOut    string
}

func runCLITests(t *testing.T, cli *commandLine, out *bytes.Buffer, tests []cliTest) {
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			out.Reset()
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				if errors.Cause(err) != tt.wantErr {
					t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
				}
			case tt.wantErrStr != "":
				if err == nil || err.Error() != tt.wantErrStr {
					t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
				}
			case err != nil:
				t.Errorf("cli.run() unexpected error = %v", err)
			}
			if tt.wantOut != "" && !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("cli.run() output = %q, want it to contain %q", out.String(), tt.wantOut)
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, out := setup(t)

	gooseRunFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no command", wantErr: errHelp, wantOut: "Usage:"},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "lessons", "sql"}},
	}
	runCLITests(t, cli, out, tests)

	t.Run("bolt store", func(t *testing.T) {
		cli.conf.Storage.Driver = core.StorageBolt
		defer func() { cli.conf.Storage.Driver = core.StoragePostgres }()
		assert.Equal(t, errNoMigrations, cli.run([]string{"admin", "migrate", "up"}))
	})
}

func Test_commandLine_addStudent(t *testing.T) {
	cli, out := setup(t)

	testutil.CreateStudent(t, usrRepo, "Simran", "S100", core.Grade9)

	tests := []cliTest{
		{name: "no args", args: []string{"addstudent"}, wantErr: errHelp},
		{name: "grade missing", args: []string{"addstudent", "-name", "Gurpreet", "-id", "S101"}, wantErr: errHelp},
		{name: "student ID taken", args: []string{"addstudent", "-name", "Other", "-id", "S100", "-grade", "8"}, wantErrStr: user.ErrStudentIDExists.Error()},
		{
			name: "registered", args: []string{"addstudent", "-name", "Gurpreet", "-id", " S101 ", "-grade", "10", "-school", "Hill School"},
			wantOut: "student S101 registered",
		},
	}
	runCLITests(t, cli, out, tests)

	t.Run("invalid grade", func(t *testing.T) {
		err := cli.run([]string{"admin", "addstudent", "-name", "Harleen", "-id", "S102", "-grade", "12"})
		var vErrs validator.ValidationErrors
		require.True(t, errors.As(err, &vErrs), "err = %v", err)
		assert.Equal(t, "grade", vErrs[0].Field())
	})

	usr, err := usrRepo.GetByStudentID(context.Background(), "S101")
	require.NoError(t, err)
	assert.Equal(t, user.RoleStudent, usr.Role)
	assert.Equal(t, core.Grade10, usr.Grade)
	assert.Equal(t, "Hill School", usr.School)
}

func Test_commandLine_addAdmin(t *testing.T) {
	cli, out := setup(t)
	ctx := context.Background()

	pending := testutil.CreateUser(t, usrRepo, "Meena", "meena@school.test")
	testutil.CreateTeacher(t, usrRepo, "Asha", "asha@school.test", core.Grade9, nil)

	tests := []cliTest{
		{name: "no args", args: []string{"addadmin"}, wantErr: errHelp},
		{name: "email missing", args: []string{"addadmin", "-name", "Kiran"}, wantErr: errHelp},
		{name: "teacher email", args: []string{"addadmin", "-name", "Asha", "-email", "asha@school.test"}, wantErrStr: user.ErrTeacherEmail.Error()},
		{name: "created", args: []string{"addadmin", "-name", "Kiran", "-email", " Kiran@School.test "}, wantOut: "admin kiran@school.test ready"},
		{name: "promoted", args: []string{"addadmin", "-name", "Meena", "-email", "meena@school.test"}, wantOut: "admin meena@school.test ready"},
	}
	runCLITests(t, cli, out, tests)

	usr, err := usrRepo.GetByEmail(ctx, "meena@school.test")
	require.NoError(t, err)
	assert.Equal(t, pending.ID, usr.ID)
	assert.True(t, usr.IsAdmin())

	t.Run("admin token", func(t *testing.T) {
		out.Reset()
		require.NoError(t, cli.run([]string{"admin", "token", "-email", "kiran@school.test"}))

		claims := new(echoapi.Claims)
		_, err := jwt.ParseWithClaims(strings.TrimSpace(out.String()), claims, func(*jwt.Token) (interface{}, error) {
			return []byte(cli.conf.SecretKey), nil
		})
		require.NoError(t, err)
		assert.True(t, claims.IsAdmin)
		assert.False(t, claims.IsTeacher)
	})
}

func Test_commandLine_linkStudents(t *testing.T) {
	cli, out := setup(t)
	ctx := context.Background()

	asha := testutil.CreateTeacher(t, usrRepo, "Asha", "asha@school.test", core.Grade9, nil)
	ravi := testutil.CreateTeacher(t, usrRepo, "Ravi", "ravi@school.test", core.Grade8, nil)
	testutil.CreateUser(t, usrRepo, "Meena", "meena@school.test")
	testutil.CreateStudent(t, usrRepo, "Simran", "S100", core.Grade9)
	testutil.CreateStudent(t, usrRepo, "Gurpreet", "S101", core.Grade9)
	testutil.CreateStudent(t, usrRepo, "Harleen", "S102", core.Grade8)

	tests := []cliTest{
		{name: "unknown teacher", args: []string{"linkstudents", "-email", "lol@school.test"}, wantErr: user.ErrNotFound},
		{name: "not a teacher", args: []string{"linkstudents", "-email", "meena@school.test"}, wantErr: errNotTeacher},
		{name: "one teacher", args: []string{"linkstudents", "-email", "ASHA@school.test"}, wantOut: "2 link(s) created"},
		{name: "all teachers", args: []string{"linkstudents"}, wantOut: "1 link(s) created"},
		{name: "idempotent", args: []string{"linkstudents"}, wantOut: "0 link(s) created"},
	}
	runCLITests(t, cli, out, tests)

	links, err := linkRepo.ListByTeacher(ctx, asha.ID)
	require.NoError(t, err)
	assert.Len(t, links, 2)
	links, err = linkRepo.ListByTeacher(ctx, ravi.ID)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func Test_commandLine_token(t *testing.T) {
	cli, out := setup(t)

	teacher := testutil.CreateTeacher(t, usrRepo, "Asha", "asha@school.test", core.Grade9, nil)
	student := testutil.CreateStudent(t, usrRepo, "Simran", "S100", core.Grade9)

	tests := []cliTest{
		{name: "no identity", args: []string{"token"}, wantErr: errTokenIdentity},
		{name: "both identities", args: []string{"token", "-email", "asha@school.test", "-student-id", "S100"}, wantErr: errTokenIdentity},
		{name: "unknown email", args: []string{"token", "-email", "lol@school.test"}, wantErr: user.ErrNotFound},
	}
	runCLITests(t, cli, out, tests)

	for _, usr := range []user.User{teacher, student} {
		args := []string{"admin", "token", "-email", usr.Email}
		if usr.IsStudent() {
			args = []string{"admin", "token", "-student-id", usr.StudentID}
		}

		t.Run("token for "+usr.Name, func(t *testing.T) {
			out.Reset()
			require.NoError(t, cli.run(args))

			claims := new(echoapi.Claims)
			_, err := jwt.ParseWithClaims(strings.TrimSpace(out.String()), claims, func(*jwt.Token) (interface{}, error) {
				return []byte(cli.conf.SecretKey), nil
			})
			require.NoError(t, err)
			assert.Equal(t, usr.ID, claims.Subject)
			assert.Equal(t, usr.IsTeacher(), claims.IsTeacher)
		})
	}
}
