package logsvc

import (
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/user"
)

type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// personScope is the custom data reported with a user: enough to tell which
// roster or dashboard scope an occurrence belongs to.
func personScope(usr user.User) map[string]interface{} {
	scope := map[string]interface{}{"role": string(usr.Role)}
	if usr.Grade != "" {
		scope["grade"] = string(usr.Grade)
	}
	if usr.StudentID != "" {
		scope["student_id"] = usr.StudentID
	}
	if usr.IsTeacher() {
		subjects := make([]string, len(usr.Subjects))
		for i, subj := range usr.Subjects {
			subjects[i] = string(subj)
		}
		scope["subjects"] = subjects
	}
	return scope
}

// prepare builds the rollbar args: msg, then errors and one custom data map.
// rollbar keeps only the last map it is given, so every map arg and the scope
// of the first user.User arg (which also becomes the rollbar person) are merged.
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var usrSet bool
	custom := make(map[string]interface{})
	newArgs := make([]interface{}, 0, len(args)+2)
	newArgs = append(newArgs, msg)
	for _, arg := range args {
		switch arg := arg.(type) {
		case user.User:
			if !usrSet { // only set one User
				rollbar.SetPerson(arg.ID, arg.Name, arg.Email)
				custom["user"] = personScope(arg)
				usrSet = true
			}
		case map[string]interface{}:
			for k, v := range arg {
				custom[k] = v
			}
		default:
			newArgs = append(newArgs, arg)
		}
	}
	if !usrSet {
		rollbar.ClearPerson()
	}
	if len(custom) > 0 {
		newArgs = append(newArgs, custom)
	}
	return newArgs
}

func (l RollbarLogger) print(msg string, args []interface{}) {
	l.std.Println(msg)
	for _, arg := range args {
		if usr, ok := arg.(user.User); ok {
			l.std.Printf("user %s %+v\n", usr.ID, personScope(usr))
			continue
		}
		l.std.Printf("%+v\n", arg)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.print(msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	rollbar.Critical(l.prepare(msg, args)...)
	l.print(msg, args)
	l.std.Fatal(msg)
}
