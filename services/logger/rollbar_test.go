package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/user"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewRollbarLogger(log.New(&buf, "", 0), core.NewTestConfig())
	l.Enable(false)

	usr := user.User{ID: "u1", Name: "Ravi", Email: "ravi@school.test"}
	args := l.prepare("boom", []interface{}{errors.New("cause"), usr, map[string]interface{}{"k": "v"}})
	assert.Len(t, args, 3, "the user is not forwarded as an arg")
	assert.Equal(t, "boom", args[0])

	l.Error("something failed", errors.New("cause"))
	assert.Contains(t, buf.String(), "something failed")
	assert.Contains(t, buf.String(), "cause")
}

func TestRollbarLogger_prepare_customData(t *testing.T) {
	l := NewRollbarLogger(log.New(new(bytes.Buffer), "", 0), core.NewTestConfig())
	l.Enable(false)

	teacher := user.User{
		ID: "t1", Name: "Asha", Email: "asha@school.test", Role: user.RoleTeacher,
		Grade: core.Grade9, Subjects: []core.Subject{core.SubjectMath, core.SubjectPhysics},
	}
	student := user.User{ID: "s1", Name: "Simran", Role: user.RoleStudent, Grade: core.Grade8, StudentID: "S100"}

	tests := []struct {
		name       string
		args       []interface{}
		wantCustom map[string]interface{}
	}{
		{name: "no custom data", args: []interface{}{errors.New("cause")}},
		{
			name: "teacher scope",
			args: []interface{}{errors.New("cause"), teacher},
			wantCustom: map[string]interface{}{
				"user": map[string]interface{}{"role": "teacher", "grade": "9", "subjects": []string{"math", "physics"}},
			},
		},
		{
			name: "student scope merged with maps",
			args: []interface{}{map[string]interface{}{"source": "links"}, student, teacher, map[string]interface{}{"subject": "math"}},
			wantCustom: map[string]interface{}{
				"source":  "links",
				"subject": "math",
				"user":    map[string]interface{}{"role": "student", "grade": "8", "student_id": "S100"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := l.prepare("boom", tt.args)
			last := args[len(args)-1]
			if tt.wantCustom == nil {
				_, isMap := last.(map[string]interface{})
				assert.False(t, isMap)
				return
			}
			assert.Equal(t, tt.wantCustom, last)
		})
	}
}

func TestRollbarLogger_printsUserScope(t *testing.T) {
	var buf bytes.Buffer
	l := NewRollbarLogger(log.New(&buf, "", 0), core.NewTestConfig())
	l.Enable(false)

	l.Warn("dashboard degraded", user.User{ID: "t1", Role: user.RoleTeacher, Grade: core.Grade10})
	assert.Contains(t, buf.String(), "user t1")
	assert.Contains(t, buf.String(), "grade:10")
}
