package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/progress"
	"github.com/sikhya/portal/core/teaching"
	"github.com/sikhya/portal/core/user"
)

func CreateTeacher(
	t *testing.T,
	repo user.Repository,
	name, email string,
	grade core.Grade,
	subjects []core.Subject,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if subjects == nil {
		subjects = []core.Subject{}
	}
	usr, err := repo.Create(context.Background(), user.User{
		Name:      name,
		Email:     email,
		Role:      user.RoleTeacher,
		Grade:     grade,
		Subjects:  subjects,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("CreateTeacher() failed: %v", err)
	}
	return usr
}

func CreateStudent(t *testing.T, repo user.Repository, name, studentID string, grade core.Grade) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	usr, err := repo.Create(context.Background(), user.User{
		Name:      name,
		StudentID: studentID,
		Role:      user.RoleStudent,
		Grade:     grade,
		Subjects:  core.CopySubjects(core.AllSubjects),
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return usr
}

// CreateUser stores a user that has not picked a role yet.
func CreateUser(t *testing.T, repo user.Repository, name, email string) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	usr, err := repo.Create(context.Background(), user.User{
		Name:      name,
		Email:     email,
		Subjects:  []core.Subject{},
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func LinkStudent(t *testing.T, repo teaching.LinkRepository, teacher, student user.User) teaching.Link {
	t.Helper()
	l, err := repo.Create(context.Background(), teaching.Link{
		TeacherID: teacher.ID,
		StudentID: student.ID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("LinkStudent() failed: %v", err)
	}
	return l
}

// SaveProgress stores a record for (usr, subject) with videos completed videos.
func SaveProgress(t *testing.T, repo progress.Repository, usr user.User, subject core.Subject, videos int) progress.Progress {
	t.Helper()
	p := progress.New(usr.ID, subject)
	p.VideosCompleted = videos
	p, err := repo.Save(context.Background(), p)
	if err != nil {
		t.Fatalf("SaveProgress() failed: %v", err)
	}
	return p
}

type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger records every entry it is given.
type Logger struct {
	mu      sync.Mutex
	entries []LogEntry
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *Logger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("debug", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("info", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("warn", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("error", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log("fatal", msg, args)
	panic(fmt.Sprintf("fatal: %s", msg))
}
