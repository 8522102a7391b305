package inmemdb

import (
	"context"
	"sync"

	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/progress"
	"github.com/sikhya/portal/core/teaching"
	"github.com/sikhya/portal/core/user"
)

type txKey struct{}

// DB is a process-local store. Rows are kept in insertion order.
type DB struct {
	mu          sync.Mutex
	users       []user.User
	progress    []progress.Progress
	attempts    []progress.QuizAttempt
	submissions []progress.AssignmentSubmission
	links       []teaching.Link
}

var _ core.Transactor = (*DB)(nil)

func Open() *DB {
	return new(DB)
}

// InTx runs fn holding the store lock. Changes made by fn are discarded when it fails.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if db.inTx(ctx) {
		return fn(ctx)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	snap := db.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, db)); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

func (db *DB) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*DB)
	return owner == db
}

// lock acquires the store lock unless ctx already holds it through InTx.
func (db *DB) lock(ctx context.Context) func() {
	if db.inTx(ctx) {
		return func() {}
	}
	db.mu.Lock()
	return db.mu.Unlock
}

type snapshot struct {
	users       []user.User
	progress    []progress.Progress
	attempts    []progress.QuizAttempt
	submissions []progress.AssignmentSubmission
	links       []teaching.Link
}

// rows are replaced on update, never mutated in place, so shallow copies are enough.
func (db *DB) snapshot() snapshot {
	return snapshot{
		users:       append([]user.User(nil), db.users...),
		progress:    append([]progress.Progress(nil), db.progress...),
		attempts:    append([]progress.QuizAttempt(nil), db.attempts...),
		submissions: append([]progress.AssignmentSubmission(nil), db.submissions...),
		links:       append([]teaching.Link(nil), db.links...),
	}
}

func (db *DB) restore(s snapshot) {
	db.users = s.users
	db.progress = s.progress
	db.attempts = s.attempts
	db.submissions = s.submissions
	db.links = s.links
}

// Reset drops every row.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.restore(snapshot{})
}
