package boltdb

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/sikhya/portal/core"
)

var buckets = map[string][]byte{
	"users":             []byte("users"),
	"usersByID":         []byte("users_by_id"),
	"usersByEmail":      []byte("users_by_email"),
	"usersByStudentID":  []byte("users_by_student_id"),
	"usersByRole":       []byte("users_by_role"),
	"usersByRoleGrade":  []byte("users_by_role_grade"),
	"progress":          []byte("progress"),
	"progressByPair":    []byte("progress_by_pair"),
	"progressByUser":    []byte("progress_by_user"),
	"progressBySubject": []byte("progress_by_subject"),
	"quizAttempts":      []byte("quiz_attempts"),
	"submissions":       []byte("assignment_submissions"),
	"links":             []byte("teacher_students"),
	"linksByPair":       []byte("teacher_students_by_pair"),
}

var errBucketNotFound = errors.New("bucket not found")

type txKey struct{}

// DB stores JSON documents in bbolt buckets. Documents are keyed by a per-bucket
// sequence so prefix scans return them in insertion order.
type DB struct {
	bolt *bbolt.DB
}

var _ core.Transactor = (*DB)(nil)

// Open opens (or creates) the database file at path and its buckets.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating database directory")
	}

	bdb, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "opening bolt database")
	}

	err = bdb.Update(func(tx *bbolt.Tx) error {
		reindex := tx.Bucket(buckets["users"]) != nil && tx.Bucket(buckets["usersByRoleGrade"]) == nil
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return errors.Wrapf(err, "creating bucket %s", name)
			}
		}
		if reindex {
			return reindexUsers(tx)
		}
		return nil
	})
	if err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return &DB{bolt: bdb}, nil
}

func (db *DB) Close() error {
	return db.bolt.Close()
}

// InTx runs fn in a read-write bolt transaction carried by ctx.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if db.tx(ctx) != nil {
		return fn(ctx)
	}
	return db.bolt.Update(func(tx *bbolt.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (db *DB) tx(ctx context.Context) *bbolt.Tx {
	tx, _ := ctx.Value(txKey{}).(*bbolt.Tx)
	if tx != nil && tx.DB() == db.bolt {
		return tx
	}
	return nil
}

// view runs fn in the transaction of ctx, or in a new read-only one.
func (db *DB) view(ctx context.Context, fn func(tx *bbolt.Tx) error) error {
	if tx := db.tx(ctx); tx != nil {
		return fn(tx)
	}
	return db.bolt.View(fn)
}

// update runs fn in the transaction of ctx, or in a new read-write one.
func (db *DB) update(ctx context.Context, fn func(tx *bbolt.Tx) error) error {
	if tx := db.tx(ctx); tx != nil {
		if !tx.Writable() {
			return errors.New("read-only transaction")
		}
		return fn(tx)
	}
	return db.bolt.Update(fn)
}

// Reset empties every bucket.
func (db *DB) Reset() error {
	return db.bolt.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			if err := tx.DeleteBucket(name); err != nil && err != bbolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

func bucket(tx *bbolt.Tx, name string) (*bbolt.Bucket, error) {
	b := tx.Bucket(buckets[name])
	if b == nil {
		return nil, errors.Wrap(errBucketNotFound, name)
	}
	return b, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// compositeKey joins parts with a NUL separator; a trailing separator makes it a prefix.
func compositeKey(parts ...string) []byte {
	var buf bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			buf.WriteByte(0)
		}
		buf.WriteString(p)
	}
	return buf.Bytes()
}

func prefixKey(parts ...string) []byte {
	return append(compositeKey(parts...), 0)
}

func put[T any](b *bbolt.Bucket, key []byte, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "encoding document")
	}
	return b.Put(key, data)
}

// get decodes the document at key. It reports false when the key is absent.
func get[T any](b *bbolt.Bucket, key []byte) (T, bool, error) {
	var out T
	data := b.Get(key)
	if data == nil {
		return out, false, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, false, errors.Wrap(err, "decoding document")
	}
	return out, true, nil
}

// listByPrefix decodes every document whose key starts with prefix, in key order.
func listByPrefix[T any](b *bbolt.Bucket, prefix []byte) ([]T, error) {
	out := make([]T, 0)
	c := b.Cursor()
	k, v := c.First()
	if len(prefix) > 0 {
		k, v = c.Seek(prefix)
	}
	for ; k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var item T
		if err := json.Unmarshal(v, &item); err != nil {
			return nil, errors.Wrap(err, "decoding document")
		}
		out = append(out, item)
	}
	return out, nil
}

// resolveIndex follows the keys stored under prefix in idx to documents of data, in key order.
func resolveIndex[T any](idx, data *bbolt.Bucket, prefix []byte) ([]T, error) {
	out := make([]T, 0)
	c := idx.Cursor()
	for k, ref := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, ref = c.Next() {
		item, ok, err := get[T](data, ref)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, item)
		}
	}
	return out, nil
}
