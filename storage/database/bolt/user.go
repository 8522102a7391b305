package boltdb

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

type userBuckets struct {
	users, byID, byEmail, byStudentID *bbolt.Bucket
	byRole, byRoleGrade               *bbolt.Bucket
}

func (repo *userRepository) buckets(tx *bbolt.Tx) (ub userBuckets, err error) {
	if ub.users, err = bucket(tx, "users"); err != nil {
		return
	}
	if ub.byID, err = bucket(tx, "usersByID"); err != nil {
		return
	}
	if ub.byEmail, err = bucket(tx, "usersByEmail"); err != nil {
		return
	}
	if ub.byStudentID, err = bucket(tx, "usersByStudentID"); err != nil {
		return
	}
	if ub.byRole, err = bucket(tx, "usersByRole"); err != nil {
		return
	}
	ub.byRoleGrade, err = bucket(tx, "usersByRoleGrade")
	return
}

// Role keys end with the document ref so prefix scans keep creation order.
func roleKey(role user.Role, ref []byte) []byte {
	return append(prefixKey(string(role)), ref...)
}

func roleGradeKey(role user.Role, grade core.Grade, ref []byte) []byte {
	return append(prefixKey(string(role), string(grade)), ref...)
}

// reindexUsers builds the role indexes of a store created before they existed.
func reindexUsers(tx *bbolt.Tx) error {
	ub, err := new(userRepository).buckets(tx)
	if err != nil {
		return err
	}
	return ub.users.ForEach(func(ref, _ []byte) error {
		usr, _, err := get[user.User](ub.users, ref)
		if err != nil {
			return err
		}
		return ub.index(usr, ref)
	})
}

func normalize(usr user.User) user.User {
	if usr.Subjects == nil {
		usr.Subjects = []core.Subject{}
	}
	return usr
}

func (ub userBuckets) getByID(id string) (user.User, []byte, error) {
	ref := ub.byID.Get([]byte(id))
	if ref == nil {
		return user.User{}, nil, user.ErrNotFound
	}
	usr, ok, err := get[user.User](ub.users, ref)
	if err != nil {
		return user.User{}, nil, err
	}
	if !ok {
		return user.User{}, nil, user.ErrNotFound
	}
	return normalize(usr), ref, nil
}

func (ub userBuckets) getByRef(idx *bbolt.Bucket, key string) (user.User, error) {
	if key == "" {
		return user.User{}, user.ErrNotFound
	}
	id := idx.Get([]byte(key))
	if id == nil {
		return user.User{}, user.ErrNotFound
	}
	usr, _, err := ub.getByID(string(id))
	return usr, err
}

// checkUnique fails when another user owns usr's email or student ID.
func (ub userBuckets) checkUnique(usr user.User) error {
	if usr.Email != "" {
		if id := ub.byEmail.Get([]byte(usr.Email)); id != nil && string(id) != usr.ID {
			return core.NewConflictError(user.ErrEmailExists, "email")
		}
	}
	if usr.StudentID != "" {
		if id := ub.byStudentID.Get([]byte(usr.StudentID)); id != nil && string(id) != usr.ID {
			return core.NewConflictError(user.ErrStudentIDExists, "student_id")
		}
	}
	return nil
}

func (ub userBuckets) index(usr user.User, ref []byte) error {
	if err := ub.byRole.Put(roleKey(usr.Role, ref), ref); err != nil {
		return err
	}
	if err := ub.byRoleGrade.Put(roleGradeKey(usr.Role, usr.Grade, ref), ref); err != nil {
		return err
	}
	if usr.Email != "" {
		if err := ub.byEmail.Put([]byte(usr.Email), []byte(usr.ID)); err != nil {
			return err
		}
	}
	if usr.StudentID != "" {
		if err := ub.byStudentID.Put([]byte(usr.StudentID), []byte(usr.ID)); err != nil {
			return err
		}
	}
	return nil
}

func (ub userBuckets) unindex(usr user.User, ref []byte) error {
	if err := ub.byRole.Delete(roleKey(usr.Role, ref)); err != nil {
		return err
	}
	if err := ub.byRoleGrade.Delete(roleGradeKey(usr.Role, usr.Grade, ref)); err != nil {
		return err
	}
	if usr.Email != "" {
		if err := ub.byEmail.Delete([]byte(usr.Email)); err != nil {
			return err
		}
	}
	if usr.StudentID != "" {
		if err := ub.byStudentID.Delete([]byte(usr.StudentID)); err != nil {
			return err
		}
	}
	return nil
}

func (repo *userRepository) Create(ctx context.Context, usr user.User) (user.User, error) {
	usr = normalize(usr)
	usr.ID = uuid.New().String()

	err := repo.db.update(ctx, func(tx *bbolt.Tx) error {
		ub, err := repo.buckets(tx)
		if err != nil {
			return err
		}
		if err = ub.checkUnique(usr); err != nil {
			return err
		}

		seq, err := ub.users.NextSequence()
		if err != nil {
			return errors.Wrap(err, "generating user key")
		}
		ref := itob(seq)
		if err = put(ub.users, ref, usr); err != nil {
			return err
		}
		if err = ub.byID.Put([]byte(usr.ID), ref); err != nil {
			return err
		}
		return ub.index(usr, ref)
	})
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetByID(ctx context.Context, id string) (usr user.User, err error) {
	err = repo.db.view(ctx, func(tx *bbolt.Tx) error {
		ub, err := repo.buckets(tx)
		if err != nil {
			return err
		}
		usr, _, err = ub.getByID(id)
		return err
	})
	return usr, err
}

func (repo *userRepository) GetByEmail(ctx context.Context, email string) (usr user.User, err error) {
	err = repo.db.view(ctx, func(tx *bbolt.Tx) error {
		ub, err := repo.buckets(tx)
		if err != nil {
			return err
		}
		usr, err = ub.getByRef(ub.byEmail, email)
		return err
	})
	return usr, err
}

func (repo *userRepository) GetByStudentID(ctx context.Context, studentID string) (usr user.User, err error) {
	err = repo.db.view(ctx, func(tx *bbolt.Tx) error {
		ub, err := repo.buckets(tx)
		if err != nil {
			return err
		}
		usr, err = ub.getByRef(ub.byStudentID, studentID)
		return err
	})
	return usr, err
}

func (repo *userRepository) listIndexed(ctx context.Context, index string, prefix []byte) ([]user.User, error) {
	var users []user.User
	err := repo.db.view(ctx, func(tx *bbolt.Tx) error {
		idx, err := bucket(tx, index)
		if err != nil {
			return err
		}
		data, err := bucket(tx, "users")
		if err != nil {
			return err
		}
		users, err = resolveIndex[user.User](idx, data, prefix)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	for i := range users {
		users[i] = normalize(users[i])
	}
	return users, nil
}

func (repo *userRepository) QueryByRole(ctx context.Context, role user.Role) ([]user.User, error) {
	return repo.listIndexed(ctx, "usersByRole", prefixKey(string(role)))
}

func (repo *userRepository) QueryByRoleAndGrade(ctx context.Context, role user.Role, grade core.Grade) ([]user.User, error) {
	return repo.listIndexed(ctx, "usersByRoleGrade", prefixKey(string(role), string(grade)))
}

func (repo *userRepository) Update(ctx context.Context, usr user.User) (user.User, error) {
	usr = normalize(usr)
	err := repo.db.update(ctx, func(tx *bbolt.Tx) error {
		ub, err := repo.buckets(tx)
		if err != nil {
			return err
		}
		orig, ref, err := ub.getByID(usr.ID)
		if err != nil {
			return err
		}
		if err = ub.checkUnique(usr); err != nil {
			return err
		}
		usr.CreatedAt = orig.CreatedAt
		if err = ub.unindex(orig, ref); err != nil {
			return err
		}
		if err = put(ub.users, ref, usr); err != nil {
			return err
		}
		return ub.index(usr, ref)
	})
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return usr, nil
}

// Delete removes a user and its index entries.
func (repo *userRepository) Delete(ctx context.Context, id string) error {
	return repo.db.update(ctx, func(tx *bbolt.Tx) error {
		ub, err := repo.buckets(tx)
		if err != nil {
			return err
		}
		usr, ref, err := ub.getByID(id)
		if err != nil {
			return err
		}
		if err = ub.unindex(usr, ref); err != nil {
			return err
		}
		if err = ub.byID.Delete([]byte(id)); err != nil {
			return err
		}
		return ub.users.Delete(ref)
	})
}
