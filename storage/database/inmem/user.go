package inmemdb

import (
	"context"

	"github.com/google/uuid"

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

func copyUser(usr user.User) user.User {
	usr.Subjects = core.CopySubjects(usr.Subjects)
	if usr.Subjects == nil {
		usr.Subjects = []core.Subject{}
	}
	return usr
}

// checkUnique must be called with the lock held.
func (repo *userRepository) checkUnique(usr user.User) error {
	for _, u := range repo.db.users {
		if u.ID == usr.ID {
			continue
		}
		if usr.Email != "" && u.Email == usr.Email {
			return core.NewConflictError(user.ErrEmailExists, "email")
		}
		if usr.StudentID != "" && u.StudentID == usr.StudentID {
			return core.NewConflictError(user.ErrStudentIDExists, "student_id")
		}
	}
	return nil
}

func (repo *userRepository) Create(ctx context.Context, usr user.User) (user.User, error) {
	defer repo.db.lock(ctx)()

	usr.ID = uuid.New().String()
	if err := repo.checkUnique(usr); err != nil {
		return user.User{}, err
	}
	usr = copyUser(usr)
	repo.db.users = append(repo.db.users, usr)
	return copyUser(usr), nil
}

func (repo *userRepository) find(ctx context.Context, match func(u user.User) bool) (user.User, error) {
	defer repo.db.lock(ctx)()

	for _, u := range repo.db.users {
		if match(u) {
			return copyUser(u), nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) filter(ctx context.Context, match func(u user.User) bool) []user.User {
	defer repo.db.lock(ctx)()

	users := make([]user.User, 0)
	for _, u := range repo.db.users {
		if match(u) {
			users = append(users, copyUser(u))
		}
	}
	return users
}

func (repo *userRepository) GetByID(ctx context.Context, id string) (user.User, error) {
	return repo.find(ctx, func(u user.User) bool { return u.ID == id })
}

func (repo *userRepository) GetByEmail(ctx context.Context, email string) (user.User, error) {
	if email == "" {
		return user.User{}, user.ErrNotFound
	}
	return repo.find(ctx, func(u user.User) bool { return u.Email == email })
}

func (repo *userRepository) GetByStudentID(ctx context.Context, studentID string) (user.User, error) {
	if studentID == "" {
		return user.User{}, user.ErrNotFound
	}
	return repo.find(ctx, func(u user.User) bool { return u.StudentID == studentID })
}

func (repo *userRepository) QueryByRole(ctx context.Context, role user.Role) ([]user.User, error) {
	return repo.filter(ctx, func(u user.User) bool { return u.Role == role }), nil
}

func (repo *userRepository) QueryByRoleAndGrade(ctx context.Context, role user.Role, grade core.Grade) ([]user.User, error) {
	return repo.filter(ctx, func(u user.User) bool { return u.Role == role && u.Grade == grade }), nil
}

func (repo *userRepository) Update(ctx context.Context, usr user.User) (user.User, error) {
	defer repo.db.lock(ctx)()

	for i, u := range repo.db.users {
		if u.ID != usr.ID {
			continue
		}
		if err := repo.checkUnique(usr); err != nil {
			return user.User{}, err
		}
		usr.CreatedAt = u.CreatedAt
		repo.db.users[i] = copyUser(usr)
		return copyUser(usr), nil
	}
	return user.User{}, user.ErrNotFound
}

// Delete removes a user. It only exists to simulate dangling references.
func (repo *userRepository) Delete(ctx context.Context, id string) error {
	defer repo.db.lock(ctx)()

	for i, u := range repo.db.users {
		if u.ID == id {
			repo.db.users = append(repo.db.users[:i:i], repo.db.users[i+1:]...)
			return nil
		}
	}
	return user.ErrNotFound
}
