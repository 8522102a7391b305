package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/sikhya/portal/core"
	"github.com/sikhya/portal/core/user"
)

const userColumns = "id, name, email, phone, school, student_id, role, grade, subjects, created_at, updated_at"

type userRow struct {
	ID        string         `db:"id"`
	Name      string         `db:"name"`
	Email     null.String    `db:"email"`
	Phone     null.String    `db:"phone"`
	School    null.String    `db:"school"`
	StudentID null.String    `db:"student_id"`
	Role      null.String    `db:"role"`
	Grade     null.String    `db:"grade"`
	Subjects  pq.StringArray `db:"subjects"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func toUserRow(usr user.User) userRow {
	subjects := make(pq.StringArray, 0, len(usr.Subjects))
	for _, s := range usr.Subjects {
		subjects = append(subjects, string(s))
	}
	return userRow{
		ID:        usr.ID,
		Name:      usr.Name,
		Email:     null.NewString(usr.Email, usr.Email != ""),
		Phone:     null.NewString(usr.Phone, usr.Phone != ""),
		School:    null.NewString(usr.School, usr.School != ""),
		StudentID: null.NewString(usr.StudentID, usr.StudentID != ""),
		Role:      null.NewString(string(usr.Role), usr.Role != ""),
		Grade:     null.NewString(string(usr.Grade), usr.Grade != ""),
		Subjects:  subjects,
		CreatedAt: usr.CreatedAt.UTC(),
		UpdatedAt: usr.UpdatedAt.UTC(),
	}
}

func (r userRow) toUser() user.User {
	subjects := make([]core.Subject, 0, len(r.Subjects))
	for _, s := range r.Subjects {
		subjects = append(subjects, core.Subject(s))
	}
	return user.User{
		ID:        r.ID,
		Name:      r.Name,
		Email:     r.Email.String,
		Phone:     r.Phone.String,
		School:    r.School.String,
		StudentID: r.StudentID.String,
		Role:      user.Role(r.Role.String),
		Grade:     core.Grade(r.Grade.String),
		Subjects:  subjects,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

// trapErr maps "no rows" to user.ErrNotFound and unique violations to conflict errors.
func (repo userRepository) trapErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	if constraint, ok := uniqueConstraint(err); ok {
		switch constraint {
		case "users_email_key":
			return core.NewConflictError(user.ErrEmailExists, "email")
		case "users_student_id_key":
			return core.NewConflictError(user.ErrStudentIDExists, "student_id")
		}
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) get(ctx context.Context, where string, arg interface{}) (user.User, error) {
	var row userRow
	q := "SELECT " + userColumns + " FROM users WHERE " + where
	if err := sqlx.GetContext(ctx, repo.db.getExec(ctx), &row, q, arg); err != nil {
		return user.User{}, repo.trapErr(err, "selecting user")
	}
	return row.toUser(), nil
}

func (repo userRepository) query(ctx context.Context, where string, args ...interface{}) ([]user.User, error) {
	var rows []userRow
	q := "SELECT " + userColumns + " FROM users WHERE " + where + " ORDER BY seq"
	if err := sqlx.SelectContext(ctx, repo.db.getExec(ctx), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toUser())
	}
	return users, nil
}

func (repo userRepository) Create(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	row := toUserRow(usr)
	const q = `INSERT INTO users (` + userColumns + `)
		VALUES (:id, :name, :email, :phone, :school, :student_id, :role, :grade, :subjects, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.db.getExec(ctx), q, row); err != nil {
		return user.User{}, repo.trapErr(err, "inserting user")
	}
	return row.toUser(), nil
}

func (repo userRepository) GetByID(ctx context.Context, id string) (user.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return user.User{}, user.ErrNotFound
	}
	return repo.get(ctx, "id = $1", id)
}

func (repo userRepository) GetByEmail(ctx context.Context, email string) (user.User, error) {
	if email == "" {
		return user.User{}, user.ErrNotFound
	}
	return repo.get(ctx, "email = $1", email)
}

func (repo userRepository) GetByStudentID(ctx context.Context, studentID string) (user.User, error) {
	if studentID == "" {
		return user.User{}, user.ErrNotFound
	}
	return repo.get(ctx, "student_id = $1", studentID)
}

func (repo userRepository) QueryByRole(ctx context.Context, role user.Role) ([]user.User, error) {
	return repo.query(ctx, "role = $1", string(role))
}

func (repo userRepository) QueryByRoleAndGrade(ctx context.Context, role user.Role, grade core.Grade) ([]user.User, error) {
	return repo.query(ctx, "role = $1 AND grade = $2", string(role), string(grade))
}

func (repo userRepository) Update(ctx context.Context, usr user.User) (user.User, error) {
	var created time.Time
	row := toUserRow(usr)
	const q = `UPDATE users SET
			name = :name, email = :email, phone = :phone, school = :school, student_id = :student_id,
			role = :role, grade = :grade, subjects = :subjects, updated_at = :updated_at
		WHERE id = :id
		RETURNING created_at`
	exec := repo.db.getExec(ctx)
	query, args, err := exec.BindNamed(q, row)
	if err != nil {
		return user.User{}, errors.Wrap(err, "binding user")
	}
	if err = sqlx.GetContext(ctx, exec, &created, query, args...); err != nil {
		return user.User{}, repo.trapErr(err, "updating user")
	}
	row.CreatedAt = created
	return row.toUser(), nil
}

// Delete removes a user. Links and progress rows that reference it are left in place.
func (repo userRepository) Delete(ctx context.Context, id string) error {
	res, err := repo.db.getExec(ctx).ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.ErrNotFound
	}
	return nil
}
