package database

import (
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/sikhya/portal/core"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

func open(dbName string, admin bool, conf *core.Config) (*sql.DB, error) {
	user := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   conf.Database.Engine,
		User:     user,
		Host:     conf.Database.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return sql.Open(conf.Database.Engine, u.String())
}

func Open(conf *core.Config) (*sql.DB, error) {
	db, err := open(conf.Database.Name, false, conf)
	if err != nil {
		return nil, err
	}
	if err = ping(db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "pinging database")
	}
	return db, nil
}

// OpenURL opens and pings the postgres database at dsn.
func OpenURL(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = ping(db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "pinging database")
	}
	return db, nil
}

// NewDBX wraps db for the sqlx repositories.
func NewDBX(db *sql.DB) *sqlx.DB {
	return sqlx.NewDb(db, "postgres")
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sql.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

// exists runs a "SELECT true ... WHERE x = $1" query and reports whether it returned a row.
func exists(db *sql.DB, query string, arg string) (bool, error) {
	var found bool
	err := db.QueryRow(query, arg).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return found, err
}

func createAppUser(db *sql.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}

	found, err := exists(db, "SELECT true FROM pg_roles WHERE rolname = $1", conf.Database.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if !found {
		q := fmt.Sprintf(
			"CREATE USER %s CREATEDB ENCRYPTED PASSWORD %s",
			pq.QuoteIdentifier(conf.Database.User), pq.QuoteLiteral(conf.Database.Password),
		)
		if _, err = db.Exec(q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

func createDB(db *sql.DB, conf *core.Config) error {
	found, err := exists(db, "SELECT true FROM pg_database WHERE datname = $1", conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !found {
		if _, err = db.Exec("CREATE DATABASE " + pq.QuoteIdentifier(conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist creates the application role (as admin) and database (as the application role).
func CreateIfNotExist(conf *core.Config) error {
	admin, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = admin.Close() }()

	if err = ping(admin); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(admin, conf); err != nil {
		return errors.Wrap(err, "creating app user")
	}

	db, err := open("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = createDB(db, conf); err != nil {
		return errors.Wrap(err, "creating database")
	}
	return nil
}

func setupGoose() error {
	goose.SetBaseFS(migrationsFS)
	return goose.SetDialect("postgres")
}

// Migrate applies every pending migration.
func Migrate(db *sql.DB) error {
	if err := setupGoose(); err != nil {
		return errors.Wrap(err, "setting up goose")
	}
	if err := goose.Up(db, migrationsDir); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}

// RunGoose runs a goose command (up, down, status, redo, version, ...) against the embedded migrations.
func RunGoose(db *sql.DB, command string, args ...string) error {
	if err := setupGoose(); err != nil {
		return errors.Wrap(err, "setting up goose")
	}
	return goose.Run(command, db, migrationsDir, args...)
}
