package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/trezcool/goose"

	"github.com/NickGuerrero/cti-sys/core"
	"github.com/NickGuerrero/cti-sys/fs"
)

const migrationsDir = "migrations"

func open(dbName string, admin bool, conf *core.Config) (*sqlx.DB, error) {
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
	return sqlx.Open(conf.Database.Engine, u.String())
}

func Open(conf *core.Config) (*sqlx.DB, error) {
	db, err := open(conf.Database.Name, false, conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = ping(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sqlx.DB) error {
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

// StatusCheck runs a trivial query to make sure the database answers.
func StatusCheck(ctx context.Context, db core.DBExecutor) error {
	var one int
	if err := db.QueryRowxContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return errors.Wrap(err, "checking database status")
	}
	if one != 1 {
		return errors.New("unexpected status check result")
	}
	return nil
}

func exists(db *sqlx.DB, query string, arg string) (bool, error) {
	var found []bool
	if err := db.Select(&found, db.Rebind(query), arg); err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

func createAppUser(db *sqlx.DB, conf *core.Config) error {
	if conf.Database.User == "" {
		return nil
	}

	found, err := exists(db, "SELECT true FROM pg_roles WHERE rolname = ?", conf.Database.User)
	if err != nil {
		return errors.Wrap(err, "checking app user")
	}
	if !found {
		// identifiers cannot be bound as parameters
		q := fmt.Sprintf("CREATE USER %s CREATEDB ENCRYPTED PASSWORD '%s'", conf.Database.User, conf.Database.Password)
		if _, err = db.Exec(q); err != nil {
			return errors.Wrap(err, "creating app user")
		}
	}
	return nil
}

func createDB(db *sqlx.DB, conf *core.Config) error {
	found, err := exists(db, "SELECT true FROM pg_database WHERE datname = ?", conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !found {
		if _, err = db.Exec(fmt.Sprintf("CREATE DATABASE %s", conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist creates the application role and database when missing.
func CreateIfNotExist(conf *core.Config) error {
	// connect as admin
	db, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = ping(db); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = createAppUser(db, conf); err != nil {
		return errors.Wrap(err, "creating app user")
	}

	// create DB as app user
	appDB, err := open("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = appDB.Close() }()

	if err = createDB(appDB, conf); err != nil {
		return errors.Wrap(err, "creating database")
	}
	return nil
}

// Migrate applies every pending migration.
func Migrate(db *sqlx.DB) error {
	if err := goose.Up(db.DB, appfs.FS, migrationsDir); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}

// Rollback reverts the latest migration.
func Rollback(db *sqlx.DB) error {
	if err := goose.Down(db.DB, appfs.FS, migrationsDir); err != nil {
		return errors.Wrap(err, "rolling back database")
	}
	return nil
}

// Redo reverts then re-applies the latest migration.
func Redo(db *sqlx.DB) error {
	if err := goose.Redo(db.DB, appfs.FS, migrationsDir); err != nil {
		return errors.Wrap(err, "redoing latest migration")
	}
	return nil
}

// MigrateByOne applies the next pending migration only.
func MigrateByOne(db *sqlx.DB) error {
	if err := goose.UpByOne(db.DB, appfs.FS, migrationsDir); err != nil {
		return errors.Wrap(err, "migrating database by one")
	}
	return nil
}

// MigrateTo applies pending migrations up to and including version.
func MigrateTo(db *sqlx.DB, version int64) error {
	if err := goose.UpTo(db.DB, appfs.FS, migrationsDir, version); err != nil {
		return errors.Wrapf(err, "migrating database to version %d", version)
	}
	return nil
}

// RollbackTo reverts migrations down to, but excluding, version.
func RollbackTo(db *sqlx.DB, version int64) error {
	if err := goose.DownTo(db.DB, appfs.FS, migrationsDir, version); err != nil {
		return errors.Wrapf(err, "rolling back database to version %d", version)
	}
	return nil
}
