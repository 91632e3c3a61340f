// Package sqlstore implements store.Store on a SQL database:
// PostgreSQL in production, SQLite for development and tests.
package sqlstore

import (
	"embed"
	"path"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

//go:embed migrations
var migrations embed.FS

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Open connects to the database and brings its schema up to date.
// For SQLite, use ":memory:" for an in-memory database.
func Open(driver, dsn string) (*sqlx.DB, error) {
	dialect, ok := dialects[driver]
	if !ok {
		return nil, errors.Errorf("unsupported database driver %q", driver)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s database", driver)
	}
	if driver == DriverSQLite {
		// SQLite has one writer; an in-memory database is also private
		// to its connection.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "enabling foreign keys")
		}
	}
	if err := Migrate(db, dialect); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

var dialects = map[string]string{
	DriverPostgres: "postgres",
	DriverSQLite:   "sqlite3",
}

// Migrate runs the migrations for the dialect that have not yet been
// applied.
func Migrate(db *sqlx.DB, dialect string) error {
	dir := path.Join("migrations", db.DriverName())
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return errors.Wrap(err, "setting migration dialect")
	}
	if err := goose.Up(db.DB, dir); err != nil {
		return errors.Wrap(err, "running migrations")
	}
	return nil
}
