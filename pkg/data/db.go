package data

import (
	"context"
	"database/sql"
	"embed"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const (
	DataFileName string = "reference.db"

	DriverSQLite   string = "sqlite"
	DriverPostgres string = "postgres"
)

var (
	//go:embed sql/*
	f embed.FS

	errDBNotInitialized = errors.New("database not initialized")

	identifierRegEx = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// DB is an open reference database and the driver it speaks.
type DB struct {
	*sql.DB
	Driver string
}

// Driver returns the database/sql driver name for a DSN: postgres for
// postgres:// URLs, sqlite for everything else.
func Driver(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// IsDatabase reports whether uri names a SQL source rather than a CSV file.
func IsDatabase(uri string) bool {
	if Driver(uri) == DriverPostgres {
		return true
	}
	switch strings.ToLower(uri[strings.LastIndex(uri, ".")+1:]) {
	case "db", "sqlite", "sqlite3":
		return true
	}
	return false
}

// GetDB opens the database at dsn.
func GetDB(dsn string) (*DB, error) {
	if dsn == "" {
		return nil, errors.New("database location not specified")
	}
	driver := Driver(dsn)
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", driver)
	}
	return &DB{DB: conn, Driver: driver}, nil
}

// Init creates the bookkeeping schema when it does not exist yet.
func Init(ctx context.Context, db *DB) error {
	if db == nil || db.DB == nil {
		return errDBNotInitialized
	}

	b, err := f.ReadFile("sql/ddl.sql")
	if err != nil {
		return errors.Wrap(err, "failed to read the schema creation file")
	}
	if _, err := db.ExecContext(ctx, string(b)); err != nil {
		return errors.Wrap(err, "failed to create database schema")
	}
	slog.Debug("db schema ready", "driver", db.Driver)
	return nil
}

// quote returns name as a quoted SQL identifier.
func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func validTableName(name string) error {
	if !identifierRegEx.MatchString(name) {
		return errors.Errorf("invalid table name %q", name)
	}
	return nil
}

func (db *DB) placeholder(i int) string {
	if db.Driver == DriverPostgres {
		return "$" + strconv.Itoa(i)
	}
	return "?"
}

func (db *DB) realType() string {
	if db.Driver == DriverPostgres {
		return "DOUBLE PRECISION"
	}
	return "REAL"
}
