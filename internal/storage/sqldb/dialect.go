package sqldb

import (
	"database/sql"
	"regexp"
	"strconv"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect hides the differences between the supported SQL databases
type Dialect interface {
	// Name identifies the dialect in config and logs
	Name() string

	// DriverName returns the driver name for sql.Open
	DriverName() string

	// RewriteQuery converts ? placeholders when the driver needs another syntax
	RewriteQuery(query string) string

	// ConfigureConnection applies pool settings and session pragmas
	ConfigureConnection(db *sql.DB) error

	// AttemptsSchema returns the DDL for the attempts table
	AttemptsSchema() []string
}

var placeholderRegexp = regexp.MustCompile(`\?`)

// rewritePlaceholdersToNumbered converts ? placeholders to $1, $2, etc.
func rewritePlaceholdersToNumbered(query string) string {
	counter := 0
	return placeholderRegexp.ReplaceAllStringFunc(query, func(string) string {
		counter++
		return "$" + strconv.Itoa(counter)
	})
}

// DialectFor returns the dialect registered under name
func DialectFor(name string) (Dialect, bool) {
	switch name {
	case "sqlite", "sqlite3", "":
		return SQLite{}, true
	case "postgres", "postgresql":
		return Postgres{}, true
	case "mysql":
		return MySQL{}, true
	default:
		return nil, false
	}
}

// SQLite is the embedded default
type SQLite struct{}

func (SQLite) Name() string                     { return "sqlite" }
func (SQLite) DriverName() string               { return "sqlite3" }
func (SQLite) RewriteQuery(query string) string { return query }

func (SQLite) ConfigureConnection(db *sql.DB) error {
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return err
	}
	_, err := db.Exec("PRAGMA busy_timeout=5000;")
	return err
}

func (SQLite) AttemptsSchema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS attempts (
			id           TEXT     PRIMARY KEY,
			user_id      TEXT     NOT NULL,
			course_id    TEXT     NOT NULL,
			lesson_id    TEXT     NOT NULL,
			code         TEXT     NOT NULL,
			score        INTEGER  NOT NULL,
			max_score    INTEGER  NOT NULL,
			passed       BOOLEAN  NOT NULL,
			xp_earned    INTEGER  NOT NULL,
			test_results BLOB,
			error        TEXT     NOT NULL DEFAULT '',
			submitted_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_user_lesson ON attempts (user_id, lesson_id, submitted_at)`,
	}
}

// Postgres uses lib/pq through database/sql
type Postgres struct{}

func (Postgres) Name() string       { return "postgres" }
func (Postgres) DriverName() string { return "postgres" }

func (Postgres) RewriteQuery(query string) string {
	return rewritePlaceholdersToNumbered(query)
}

func (Postgres) ConfigureConnection(db *sql.DB) error {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)
	return nil
}

func (Postgres) AttemptsSchema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS attempts (
			id           UUID        PRIMARY KEY,
			user_id      TEXT        NOT NULL,
			course_id    TEXT        NOT NULL,
			lesson_id    TEXT        NOT NULL,
			code         TEXT        NOT NULL,
			score        INTEGER     NOT NULL,
			max_score    INTEGER     NOT NULL,
			passed       BOOLEAN     NOT NULL,
			xp_earned    INTEGER     NOT NULL,
			test_results JSONB,
			error        TEXT        NOT NULL DEFAULT '',
			submitted_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_user_lesson ON attempts (user_id, lesson_id, submitted_at)`,
	}
}

// MySQL uses go-sql-driver/mysql. The DSN must set parseTime=true.
type MySQL struct{}

func (MySQL) Name() string                     { return "mysql" }
func (MySQL) DriverName() string               { return "mysql" }
func (MySQL) RewriteQuery(query string) string { return query }

func (MySQL) ConfigureConnection(db *sql.DB) error {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)
	return nil
}

func (MySQL) AttemptsSchema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS attempts (
			id           CHAR(36)     PRIMARY KEY,
			user_id      VARCHAR(255) NOT NULL,
			course_id    VARCHAR(255) NOT NULL,
			lesson_id    VARCHAR(255) NOT NULL,
			code         MEDIUMTEXT   NOT NULL,
			score        INT          NOT NULL,
			max_score    INT          NOT NULL,
			passed       BOOLEAN      NOT NULL,
			xp_earned    INT          NOT NULL,
			test_results JSON,
			error        TEXT         NOT NULL,
			submitted_at DATETIME(6)  NOT NULL,
			INDEX idx_attempts_user_lesson (user_id, lesson_id, submitted_at)
		)`,
	}
}
