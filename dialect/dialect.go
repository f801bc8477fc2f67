// Package dialect describes the SQL dialects of supported stores and targets:
// how statements are parameterized, how tables are named and created, and how
// connections are opened through the corresponding database/sql driver.
package dialect

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"
)

// Dialect abstracts the differences between SQL engines which matter to
// generated statements and to opening connections.
type Dialect interface {
	// Driver is the database/sql driver name of the Dialect.
	Driver() string
	// Placeholder returns the bind parameter placeholder of the 1-based
	// parameter ordinal |n|.
	Placeholder(n int) string
	// QualifiedName returns the name of |table| within |schema|. An empty
	// schema leaves the name unqualified.
	QualifiedName(schema, table string) string
	// CreateSchemaStmt returns a statement which creates |schema| if it doesn't
	// exist, or "" if the Dialect has no such notion.
	CreateSchemaStmt(schema string) string
	// PrimaryKeyQuery returns a query and arguments which select the ordered
	// primary-key column names of the table.
	PrimaryKeyQuery(schema, table string) (string, []interface{})
	// WithCredentials returns |dsn| having |user| and |password| applied,
	// where non-empty.
	WithCredentials(dsn, user, password string) (string, error)
	// Open a *DB to |dsn|. If non-nil, |onWarning| is invoked with the text
	// of warnings raised by the server while executing statements.
	Open(dsn string, onWarning func(msg string)) (*sql.DB, error)
}

// For returns the Dialect of the named database/sql |driver|.
func For(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3":
		return SQLite{}, nil
	case "postgres", "pgx":
		return Postgres{DriverName: driver}, nil
	default:
		return nil, errors.Errorf("unsupported driver %q", driver)
	}
}

func qualify(schema, table string) string {
	if schema == "" {
		return table
	}
	return fmt.Sprintf("%s.%s", schema, table)
}

// Ping |db| within |ctx|. It's a convenience for callers which open a DB and
// wish to fail fast on a bad DSN.
func Ping(ctx context.Context, db *sql.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return errors.WithMessage(err, "ping")
	}
	return nil
}
