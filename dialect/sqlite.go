package dialect

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3" // Registers "sqlite3".
)

// SQLite is the Dialect of github.com/mattn/go-sqlite3. Schemas map to
// attached databases: "main" is always present.
type SQLite struct{}

func (SQLite) Driver() string                            { return "sqlite3" }
func (SQLite) Placeholder(int) string                    { return "?" }
func (SQLite) QualifiedName(schema, table string) string { return qualify(schema, table) }
func (SQLite) CreateSchemaStmt(string) string            { return "" }

func (SQLite) PrimaryKeyQuery(schema, table string) (string, []interface{}) {
	if schema == "" {
		schema = "main"
	}
	return `SELECT name FROM pragma_table_info(?, ?) WHERE pk > 0 ORDER BY pk`,
		[]interface{}{table, schema}
}

// WithCredentials returns |dsn| unmodified. SQLite has no notion of users.
func (SQLite) WithCredentials(dsn, _, _ string) (string, error) { return dsn, nil }

// Open the SQLite database |dsn|. SQLite doesn't surface warnings.
func (SQLite) Open(dsn string, _ func(string)) (*sql.DB, error) {
	return sql.Open("sqlite3", dsn)
}
