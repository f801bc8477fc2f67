package dialect

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// Postgres is the Dialect of PostgreSQL, accessed through either
// github.com/lib/pq ("postgres") or github.com/jackc/pgx ("pgx").
type Postgres struct {
	DriverName string
}

func (p Postgres) Driver() string {
	if p.DriverName == "" {
		return "postgres"
	}
	return p.DriverName
}

func (Postgres) Placeholder(n int) string                  { return fmt.Sprintf("$%d", n) }
func (Postgres) QualifiedName(schema, table string) string { return qualify(schema, table) }

func (Postgres) CreateSchemaStmt(schema string) string {
	if schema == "" {
		return ""
	}
	return "CREATE SCHEMA IF NOT EXISTS " + schema
}

func (Postgres) PrimaryKeyQuery(schema, table string) (string, []interface{}) {
	if schema == "" {
		return `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON  tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		  AND tc.table_name = kcu.table_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = current_schema()
		  AND tc.table_name = $1
		ORDER BY kcu.ordinal_position`, []interface{}{table}
	}
	return `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON  tc.constraint_name = kcu.constraint_name
		  AND tc.table_schema = kcu.table_schema
		  AND tc.table_name = kcu.table_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = $2
		ORDER BY kcu.ordinal_position`, []interface{}{schema, table}
}

// WithCredentials applies |user| and |password| to either a URL-style
// ("postgres://...") or a key/value-style ("host=... dbname=...") |dsn|.
func (Postgres) WithCredentials(dsn, user, password string) (string, error) {
	if user == "" && password == "" {
		return dsn, nil
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		var u, err = url.Parse(dsn)
		if err != nil {
			return "", errors.WithMessage(err, "parsing DSN")
		}
		if user == "" && u.User != nil {
			user = u.User.Username()
		}
		if password != "" {
			u.User = url.UserPassword(user, password)
		} else {
			u.User = url.User(user)
		}
		return u.String(), nil
	}

	var parts = []string{dsn}
	if user != "" {
		parts = append(parts, "user="+quoteKV(user))
	}
	if password != "" {
		parts = append(parts, "password="+quoteKV(password))
	}
	return strings.TrimSpace(strings.Join(parts, " ")), nil
}

// Open a *DB to |dsn|. PostgreSQL warnings are delivered as NOTICE messages,
// which are routed to |onWarning|.
func (p Postgres) Open(dsn string, onWarning func(string)) (*sql.DB, error) {
	switch p.Driver() {
	case "pgx":
		var cfg, err = pgx.ParseConfig(dsn)
		if err != nil {
			return nil, errors.WithMessage(err, "parsing pgx DSN")
		}
		if onWarning != nil {
			cfg.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) { onWarning(n.Message) }
		}
		return stdlib.OpenDB(*cfg), nil

	default:
		var conn, err = pq.NewConnector(dsn)
		if err != nil {
			return nil, errors.WithMessage(err, "building pq connector")
		}
		if onWarning == nil {
			return sql.OpenDB(conn), nil
		}
		return sql.OpenDB(pq.ConnectorWithNoticeHandler(conn, func(e *pq.Error) {
			onWarning(e.Message)
		})), nil
	}
}

func quoteKV(s string) string {
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s) + "'"
}
