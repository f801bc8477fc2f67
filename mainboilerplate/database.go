package mainboilerplate

import (
	"database/sql"

	"github.com/pkg/errors"
	"go.shardapply.dev/core/dialect"
)

// DatabaseConfig configures a connection to a SQL database.
type DatabaseConfig struct {
	Driver   string `long:"driver" env:"DRIVER" default:"sqlite3" choice:"sqlite3" choice:"postgres" choice:"pgx" description:"database/sql driver of the database"`
	DSN      string `long:"dsn" env:"DSN" description:"Data source name of the database"`
	User     string `long:"user" env:"USER" description:"User of the database, overriding any user of the DSN"`
	Password string `long:"password" env:"PASSWORD" description:"Password of the database, overriding any password of the DSN"`
}

// Inherit fields of |other| which are unset in the DatabaseConfig. A
// DatabaseConfig without a DSN inherits all of |other|.
func (c DatabaseConfig) Inherit(other DatabaseConfig) DatabaseConfig {
	if c.DSN == "" {
		return other
	}
	if c.User == "" {
		c.User = other.User
	}
	if c.Password == "" {
		c.Password = other.Password
	}
	return c
}

// Dialect of the configured Driver.
func (c DatabaseConfig) Dialect() (dialect.Dialect, error) {
	return dialect.For(c.Driver)
}

// Open the configured database. |onWarning|, if non-nil, receives warnings
// raised by the server.
func (c DatabaseConfig) Open(onWarning func(string)) (*sql.DB, error) {
	if c.DSN == "" {
		return nil, errors.New("expected a DSN")
	}
	var d, err = c.Dialect()
	if err != nil {
		return nil, err
	}
	dsn, err := d.WithCredentials(c.DSN, c.User, c.Password)
	if err != nil {
		return nil, errors.WithMessage(err, "applying credentials")
	}
	return d.Open(dsn, onWarning)
}
