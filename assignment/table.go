package assignment

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"
	"go.shardapply.dev/core/dialect"
	pb "go.shardapply.dev/core/protocol"
)

// DefaultTableName is the default name of the table of Assignments.
const DefaultTableName = "shard_channel"

// Table is the relational persistence of Assignments. It's stateless: each
// operation is issued against a *DB handle provided by the caller. The table
// has a schema like:
//
//	CREATE TABLE shard_channel (
//	  shard_id VARCHAR(128) NOT NULL PRIMARY KEY,
//	  channel  INTEGER      NOT NULL
//	);
//
// A ShardID is written exactly once: there are no update or upsert operations.
type Table struct {
	Dialect dialect.Dialect
	Schema  string
	Name    string
}

// QualifiedName of the Table.
func (t Table) QualifiedName() string { return t.Dialect.QualifiedName(t.Schema, t.Name) }

// Initialize creates the Table (and its schema) if they don't exist, and then
// validates that the maximum assigned channel is less than |channels|. If it's
// not, the channel count has been reduced since Assignments were made and an
// error having cause ErrInconsistentConfiguration is returned.
func (t Table) Initialize(ctx context.Context, db *sql.DB, channels int) error {
	if stmt := t.Dialect.CreateSchemaStmt(t.Schema); stmt != "" {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.WithMessagef(err, "creating schema %s", t.Schema)
		}
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
		  shard_id VARCHAR(%d) NOT NULL PRIMARY KEY,
		  channel  INTEGER NOT NULL
		)`, t.QualifiedName(), pb.MaxShardIDLen)); err != nil {
		return errors.WithMessagef(err, "creating table %s", t.QualifiedName())
	}

	var max, err = t.MaxAssignedChannel(ctx, db)
	if err != nil {
		return err
	} else if int(max) >= channels {
		return errors.WithMessagef(ErrInconsistentConfiguration,
			"channel %d is assigned in %s, but only %d channels are configured (was the channel count reduced?)",
			max, t.QualifiedName(), channels)
	}
	return nil
}

// Insert a new Assignment.
func (t Table) Insert(ctx context.Context, db *sql.DB, a pb.Assignment) error {
	var _, err = db.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (shard_id, channel) VALUES (%s, %s)",
		t.QualifiedName(), t.Dialect.Placeholder(1), t.Dialect.Placeholder(2)),
		string(a.ShardID), int(a.Channel))
	return errors.WithMessage(err, "inserting assignment")
}

// List all Assignments, ordered on ShardID.
func (t Table) List(ctx context.Context, db *sql.DB) ([]pb.Assignment, error) {
	var rows, err = db.QueryContext(ctx, fmt.Sprintf(
		"SELECT shard_id, channel FROM %s ORDER BY shard_id", t.QualifiedName()))
	if err != nil {
		return nil, errors.WithMessage(err, "listing assignments")
	}
	defer rows.Close()

	var out []pb.Assignment
	for rows.Next() {
		var a pb.Assignment
		if err = rows.Scan(&a.ShardID, &a.Channel); err != nil {
			return nil, errors.WithMessage(err, "scanning assignment")
		}
		out = append(out, a)
	}
	return out, errors.WithMessage(rows.Err(), "listing assignments")
}

// MaxAssignedChannel returns the highest assigned channel, or -1 if the
// Table has no Assignments.
func (t Table) MaxAssignedChannel(ctx context.Context, db *sql.DB) (pb.Channel, error) {
	var max sql.NullInt64
	if err := db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT MAX(channel) FROM %s", t.QualifiedName())).Scan(&max); err != nil {
		return -1, errors.WithMessage(err, "querying max channel")
	} else if !max.Valid {
		return -1, nil
	}
	return pb.Channel(max.Int64), nil
}

// Delete the Assignment of |shard|, returning the number of removed rows.
func (t Table) Delete(ctx context.Context, db *sql.DB, shard pb.ShardID) (int64, error) {
	var res, err = db.ExecContext(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE shard_id = %s", t.QualifiedName(), t.Dialect.Placeholder(1)),
		string(shard))
	if err != nil {
		return 0, errors.WithMessage(err, "deleting assignment")
	}
	n, err := res.RowsAffected()
	return n, errors.WithMessage(err, "deleting assignment")
}

// DeleteAll Assignments, returning the number of removed rows.
func (t Table) DeleteAll(ctx context.Context, db *sql.DB) (int64, error) {
	var res, err = db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", t.QualifiedName()))
	if err != nil {
		return 0, errors.WithMessage(err, "deleting assignments")
	}
	n, err := res.RowsAffected()
	return n, errors.WithMessage(err, "deleting assignments")
}
