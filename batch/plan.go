package batch

import (
	pb "go.shardapply.dev/core/protocol"
)

// TableInfo is metadata of a target table which informs planning.
type TableInfo struct {
	// PrimaryKey column names of the table, in key order. Empty if the table
	// has no primary key.
	PrimaryKey []string
}

// Plan is one of InsertBatch, DeleteBatch, or RowByRow.
type Plan interface {
	plan()
}

// InsertBatch inserts all Rows with multi-row INSERT statements.
// Each of Rows writes exactly Columns, in order.
type InsertBatch struct {
	Schema, Table string
	Columns       []pb.ColumnSpec
	Rows          []pb.RowChange
}

// DeleteBatch deletes rows matching any of KeyValues of the single-column
// primary Key, with DELETE ... IN statements. KeyValues are not NULL.
type DeleteBatch struct {
	Schema, Table string
	Key           pb.ColumnSpec
	KeyValues     []pb.Value
}

// RowByRow applies each of Rows with its own statement.
type RowByRow struct {
	Schema, Table string
	Rows          []pb.RowChange
}

func (InsertBatch) plan() {}
func (DeleteBatch) plan() {}
func (RowByRow) plan()    {}

// Kind of a rendered Statement.
type Kind int

const (
	KindInsertBatch Kind = iota + 1
	KindDeleteBatch
	KindInsertRow
	KindUpdateRow
	KindDeleteRow
)

func (k Kind) String() string {
	switch k {
	case KindInsertBatch:
		return "insert-batch"
	case KindDeleteBatch:
		return "delete-batch"
	case KindInsertRow:
		return "insert-row"
	case KindUpdateRow:
		return "update-row"
	case KindDeleteRow:
		return "delete-row"
	}
	return "unknown"
}

// IsBatch is true if the Kind applies multiple rows in one statement.
func (k Kind) IsBatch() bool { return k == KindInsertBatch || k == KindDeleteBatch }

// Statement is rendered SQL and its bound arguments. It covers Rows of the
// planned ChangeSet, beginning with row index FirstRow.
type Statement struct {
	SQL      string
	Args     []interface{}
	Kind     Kind
	FirstRow int
	Rows     int
}
