package batch

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
	"go.shardapply.dev/core/dialect"
	pb "go.shardapply.dev/core/protocol"
)

func TestInsertBatchOfThreeRows(t *testing.T) {
	var o = &Optimizer{Dialect: dialect.SQLite{}}
	var cs = pb.NewChangeSet(
		insertRow(pb.IntValue(1), pb.StringValue("x")),
		insertRow(pb.IntValue(2), pb.StringValue("y")),
		insertRow(pb.IntValue(3), pb.StringValue("z")),
	)
	require.IsType(t, InsertBatch{}, o.Plan(cs, TableInfo{}))

	var stmts = o.Build(cs, TableInfo{})
	require.Len(t, stmts, 1)
	require.Equal(t, "INSERT INTO s.t (a,b) VALUES (?,?),(?,?),(?,?)", stmts[0].SQL)
	require.Equal(t, []interface{}{int64(1), "x", int64(2), "y", int64(3), "z"}, stmts[0].Args)
	require.Equal(t, KindInsertBatch, stmts[0].Kind)
	require.Equal(t, 3, stmts[0].Rows)
}

func TestDeleteBatchOnSingleColumnKey(t *testing.T) {
	var o = &Optimizer{Dialect: dialect.SQLite{}}
	var cs = pb.NewChangeSet(deleteRow(1), deleteRow(2), deleteRow(3))
	var table = TableInfo{PrimaryKey: []string{"id"}}

	require.IsType(t, DeleteBatch{}, o.Plan(cs, table))

	var stmts = o.Build(cs, table)
	require.Len(t, stmts, 1)
	require.Equal(t, "DELETE FROM s.t WHERE id IN (?,?,?)", stmts[0].SQL)
	require.Equal(t, []interface{}{int64(1), int64(2), int64(3)}, stmts[0].Args)
}

func TestDeleteFallsBackWithoutSingleColumnKey(t *testing.T) {
	var o = &Optimizer{Dialect: dialect.SQLite{}}
	var cs = pb.NewChangeSet(deleteRow(1), deleteRow(2), deleteRow(3))

	for _, table := range []TableInfo{
		{PrimaryKey: []string{"id", "b"}}, // Composite key.
		{},                                // No key.
		{PrimaryKey: []string{"other"}},   // Key isn't present in rows.
	} {
		require.IsType(t, RowByRow{}, o.Plan(cs, table))

		var stmts = o.Build(cs, table)
		require.Len(t, stmts, 3)
		for i, stmt := range stmts {
			require.Equal(t, "DELETE FROM s.t WHERE id=?", stmt.SQL)
			require.Equal(t, []interface{}{int64(i + 1)}, stmt.Args)
			require.Equal(t, KindDeleteRow, stmt.Kind)
			require.Equal(t, i, stmt.FirstRow)
		}
	}

	// A NULL key value also precludes the batch.
	var withNull = pb.NewChangeSet(deleteRow(1), deleteRow(2), deleteRow(3))
	withNull.Rows[1].KeyValues[0] = pb.NullValue()
	require.IsType(t, RowByRow{}, o.Plan(withNull, TableInfo{PrimaryKey: []string{"id"}}))
}

func TestInsertFallsBackOnSingleRowOrDifferingColumns(t *testing.T) {
	var o = &Optimizer{Dialect: dialect.SQLite{}}

	var cs = pb.NewChangeSet(insertRow(pb.IntValue(1), pb.StringValue("x")))
	require.IsType(t, RowByRow{}, o.Plan(cs, TableInfo{}))
	require.Equal(t, []Statement{{
		SQL:  "INSERT INTO s.t (a,b) VALUES (?,?)",
		Args: []interface{}{int64(1), "x"},
		Kind: KindInsertRow,
		Rows: 1,
	}}, o.Build(cs, TableInfo{}))

	var other = insertRow(pb.IntValue(2), pb.StringValue("y"))
	other.Columns = []pb.ColumnSpec{{Name: "a", Type: pb.TypeInteger}, {Name: "c", Type: pb.TypeVarChar}}
	cs = pb.NewChangeSet(insertRow(pb.IntValue(1), pb.StringValue("x")), other)
	require.IsType(t, RowByRow{}, o.Plan(cs, TableInfo{}))
	require.Len(t, o.Build(cs, TableInfo{}), 2)

	// Same names, but differing signedness of "a".
	var unsigned = insertRow(pb.IntValue(-5), pb.StringValue("y"))
	unsigned.Columns = []pb.ColumnSpec{{Name: "a", Type: pb.TypeTinyInt, Length: 1, Unsigned: true}, {Name: "b", Type: pb.TypeVarChar}}
	cs = pb.NewChangeSet(insertRow(pb.IntValue(-5), pb.StringValue("x")), unsigned)
	require.IsType(t, RowByRow{}, o.Plan(cs, TableInfo{}))

	var stmts = o.Build(cs, TableInfo{})
	require.Len(t, stmts, 2)
	require.Equal(t, []interface{}{int64(-5), "x"}, stmts[0].Args)
	require.Equal(t, []interface{}{int64(251), "y"}, stmts[1].Args)
}

func TestBatchesAreChunkedByMaxRows(t *testing.T) {
	var o = &Optimizer{Dialect: dialect.SQLite{}, MaxRows: 2}
	var cs = pb.NewChangeSet(deleteRow(1), deleteRow(2), deleteRow(3), deleteRow(4), deleteRow(5))

	var stmts = o.Build(cs, TableInfo{PrimaryKey: []string{"id"}})
	require.Len(t, stmts, 3)
	require.Equal(t, "DELETE FROM s.t WHERE id IN (?,?)", stmts[0].SQL)
	require.Equal(t, "DELETE FROM s.t WHERE id IN (?,?)", stmts[1].SQL)
	require.Equal(t, "DELETE FROM s.t WHERE id IN (?)", stmts[2].SQL)
	require.Equal(t, []interface{}{int64(5)}, stmts[2].Args)

	for i, expect := range [][2]int{{0, 2}, {2, 2}, {4, 1}} {
		require.Equal(t, expect[0], stmts[i].FirstRow)
		require.Equal(t, expect[1], stmts[i].Rows)
	}
}

func TestBulkStatementsBindLikeRowStatements(t *testing.T) {
	var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var o = &Optimizer{Dialect: dialect.SQLite{}, Now: func() time.Time { return now }}

	var cols = []pb.ColumnSpec{
		{Name: "u", Type: pb.TypeTinyInt, Length: 1, Unsigned: true},
		{Name: "data", Type: pb.TypeBlob, Blob: true},
		{Name: "ts", Type: pb.TypeTimestamp},
	}
	var row = func(u int64) pb.RowChange {
		return pb.RowChange{Action: pb.Insert, Schema: "s", Table: "t", Columns: cols,
			Values: []pb.Value{pb.IntValue(u), pb.StringValue("raw"), pb.NowValue()}}
	}
	var bulk = o.Build(pb.NewChangeSet(row(-5), row(7)), TableInfo{})
	require.Len(t, bulk, 1)

	var single []interface{}
	for _, r := range []pb.RowChange{row(-5), row(7)} {
		var stmts = o.Build(pb.NewChangeSet(r), TableInfo{})
		require.Len(t, stmts, 1)
		single = append(single, stmts[0].Args...)
	}
	require.Equal(t, single, bulk[0].Args)
	require.Equal(t, []interface{}{int64(251), []byte("raw"), now, int64(7), []byte("raw"), now}, single)
}

func TestRenderingGolden(t *testing.T) {
	var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var pg = &Optimizer{Dialect: dialect.Postgres{}, MaxRows: 2, Now: func() time.Time { return now }}
	var lite = &Optimizer{Dialect: dialect.SQLite{}, Now: func() time.Time { return now }}

	var updates = pb.NewChangeSet(
		updateRow(pb.IntValue(10), pb.IntValue(1)),
		updateRow(pb.IntValue(20), pb.NullValue()),
	)
	var composite = pb.NewChangeSet(
		pb.RowChange{Action: pb.Delete, Schema: "s", Table: "pairs",
			Columns:   []pb.ColumnSpec{{Name: "a", Type: pb.TypeInteger}, {Name: "b", Type: pb.TypeVarChar}},
			KeyValues: []pb.Value{pb.IntValue(1), pb.StringValue("x")}},
		pb.RowChange{Action: pb.Delete, Schema: "s", Table: "pairs",
			Columns:   []pb.ColumnSpec{{Name: "a", Type: pb.TypeInteger}, {Name: "b", Type: pb.TypeVarChar}},
			KeyValues: []pb.Value{pb.IntValue(2), pb.NullValue()}},
	)
	var inserts = pb.NewChangeSet(
		insertRow(pb.IntValue(1), pb.StringValue("x")),
		insertRow(pb.IntValue(2), pb.NullValue()),
		insertRow(pb.IntValue(3), pb.StringValue("z")),
	)

	var g = goldie.New(t)
	g.Assert(t, "insert_batch_postgres", dumpStatements(pg.Build(inserts, TableInfo{})))
	g.Assert(t, "update_rows_postgres", dumpStatements(pg.Build(updates, TableInfo{PrimaryKey: []string{"id"}})))
	g.Assert(t, "delete_composite_sqlite", dumpStatements(lite.Build(composite, TableInfo{PrimaryKey: []string{"a", "b"}})))
}

func insertRow(a, b pb.Value) pb.RowChange {
	return pb.RowChange{
		Action:  pb.Insert,
		Schema:  "s",
		Table:   "t",
		Columns: []pb.ColumnSpec{{Name: "a", Type: pb.TypeInteger}, {Name: "b", Type: pb.TypeVarChar}},
		Values:  []pb.Value{a, b},
	}
}

func deleteRow(id int64) pb.RowChange {
	return pb.RowChange{
		Action:    pb.Delete,
		Schema:    "s",
		Table:     "t",
		Keys:      []pb.ColumnSpec{{Name: "id", Type: pb.TypeBigInt}},
		KeyValues: []pb.Value{pb.IntValue(id)},
	}
}

func updateRow(a, id pb.Value) pb.RowChange {
	return pb.RowChange{
		Action:    pb.Update,
		Schema:    "s",
		Table:     "t",
		Columns:   []pb.ColumnSpec{{Name: "a", Type: pb.TypeInteger}, {Name: "b", Type: pb.TypeVarChar}},
		Keys:      []pb.ColumnSpec{{Name: "id", Type: pb.TypeBigInt}},
		Values:    []pb.Value{a, pb.StringValue("v")},
		KeyValues: []pb.Value{id},
	}
}

func dumpStatements(stmts []Statement) []byte {
	var b bytes.Buffer
	for _, s := range stmts {
		fmt.Fprintf(&b, "-- %s [%d, %d)\n%s\n", s.Kind, s.FirstRow, s.FirstRow+s.Rows, s.SQL)
		for i, arg := range s.Args {
			if arg == nil {
				fmt.Fprintf(&b, "--   %d: NULL\n", i+1)
			} else {
				fmt.Fprintf(&b, "--   %d: %T %v\n", i+1, arg, arg)
			}
		}
	}
	return b.Bytes()
}
