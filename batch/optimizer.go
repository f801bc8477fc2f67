package batch

import (
	"fmt"
	"strings"
	"time"

	"go.shardapply.dev/core/dialect"
	pb "go.shardapply.dev/core/protocol"
)

// Optimizer plans and renders ChangeSets into Statements of its Dialect.
type Optimizer struct {
	Dialect dialect.Dialect
	// MaxRows bounds the number of rows of a single bulk statement.
	// Zero is unbounded.
	MaxRows int
	// Now returns the current time, which is bound for "now" placeholders.
	// If nil, time.Now is used.
	Now func() time.Time
}

// Build plans and renders ChangeSet |cs| of a table described by |table|.
// |cs| must be valid.
func (o *Optimizer) Build(cs pb.ChangeSet, table TableInfo) []Statement {
	return o.Render(o.Plan(cs, table))
}

// Plan chooses the least costly Plan of ChangeSet |cs| which is equivalent
// to applying each of its rows in turn.
func (o *Optimizer) Plan(cs pb.ChangeSet, table TableInfo) Plan {
	if len(cs.Rows) > 1 {
		switch cs.Action {
		case pb.Insert:
			if sameColumns(cs.Rows) {
				return InsertBatch{
					Schema:  cs.Schema,
					Table:   cs.Table,
					Columns: cs.Rows[0].Columns,
					Rows:    cs.Rows,
				}
			}
		case pb.Delete:
			if key, values, ok := singleKeyValues(cs.Rows, table); ok {
				return DeleteBatch{
					Schema:    cs.Schema,
					Table:     cs.Table,
					Key:       key,
					KeyValues: values,
				}
			}
		}
	}
	return RowByRow{Schema: cs.Schema, Table: cs.Table, Rows: cs.Rows}
}

// Render Plan |p| into Statements, in application order.
func (o *Optimizer) Render(p Plan) []Statement {
	var out []Statement
	var now = o.now()

	switch p := p.(type) {
	case InsertBatch:
		for begin, end := range o.chunks(len(p.Rows)) {
			var b = o.newBuilder()
			b.printf("INSERT INTO %s (%s) VALUES ", o.Dialect.QualifiedName(p.Schema, p.Table), columnNames(p.Columns))

			for r := begin; r != end; r++ {
				if r != begin {
					b.sql.WriteByte(',')
				}
				b.sql.WriteByte('(')
				for c, col := range p.Columns {
					if c != 0 {
						b.sql.WriteByte(',')
					}
					b.param(BindValue(col, p.Rows[r].Values[c], now))
				}
				b.sql.WriteByte(')')
			}
			out = append(out, b.statement(KindInsertBatch, begin, end-begin))
		}

	case DeleteBatch:
		for begin, end := range o.chunks(len(p.KeyValues)) {
			var b = o.newBuilder()
			b.printf("DELETE FROM %s WHERE %s IN (", o.Dialect.QualifiedName(p.Schema, p.Table), p.Key.Name)

			for r := begin; r != end; r++ {
				if r != begin {
					b.sql.WriteByte(',')
				}
				b.param(BindValue(p.Key, p.KeyValues[r], now))
			}
			b.sql.WriteByte(')')
			out = append(out, b.statement(KindDeleteBatch, begin, end-begin))
		}

	case RowByRow:
		for r := range p.Rows {
			out = append(out, o.renderRow(&p.Rows[r], r, now))
		}
	}
	return out
}

// renderRow renders the single-row statement of RowChange |row|.
func (o *Optimizer) renderRow(row *pb.RowChange, index int, now time.Time) Statement {
	var b = o.newBuilder()
	var name = o.Dialect.QualifiedName(row.Schema, row.Table)

	switch row.Action {
	case pb.Insert:
		b.printf("INSERT INTO %s (%s) VALUES (", name, columnNames(row.Columns))
		for c, col := range row.Columns {
			if c != 0 {
				b.sql.WriteByte(',')
			}
			b.param(BindValue(col, row.Values[c], now))
		}
		b.sql.WriteByte(')')
		return b.statement(KindInsertRow, index, 1)

	case pb.Update:
		b.printf("UPDATE %s SET ", name)
		for c, col := range row.Columns {
			if c != 0 {
				b.sql.WriteByte(',')
			}
			b.printf("%s=", col.Name)
			b.param(BindValue(col, row.Values[c], now))
		}
		b.where(row, now)
		return b.statement(KindUpdateRow, index, 1)

	default:
		b.printf("DELETE FROM %s", name)
		b.where(row, now)
		return b.statement(KindDeleteRow, index, 1)
	}
}

// chunks returns a sequence of [begin, end) row ranges covering |n| rows,
// each of at most MaxRows.
func (o *Optimizer) chunks(n int) func(yield func(int, int) bool) {
	return func(yield func(int, int) bool) {
		var size = n
		if o.MaxRows > 0 && o.MaxRows < n {
			size = o.MaxRows
		}
		for begin := 0; begin < n; begin += size {
			if !yield(begin, min(begin+size, n)) {
				return
			}
		}
	}
}

func (o *Optimizer) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

func (o *Optimizer) newBuilder() *builder { return &builder{dialect: o.Dialect} }

// builder accumulates statement text and its bound arguments.
type builder struct {
	dialect dialect.Dialect
	sql     strings.Builder
	args    []interface{}
}

func (b *builder) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(&b.sql, format, args...)
}

// param binds |arg| to the next placeholder of the statement.
func (b *builder) param(arg interface{}) {
	b.args = append(b.args, arg)
	b.sql.WriteString(b.dialect.Placeholder(len(b.args)))
}

// where renders the clause matching the before-image of |row|. NULL key
// values match with IS NULL.
func (b *builder) where(row *pb.RowChange, now time.Time) {
	for k, col := range row.KeyColumns() {
		if k == 0 {
			b.sql.WriteString(" WHERE ")
		} else {
			b.sql.WriteString(" AND ")
		}
		if v := row.KeyValues[k]; v.IsNull() {
			b.printf("%s IS NULL", col.Name)
		} else {
			b.printf("%s=", col.Name)
			b.param(BindValue(col, v, now))
		}
	}
}

func (b *builder) statement(kind Kind, first, rows int) Statement {
	return Statement{SQL: b.sql.String(), Args: b.args, Kind: kind, FirstRow: first, Rows: rows}
}

func columnNames(cols []pb.ColumnSpec) string {
	var names = make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return strings.Join(names, ",")
}

// sameColumns is true if every row has identical ColumnSpecs. Rows of an
// InsertBatch are bound using the ColumnSpecs of the first row, so specs
// which differ only in width or signedness also preclude the batch.
func sameColumns(rows []pb.RowChange) bool {
	var first = rows[0].Columns
	for _, r := range rows[1:] {
		if len(r.Columns) != len(first) {
			return false
		}
		for c := range first {
			if r.Columns[c] != first[c] {
				return false
			}
		}
	}
	return true
}

// singleKeyValues returns the non-NULL values of the single-column primary
// key of |table| from each row, if the key is present in every row.
func singleKeyValues(rows []pb.RowChange, table TableInfo) (pb.ColumnSpec, []pb.Value, bool) {
	if len(table.PrimaryKey) != 1 {
		return pb.ColumnSpec{}, nil, false
	}
	var key pb.ColumnSpec
	var values = make([]pb.Value, 0, len(rows))

	for r := range rows {
		var found bool
		for k, col := range rows[r].KeyColumns() {
			if col.Name != table.PrimaryKey[0] {
				continue
			} else if v := rows[r].KeyValues[k]; v.IsNull() {
				return pb.ColumnSpec{}, nil, false
			} else {
				key, found = col, true
				values = append(values, v)
				break
			}
		}
		if !found {
			return pb.ColumnSpec{}, nil, false
		}
	}
	return key, values, true
}
