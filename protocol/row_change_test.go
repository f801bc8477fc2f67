package protocol

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	gc "gopkg.in/check.v1"
)

type RowChangeSuite struct{}

func (s *RowChangeSuite) TestShardAndAssignmentValidationCases(c *gc.C) {
	c.Check(ShardID("db_one").Validate(), gc.IsNil)
	c.Check(ShardID("").Validate(), gc.ErrorMatches, `invalid length \(0; expected 1 <= length <= 128\)`)
	c.Check(ShardID(strings.Repeat("a", 129)).Validate(), gc.ErrorMatches, `invalid length \(129; .*`)
	c.Check(ShardID(" db").Validate(), gc.ErrorMatches, `has leading or trailing whitespace \(" db"\)`)

	c.Check(Channel(0).Validate(4), gc.IsNil)
	c.Check(Channel(3).Validate(4), gc.IsNil)
	c.Check(Channel(4).Validate(4), gc.ErrorMatches, `invalid channel \(4; expected 0 <= channel < 4\)`)

	c.Check(Assignment{ShardID: "a", Channel: 1}.Validate(2), gc.IsNil)
	c.Check(Assignment{ShardID: "a", Channel: -1}.Validate(2), gc.ErrorMatches,
		`Channel: invalid channel \(-1; expected 0 <= channel < 2\)`)
	c.Check(Assignment{Channel: 1}.Validate(2), gc.ErrorMatches, `ShardID: invalid length .*`)
}

func (s *RowChangeSuite) TestIdentifierCases(c *gc.C) {
	c.Check(ValidateIdentifier("a_table$1", 1, 64), gc.IsNil)
	c.Check(ValidateIdentifier("_t", 1, 64), gc.IsNil)
	c.Check(ValidateIdentifier("", 0, 64), gc.IsNil)
	c.Check(ValidateIdentifier("", 1, 64), gc.ErrorMatches, `invalid length \(0; expected 1 <= length <= 64\)`)
	c.Check(ValidateIdentifier("1abc", 1, 64), gc.ErrorMatches, `not a valid identifier \(1abc\)`)
	c.Check(ValidateIdentifier("a;drop", 1, 64), gc.ErrorMatches, `not a valid identifier \(a;drop\)`)
	c.Check(ValidateIdentifier("a b", 1, 64), gc.ErrorMatches, `not a valid identifier \(a b\)`)
}

func (s *RowChangeSuite) TestRowChangeValidationCases(c *gc.C) {
	var cols = []ColumnSpec{{Name: "id", Type: TypeInteger}, {Name: "name", Type: TypeVarChar}}
	var row = RowChange{
		Action:  Insert,
		Schema:  "s",
		Table:   "t",
		Columns: cols,
		Values:  []Value{IntValue(1), StringValue("one")},
	}
	c.Check(row.Validate(), gc.IsNil)

	row.Values = row.Values[:1]
	c.Check(row.Validate(), gc.ErrorMatches, `Values not aligned to Columns \(1 values; 2 columns\)`)
	row.Values = []Value{IntValue(1), StringValue("one")}

	row.KeyValues = []Value{IntValue(1)}
	c.Check(row.Validate(), gc.ErrorMatches, `unexpected KeyValues for INSERT`)
	row.KeyValues = nil

	row.Table = "bad table"
	c.Check(row.Validate(), gc.ErrorMatches, `Table: not a valid identifier \(bad table\)`)
	row.Table = "t"

	row.Columns[1].Name = ""
	c.Check(row.Validate(), gc.ErrorMatches, `Columns\[1\].Name: invalid length .*`)
	row.Columns[1].Name = "name"

	// Deletes are keyed on Columns when Keys are omitted.
	var del = RowChange{Action: Delete, Schema: "s", Table: "t", Columns: cols,
		KeyValues: []Value{IntValue(1), StringValue("one")}}
	c.Check(del.Validate(), gc.IsNil)
	c.Check(del.KeyColumns(), gc.DeepEquals, cols)

	del.Keys = cols[:1]
	c.Check(del.Validate(), gc.ErrorMatches,
		`KeyValues not aligned to key columns \(2 values; 1 columns\)`)
	del.KeyValues = del.KeyValues[:1]
	c.Check(del.Validate(), gc.IsNil)

	del.Values = []Value{IntValue(1)}
	c.Check(del.Validate(), gc.ErrorMatches, `unexpected Values for DELETE`)

	var upd = RowChange{Action: Update, Schema: "s", Table: "t", Columns: cols,
		Values: []Value{IntValue(1), StringValue("two")}}
	c.Check(upd.Validate(), gc.ErrorMatches, `KeyValues not aligned to key columns \(0 values; 2 columns\)`)

	c.Check((&RowChange{Table: "t"}).Validate(), gc.ErrorMatches, `Action: invalid action \(0\)`)
}

func (s *RowChangeSuite) TestChangeSetAndEventValidation(c *gc.C) {
	var mk = func(table string, id int64) RowChange {
		return RowChange{Action: Delete, Schema: "s", Table: table,
			Keys: []ColumnSpec{{Name: "id", Type: TypeBigInt}}, KeyValues: []Value{IntValue(id)}}
	}
	var cs = NewChangeSet(mk("t", 1), mk("t", 2))
	c.Check(cs.Schema, gc.Equals, "s")
	c.Check(cs.Table, gc.Equals, "t")
	c.Check(cs.Action, gc.Equals, Delete)
	c.Check(cs.Validate(), gc.IsNil)

	cs.Rows = append(cs.Rows, mk("other", 3))
	c.Check(cs.Validate(), gc.ErrorMatches, `Rows\[2\] doesn't match ChangeSet \(DELETE s.other vs DELETE s.t\)`)

	c.Check((&ChangeSet{}).Validate(), gc.ErrorMatches, `expected at least one row`)

	var ev = Event{Seqno: 12, ShardID: "db", ChangeSets: []ChangeSet{NewChangeSet(mk("t", 1)), cs}}
	c.Check(ev.Validate(), gc.ErrorMatches, `ChangeSets\[1\]: Rows\[2\] doesn't match .*`)
	c.Check(ev.RowCount(), gc.Equals, 4)

	ev.ChangeSets = ev.ChangeSets[:1]
	c.Check(ev.Validate(), gc.IsNil)
	ev.ShardID = ""
	c.Check(ev.Validate(), gc.ErrorMatches, `ShardID: invalid length .*`)
	ev.ShardID, ev.Seqno = "db", -1
	c.Check(ev.Validate(), gc.ErrorMatches, `invalid Seqno \(-1; expected >= 0\)`)
}

func (s *RowChangeSuite) TestTypeAndActionText(c *gc.C) {
	var typ SQLType
	c.Check(typ.UnmarshalText([]byte("int")), gc.IsNil)
	c.Check(typ, gc.Equals, TypeInteger)
	c.Check(typ.UnmarshalText([]byte("tinyint")), gc.IsNil)
	c.Check(typ, gc.Equals, TypeTinyInt)
	c.Check(typ.UnmarshalText([]byte("GEOMETRY")), gc.ErrorMatches, `unknown SQL type \(GEOMETRY\)`)

	c.Check(TypeBigInt.IsInteger(), gc.Equals, true)
	c.Check(TypeTimestamp.IsInteger(), gc.Equals, false)
	c.Check(TypeTimestamp.IsTemporal(), gc.Equals, true)

	var act Action
	c.Check(act.UnmarshalText([]byte("delete")), gc.IsNil)
	c.Check(act, gc.Equals, Delete)
	c.Check(act.UnmarshalText([]byte("UPSERT")), gc.ErrorMatches, `unknown action \(UPSERT\)`)
}

func (s *RowChangeSuite) TestEventDecoding(c *gc.C) {
	var ev Event
	c.Assert(json.Unmarshal([]byte(`{
		"seqno": 7,
		"shard": "db_one",
		"changeSets": [{
			"schema": "s", "table": "t", "action": "INSERT",
			"rows": [{
				"action": "INSERT", "schema": "s", "table": "t",
				"columns": [
					{"name": "id", "type": "TINYINT", "length": 1, "unsigned": true},
					{"name": "data", "type": "BLOB", "blob": true},
					{"name": "at", "type": "TIMESTAMP"},
					{"name": "note", "type": "VARCHAR"}
				],
				"values": [{"int": -5}, {"bytes": "AQI="}, {"now": true}, null]
			}]
		}]
	}`), &ev), gc.IsNil)

	c.Check(ev.Validate(), gc.IsNil)
	var row = ev.ChangeSets[0].Rows[0]
	c.Check(row.Columns[0], gc.DeepEquals, ColumnSpec{Name: "id", Type: TypeTinyInt, Length: 1, Unsigned: true})
	c.Check(row.Values, gc.DeepEquals, []Value{IntValue(-5), BytesValue([]byte{1, 2}), NowValue(), NullValue()})

	var v Value
	c.Check(json.Unmarshal([]byte(`{"int": 1, "str": "x"}`), &v), gc.ErrorMatches,
		`expected exactly one value field \(got 2\).*`)
	c.Check(json.Unmarshal([]byte(`{}`), &v), gc.ErrorMatches, `expected exactly one value field \(got 0\).*`)

	var ts = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var b, err = json.Marshal([]Value{TimeValue(ts), StringValue("x"), NullValue()})
	c.Check(err, gc.IsNil)
	c.Check(string(b), gc.Equals, `[{"time":"2024-03-01T12:00:00Z"},{"str":"x"},{"null":true}]`)
}

var _ = gc.Suite(&RowChangeSuite{})

func Test(t *testing.T) { gc.TestingT(t) }
