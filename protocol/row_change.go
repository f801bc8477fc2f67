package protocol

// ColumnSpec describes a replicated column.
type ColumnSpec struct {
	Name string  `json:"name"`
	Type SQLType `json:"type"`
	// Length is the declared storage width of the column, in bytes.
	Length   int  `json:"length,omitempty"`
	Unsigned bool `json:"unsigned,omitempty"`
	Blob     bool `json:"blob,omitempty"`
}

// Validate returns an error if the ColumnSpec is not well-formed.
func (c ColumnSpec) Validate() error {
	if err := ValidateIdentifier(c.Name, 1, MaxIdentifierLen); err != nil {
		return ExtendContext(err, "Name")
	} else if c.Length < 0 {
		return NewValidationError("invalid Length (%d; expected >= 0)", c.Length)
	}
	return nil
}

// RowChange is a single logical row mutation.
type RowChange struct {
	Action Action `json:"action"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	// Columns of the after-image, in declared order.
	Columns []ColumnSpec `json:"columns,omitempty"`
	// Keys are columns of the before-image used to match the row. If empty,
	// KeyValues are aligned to Columns.
	Keys []ColumnSpec `json:"keys,omitempty"`
	// Values of the after-image (Insert and Update), aligned to Columns.
	Values []Value `json:"values,omitempty"`
	// KeyValues of the before-image (Update and Delete), aligned to KeyColumns.
	KeyValues []Value `json:"keyValues,omitempty"`
}

// KeyColumns returns the ColumnSpecs to which KeyValues are aligned.
func (r *RowChange) KeyColumns() []ColumnSpec {
	if len(r.Keys) != 0 {
		return r.Keys
	}
	return r.Columns
}

// Validate returns an error if the RowChange is not well-formed.
func (r *RowChange) Validate() error {
	if err := r.Action.Validate(); err != nil {
		return ExtendContext(err, "Action")
	} else if err = ValidateIdentifier(r.Schema, 0, MaxIdentifierLen); err != nil {
		return ExtendContext(err, "Schema")
	} else if err = ValidateIdentifier(r.Table, 1, MaxIdentifierLen); err != nil {
		return ExtendContext(err, "Table")
	}
	for i, c := range r.Columns {
		if err := c.Validate(); err != nil {
			return ExtendContext(err, "Columns[%d]", i)
		}
	}
	for i, c := range r.Keys {
		if err := c.Validate(); err != nil {
			return ExtendContext(err, "Keys[%d]", i)
		}
	}

	if r.Action == Insert || r.Action == Update {
		if len(r.Columns) == 0 {
			return NewValidationError("expected Columns for %s", r.Action)
		} else if len(r.Values) != len(r.Columns) {
			return NewValidationError("Values not aligned to Columns (%d values; %d columns)",
				len(r.Values), len(r.Columns))
		}
	} else if len(r.Values) != 0 {
		return NewValidationError("unexpected Values for %s", r.Action)
	}

	if r.Action == Update || r.Action == Delete {
		var keys = r.KeyColumns()
		if len(keys) == 0 {
			return NewValidationError("expected key columns for %s", r.Action)
		} else if len(r.KeyValues) != len(keys) {
			return NewValidationError("KeyValues not aligned to key columns (%d values; %d columns)",
				len(r.KeyValues), len(keys))
		}
	} else if len(r.KeyValues) != 0 {
		return NewValidationError("unexpected KeyValues for %s", r.Action)
	}
	return nil
}

// ChangeSet is an ordered list of RowChanges sharing the same schema, table
// and action, within one transaction fragment. It's the unit of batching.
type ChangeSet struct {
	Schema string      `json:"schema"`
	Table  string      `json:"table"`
	Action Action      `json:"action"`
	Rows   []RowChange `json:"rows"`
}

// Validate returns an error if the ChangeSet is not well-formed.
func (cs *ChangeSet) Validate() error {
	if len(cs.Rows) == 0 {
		return NewValidationError("expected at least one row")
	}
	for i := range cs.Rows {
		var r = &cs.Rows[i]

		if err := r.Validate(); err != nil {
			return ExtendContext(err, "Rows[%d]", i)
		} else if r.Schema != cs.Schema || r.Table != cs.Table || r.Action != cs.Action {
			return NewValidationError("Rows[%d] doesn't match ChangeSet (%s %s.%s vs %s %s.%s)",
				i, r.Action, r.Schema, r.Table, cs.Action, cs.Schema, cs.Table)
		}
	}
	return nil
}

// NewChangeSet returns a ChangeSet of the given |rows|, taking its schema,
// table and action from the first row.
func NewChangeSet(rows ...RowChange) ChangeSet {
	var cs = ChangeSet{Rows: rows}
	if len(rows) != 0 {
		cs.Schema, cs.Table, cs.Action = rows[0].Schema, rows[0].Table, rows[0].Action
	}
	return cs
}

// Event is a fragment of a source transaction, tagged with the ShardID under
// which it must be ordered. Seqno is the position of the Event within the
// extracted change log.
type Event struct {
	Seqno      int64       `json:"seqno"`
	ShardID    ShardID     `json:"shard"`
	ChangeSets []ChangeSet `json:"changeSets"`
}

// Validate returns an error if the Event is not well-formed.
func (e *Event) Validate() error {
	if e.Seqno < 0 {
		return NewValidationError("invalid Seqno (%d; expected >= 0)", e.Seqno)
	} else if err := e.ShardID.Validate(); err != nil {
		return ExtendContext(err, "ShardID")
	}
	for i := range e.ChangeSets {
		if err := e.ChangeSets[i].Validate(); err != nil {
			return ExtendContext(err, "ChangeSets[%d]", i)
		}
	}
	return nil
}

// RowCount returns the total number of RowChanges of the Event.
func (e *Event) RowCount() (n int) {
	for i := range e.ChangeSets {
		n += len(e.ChangeSets[i].Rows)
	}
	return
}
