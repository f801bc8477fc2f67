package protocol

import "strings"

// Action of a RowChange.
type Action int

const (
	ActionUnknown Action = iota
	Insert
	Update
	Delete
)

var actionNames = [...]string{
	ActionUnknown: "UNKNOWN",
	Insert:        "INSERT",
	Update:        "UPDATE",
	Delete:        "DELETE",
}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return actionNames[ActionUnknown]
	}
	return actionNames[a]
}

// Validate returns an error if the Action is not one of Insert, Update, or Delete.
func (a Action) Validate() error {
	switch a {
	case Insert, Update, Delete:
		return nil
	default:
		return NewValidationError("invalid action (%d)", int(a))
	}
}

// MarshalText encodes the Action as its name.
func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText decodes an Action from its (case-insensitive) name.
func (a *Action) UnmarshalText(b []byte) error {
	for i, n := range actionNames {
		if i != int(ActionUnknown) && strings.EqualFold(n, string(b)) {
			*a = Action(i)
			return nil
		}
	}
	return NewValidationError("unknown action (%s)", string(b))
}

// SQLType is the declared type of a replicated column, as reported by the
// extractor. It's the subset of types for which apply behavior differs.
type SQLType int

const (
	TypeUnknown SQLType = iota
	TypeTinyInt
	TypeSmallInt
	TypeMediumInt
	TypeInteger
	TypeBigInt
	TypeDecimal
	TypeFloat
	TypeDouble
	TypeBit
	TypeChar
	TypeVarChar
	TypeText
	TypeBinary
	TypeVarBinary
	TypeBlob
	TypeDate
	TypeTime
	TypeDateTime
	TypeTimestamp
	TypeYear
)

var sqlTypeNames = [...]string{
	TypeUnknown:   "UNKNOWN",
	TypeTinyInt:   "TINYINT",
	TypeSmallInt:  "SMALLINT",
	TypeMediumInt: "MEDIUMINT",
	TypeInteger:   "INTEGER",
	TypeBigInt:    "BIGINT",
	TypeDecimal:   "DECIMAL",
	TypeFloat:     "FLOAT",
	TypeDouble:    "DOUBLE",
	TypeBit:       "BIT",
	TypeChar:      "CHAR",
	TypeVarChar:   "VARCHAR",
	TypeText:      "TEXT",
	TypeBinary:    "BINARY",
	TypeVarBinary: "VARBINARY",
	TypeBlob:      "BLOB",
	TypeDate:      "DATE",
	TypeTime:      "TIME",
	TypeDateTime:  "DATETIME",
	TypeTimestamp: "TIMESTAMP",
	TypeYear:      "YEAR",
}

func (t SQLType) String() string {
	if t < 0 || int(t) >= len(sqlTypeNames) {
		return sqlTypeNames[TypeUnknown]
	}
	return sqlTypeNames[t]
}

// IsInteger returns true if the type is an integer type.
func (t SQLType) IsInteger() bool {
	switch t {
	case TypeTinyInt, TypeSmallInt, TypeMediumInt, TypeInteger, TypeBigInt:
		return true
	}
	return false
}

// IsTemporal returns true if the type is a date or time type.
func (t SQLType) IsTemporal() bool {
	switch t {
	case TypeDate, TypeTime, TypeDateTime, TypeTimestamp, TypeYear:
		return true
	}
	return false
}

// MarshalText encodes the SQLType as its name.
func (t SQLType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText decodes a SQLType from its (case-insensitive) name.
// "INT" is accepted as an alias of INTEGER.
func (t *SQLType) UnmarshalText(b []byte) error {
	var s = string(b)
	if strings.EqualFold(s, "INT") {
		s = "INTEGER"
	}
	for i, n := range sqlTypeNames {
		if i != int(TypeUnknown) && strings.EqualFold(n, s) {
			*t = SQLType(i)
			return nil
		}
	}
	return NewValidationError("unknown SQL type (%s)", string(b))
}
