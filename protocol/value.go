package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ValueKind enumerates the representations a Value may take.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindInt
	KindFloat
	KindString
	KindBytes
	KindTime
	// KindNow is a placeholder for "the current time", as extracted for
	// columns having a default of the current timestamp.
	KindNow
)

// Value is a typed column value extracted from a source row image. Integers
// are extracted as signed 64-bit values regardless of the declared column
// signedness, and must be corrected before they're bound (see package batch).
type Value struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Str   string
	Bytes []byte
	Time  time.Time
}

// NullValue returns a SQL NULL Value.
func NullValue() Value { return Value{Kind: KindNull} }

// IntValue returns an integer Value.
func IntValue(v int64) Value { return Value{Kind: KindInt, Int: v} }

// FloatValue returns a floating-point Value.
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }

// StringValue returns a string Value.
func StringValue(v string) Value { return Value{Kind: KindString, Str: v} }

// BytesValue returns a raw byte Value.
func BytesValue(v []byte) Value { return Value{Kind: KindBytes, Bytes: v} }

// TimeValue returns a temporal Value.
func TimeValue(v time.Time) Value { return Value{Kind: KindTime, Time: v} }

// NowValue returns a placeholder Value for the current time.
func NowValue() Value { return Value{Kind: KindNow} }

// IsNull returns true if the Value is SQL NULL.
func (v Value) IsNull() bool { return v.Kind == KindNull }

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "NULL"
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindString:
		return fmt.Sprintf("%q", v.Str)
	case KindBytes:
		return fmt.Sprintf("%x", v.Bytes)
	case KindTime:
		return v.Time.Format(time.RFC3339Nano)
	case KindNow:
		return "NOW()"
	default:
		return fmt.Sprintf("<invalid kind %d>", v.Kind)
	}
}

// jsonValue is the JSON representation of a Value: an object having exactly
// one of its fields set.
type jsonValue struct {
	Null  *bool      `json:"null,omitempty"`
	Int   *int64     `json:"int,omitempty"`
	Float *float64   `json:"float,omitempty"`
	Str   *string    `json:"str,omitempty"`
	Bytes *[]byte    `json:"bytes,omitempty"`
	Time  *time.Time `json:"time,omitempty"`
	Now   *bool      `json:"now,omitempty"`
}

// MarshalJSON encodes the Value as a single-field object, eg {"int": -5}.
func (v Value) MarshalJSON() ([]byte, error) {
	var out jsonValue
	var t = true

	switch v.Kind {
	case KindNull:
		out.Null = &t
	case KindInt:
		out.Int = &v.Int
	case KindFloat:
		out.Float = &v.Float
	case KindString:
		out.Str = &v.Str
	case KindBytes:
		out.Bytes = &v.Bytes
	case KindTime:
		out.Time = &v.Time
	case KindNow:
		out.Now = &t
	default:
		return nil, errors.Errorf("invalid value kind (%d)", v.Kind)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a Value from its single-field object representation.
// A bare JSON null is also accepted as SQL NULL.
func (v *Value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = NullValue()
		return nil
	}
	var in jsonValue
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	var n int
	if in.Null != nil {
		*v, n = NullValue(), n+1
	}
	if in.Int != nil {
		*v, n = IntValue(*in.Int), n+1
	}
	if in.Float != nil {
		*v, n = FloatValue(*in.Float), n+1
	}
	if in.Str != nil {
		*v, n = StringValue(*in.Str), n+1
	}
	if in.Bytes != nil {
		*v, n = BytesValue(*in.Bytes), n+1
	}
	if in.Time != nil {
		*v, n = TimeValue(*in.Time), n+1
	}
	if in.Now != nil {
		*v, n = NowValue(), n+1
	}
	if n != 1 {
		return errors.Errorf("expected exactly one value field (got %d): %s", n, string(b))
	}
	return nil
}
