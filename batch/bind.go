package batch

import (
	"database/sql/driver"
	"math/big"
	"time"

	pb "go.shardapply.dev/core/protocol"
)

// BindValue returns the database/sql argument of Value |v| of column |col|.
// |now| is the binding of "now" placeholders of temporal columns.
func BindValue(col pb.ColumnSpec, v pb.Value, now time.Time) interface{} {
	switch v.Kind {
	case pb.KindNull:
		return nil
	case pb.KindInt:
		if col.Unsigned && v.Int < 0 {
			return unsignedMagnitude(v.Int, width(col))
		}
		return v.Int
	case pb.KindFloat:
		return v.Float
	case pb.KindString:
		if col.Blob {
			return []byte(v.Str)
		}
		return v.Str
	case pb.KindBytes:
		if v.Bytes == nil {
			return []byte{}
		}
		return v.Bytes
	case pb.KindTime:
		return v.Time
	case pb.KindNow:
		// Temporal columns which are declared as integers are bound as zero.
		if col.Type.IsInteger() {
			return int64(0)
		}
		return now
	}
	return nil
}

// width returns the declared byte width of an integer column. Where Length is
// unset the width follows from the column type.
func width(col pb.ColumnSpec) int {
	if col.Length != 0 {
		return col.Length
	}
	switch col.Type {
	case pb.TypeTinyInt:
		return 1
	case pb.TypeSmallInt:
		return 2
	case pb.TypeMediumInt:
		return 3
	case pb.TypeInteger:
		return 4
	case pb.TypeBigInt:
		return 8
	}
	return 0
}

// unsignedMagnitude corrects negative |v|, which was extracted as a signed
// value of a |w| byte unsigned column, into its unsigned magnitude.
// Unrecognized widths bind |v| unchanged.
func unsignedMagnitude(v int64, w int) interface{} {
	switch w {
	case 1, 2, 3, 4:
		return v + int64(1)<<(8*uint(w))
	case 8:
		var u = new(Unsigned64)
		u.SetUint64(uint64(v))
		return u
	}
	return v
}

// Unsigned64 is an unsigned 64-bit integer beyond the range of int64.
// It binds as its decimal text, as database/sql doesn't admit uint64 values
// having the high bit set.
type Unsigned64 struct{ big.Int }

// Value implements driver.Valuer.
func (u *Unsigned64) Value() (driver.Value, error) { return u.String(), nil }

var _ driver.Valuer = (*Unsigned64)(nil)
