package batch

import (
	"database/sql/driver"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	pb "go.shardapply.dev/core/protocol"
)

func TestUnsignedCorrection(t *testing.T) {
	var now = time.Now()

	for _, tc := range []struct {
		col    pb.ColumnSpec
		raw    int64
		expect interface{}
	}{
		{pb.ColumnSpec{Type: pb.TypeTinyInt, Length: 1, Unsigned: true}, -5, int64(251)},
		{pb.ColumnSpec{Type: pb.TypeSmallInt, Length: 2, Unsigned: true}, -1, int64(65535)},
		{pb.ColumnSpec{Type: pb.TypeMediumInt, Length: 3, Unsigned: true}, -2, int64(16777214)},
		{pb.ColumnSpec{Type: pb.TypeInteger, Length: 4, Unsigned: true}, -1, int64(4294967295)},
		{pb.ColumnSpec{Type: pb.TypeInteger, Unsigned: true}, -1, int64(4294967295)}, // Width from type.
		{pb.ColumnSpec{Type: pb.TypeTinyInt, Length: 1, Unsigned: true}, 5, int64(5)},
		{pb.ColumnSpec{Type: pb.TypeTinyInt, Length: 1}, -5, int64(-5)},
		{pb.ColumnSpec{Type: pb.TypeDecimal, Length: 5, Unsigned: true}, -5, int64(-5)},
	} {
		require.Equal(t, tc.expect, BindValue(tc.col, pb.IntValue(tc.raw), now))
	}

	var arg = BindValue(pb.ColumnSpec{Type: pb.TypeBigInt, Length: 8, Unsigned: true}, pb.IntValue(-1), now)
	require.IsType(t, &Unsigned64{}, arg)
	require.Equal(t, "18446744073709551615", arg.(*Unsigned64).String())

	value, err := arg.(driver.Valuer).Value()
	require.NoError(t, err)
	require.Equal(t, "18446744073709551615", value)

	arg = BindValue(pb.ColumnSpec{Type: pb.TypeBigInt, Unsigned: true}, pb.IntValue(-9223372036854775808), now)
	require.Equal(t, "9223372036854775808", arg.(*Unsigned64).String())
}

func TestBindingOfOtherKinds(t *testing.T) {
	var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var ts = time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)

	var text = pb.ColumnSpec{Type: pb.TypeVarChar}
	var blob = pb.ColumnSpec{Type: pb.TypeBlob, Blob: true}

	require.Nil(t, BindValue(text, pb.NullValue(), now))
	require.Equal(t, "abc", BindValue(text, pb.StringValue("abc"), now))
	require.Equal(t, []byte("abc"), BindValue(blob, pb.StringValue("abc"), now))
	require.Equal(t, []byte{0xff, 0x00}, BindValue(blob, pb.BytesValue([]byte{0xff, 0x00}), now))
	require.Equal(t, []byte{}, BindValue(blob, pb.BytesValue(nil), now))
	require.Equal(t, 1.5, BindValue(pb.ColumnSpec{Type: pb.TypeDouble}, pb.FloatValue(1.5), now))
	require.Equal(t, ts, BindValue(pb.ColumnSpec{Type: pb.TypeDateTime}, pb.TimeValue(ts), now))

	// "Now" binds the current time, or zero for integer-declared columns.
	require.Equal(t, now, BindValue(pb.ColumnSpec{Type: pb.TypeTimestamp}, pb.NowValue(), now))
	require.Equal(t, int64(0), BindValue(pb.ColumnSpec{Type: pb.TypeBigInt}, pb.NowValue(), now))
}
