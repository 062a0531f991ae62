package uid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize_SameCardAllShapes(t *testing.T) {
	cases := map[string]Raw{
		"bytes":  FromBytes([]byte{0x04, 0xA3, 0x2B, 0x91}),
		"values": FromValues(4, 163, 43, 145),
		"upper":  FromText("04A32B91"),
		"lower":  FromText("04a32b91"),
		"colons": FromText("04:a3:2B:91"),
		"spaces": FromText(" 04 A3 2b 91 "),
		"dashes": FromText("04-A3-2B-91"),
		"mixed":  FromText("04:a3-2b 91\n"),
	}
	for name, raw := range cases {
		got, err := Normalize(raw)
		require.NoError(t, err, name)
		require.Equal(t, "04A32B91", got, name)
	}
}

func TestNormalize_ValuesZeroPadded(t *testing.T) {
	got, err := Normalize(FromValues(0, 1, 15, 16, 255))
	require.NoError(t, err)
	require.Equal(t, "00010F10FF", got)
}

func TestNormalize_NumericString(t *testing.T) {
	got, err := Normalize(FromText("12345678"))
	require.NoError(t, err)
	require.Equal(t, "12345678", got)
}

func TestNormalize_Malformed(t *testing.T) {
	cases := map[string]Raw{
		"zero":            {},
		"empty bytes":     FromBytes(nil),
		"empty values":    FromValues(),
		"negative":        FromValues(1, -1),
		"too large":       FromValues(256),
		"empty text":      FromText(""),
		"no hex chars":    FromText("zz:yy--"),
		"only separators": FromText(" : - "),
	}
	for name, raw := range cases {
		_, err := Normalize(raw)
		require.Error(t, err, name)
		require.True(t, errors.Is(err, ErrMalformed), name)
	}
}

func TestRaw_IsZero(t *testing.T) {
	require.True(t, Raw{}.IsZero())
	require.True(t, FromText("").IsZero())
	require.False(t, FromBytes([]byte{1}).IsZero())
	require.False(t, FromValues(0).IsZero())
}

func TestFromBytes_Copies(t *testing.T) {
	b := []byte{0xAA}
	r := FromBytes(b)
	b[0] = 0x00
	got, err := Normalize(r)
	require.NoError(t, err)
	require.Equal(t, "AA", got)
}
