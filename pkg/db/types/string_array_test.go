package dbtypes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringArrayValueAndScan(t *testing.T) {
	in := StringArray{"photo-1.jpg", `note "a,b"`}
	raw, err := in.Value()
	require.NoError(t, err)

	var out StringArray
	require.NoError(t, out.Scan(raw))
	require.Equal(t, in, out)
}

func TestStringArrayScanEmpty(t *testing.T) {
	var out StringArray
	require.NoError(t, out.Scan("{}"))
	require.Empty(t, out)

	require.NoError(t, out.Scan(nil))
	require.Empty(t, out)
}

func TestStringArrayScanUnquoted(t *testing.T) {
	var out StringArray
	require.NoError(t, out.Scan([]byte("{a,b}")))
	require.Equal(t, StringArray{"a", "b"}, out)
}

func TestStringArrayScanRejectsMalformed(t *testing.T) {
	var out StringArray
	require.Error(t, out.Scan("a,b"))
}
