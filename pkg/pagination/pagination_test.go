package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
)

func TestCursorRoundTrip(t *testing.T) {
	c := Cursor{CreatedAt: time.Date(2026, 3, 1, 9, 30, 0, 123, time.UTC), ID: uuid.New()}

	got, err := Decode(c.Encode())
	require.NoError(t, err)
	require.True(t, got.CreatedAt.Equal(c.CreatedAt))
	require.Equal(t, c.ID, got.ID)
}

func TestDecodeEmptyAndMalformed(t *testing.T) {
	got, err := Decode("  ")
	require.NoError(t, err)
	require.Nil(t, got)

	for _, token := range []string{"!!", "bm8tc2VwYXJhdG9y", "eHx5"} {
		_, err := Decode(token)
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), token)
	}
}

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+1))
	require.Equal(t, 7, NormalizeLimit(7))
	require.Equal(t, 8, Fetch(7))
}

func TestSplit(t *testing.T) {
	now := time.Now().UTC()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	key := func(id uuid.UUID) Cursor { return Cursor{CreatedAt: now, ID: id} }

	page, next := Split(ids, 2, key)
	require.Len(t, page, 2)
	decoded, err := Decode(next)
	require.NoError(t, err)
	require.Equal(t, ids[1], decoded.ID)

	page, next = Split(ids[:2], 2, key)
	require.Len(t, page, 2)
	require.Empty(t, next)
}
