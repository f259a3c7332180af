package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	want := Cursor{CreatedAt: time.Date(2026, 10, 19, 8, 0, 0, 123, time.UTC), ID: uuid.New()}
	got, err := ParseCursor(EncodeCursor(want))
	require.NoError(t, err)
	require.True(t, got.CreatedAt.Equal(want.CreatedAt))
	require.Equal(t, want.ID, got.ID)
}

func TestParseCursor(t *testing.T) {
	c, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, c)

	bad := []string{
		"bad!",
		base64.RawURLEncoding.EncodeToString([]byte("nope")),
		base64.RawURLEncoding.EncodeToString([]byte(`{"t":"2026-10-19T00:00:00Z"}`)),
		EncodeCursor(Cursor{}),
	}
	for _, v := range bad {
		_, err := ParseCursor(v)
		require.Error(t, err, "cursor %q", v)
	}
}

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{0: DefaultLimit, -3: DefaultLimit, 5: 5, 1000: MaxLimit}
	for in, want := range cases {
		require.Equal(t, want, NormalizeLimit(in), "limit %d", in)
	}
}

func TestPage(t *testing.T) {
	base := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	rows := make([]Cursor, 4)
	for i := range rows {
		rows[i] = Cursor{CreatedAt: base.Add(-time.Duration(i) * time.Minute), ID: uuid.New()}
	}
	identity := func(c Cursor) Cursor { return c }

	page, next := Page(rows, 3, identity)
	require.Len(t, page, 3)
	require.NotNil(t, next)
	require.Equal(t, rows[2], *next)

	page, next = Page(rows[:3], 3, identity)
	require.Len(t, page, 3)
	require.Nil(t, next)
}
