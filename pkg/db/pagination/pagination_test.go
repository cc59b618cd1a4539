package pagination

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPageSize(t *testing.T) {
	require.Equal(t, DefaultLimit, Pagination{}.PageSize())
	require.Equal(t, 3, Pagination{Limit: 3}.PageSize())
	require.Equal(t, MaxLimit, Pagination{Limit: 1000}.PageSize())
}

func TestCursorRoundTrip(t *testing.T) {
	raw, err := EncodeCursor(Cursor{ID: "1234"})
	require.NoError(t, err)

	c, err := DecodeCursor(raw)
	require.NoError(t, err)
	require.Equal(t, "1234", c.ID)

	c, err = DecodeCursor("")
	require.NoError(t, err)
	require.Nil(t, c)

	_, err = DecodeCursor("%%%")
	require.Error(t, err)
}

func TestBuildCursorPage(t *testing.T) {
	ids := []int{5, 4, 3}
	extract := func(i *int) Cursor { return Cursor{ID: strconv.Itoa(*i)} }

	page, info, err := BuildCursorPage(ids, 2, extract)
	require.NoError(t, err)
	require.Equal(t, []int{5, 4}, page)
	require.True(t, info.HasMore)

	c, err := DecodeCursor(info.NextCursor)
	require.NoError(t, err)
	require.Equal(t, "4", c.ID)

	page, info, err = BuildCursorPage(ids, 3, extract)
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.False(t, info.HasMore)
	require.Empty(t, info.NextCursor)
}
