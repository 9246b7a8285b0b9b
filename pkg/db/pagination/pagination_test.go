package pagination

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPageTrimsAndEncodesCursor(t *testing.T) {
	items := []string{"a", "b", "c"}

	page, info := Page(items, 2, func(s string) string { return s })
	require.Equal(t, []string{"a", "b"}, page)
	require.True(t, info.HasMore)

	cursor, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	require.Equal(t, "b", cursor.Key)

	page, info = Page(items, 5, func(s string) string { return s })
	require.Len(t, page, 3)
	require.False(t, info.HasMore)
	require.Empty(t, info.NextPageToken)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("%%%")
	require.ErrorIs(t, err, ErrInvalidPageToken)
}

func TestPaginationSize(t *testing.T) {
	require.Equal(t, DefaultPageSize, Pagination{}.Size())
	require.Equal(t, MaxPageSize, Pagination{PageSize: 1000}.Size())
	require.Equal(t, 7, Pagination{PageSize: 7}.Size())
}
