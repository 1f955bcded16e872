package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowDefaultsAndClamps(t *testing.T) {
	offset, size, err := Pagination{}.Window()
	require.NoError(t, err)
	assert.Zero(t, offset)
	assert.Equal(t, DefaultPageSize, size)

	_, size, err = Pagination{PageSize: 10_000}.Window()
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, size)
}

func TestPageRoundTrip(t *testing.T) {
	items := []*int{new(int), new(int), new(int)}

	page, info := Page(items, 0, 2)
	assert.Len(t, page, 2)
	require.True(t, info.HasMore)

	offset, _, err := Pagination{PageToken: info.NextPageToken, PageSize: 2}.Window()
	require.NoError(t, err)
	assert.Equal(t, 2, offset)

	page, info = Page(items[:1], 2, 2)
	assert.Len(t, page, 1)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestWindowRejectsGarbageToken(t *testing.T) {
	_, _, err := Pagination{PageToken: "%%%"}.Window()
	assert.ErrorIs(t, err, ErrInvalidPageToken)
}
