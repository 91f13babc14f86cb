package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := TokenFor(1780000000000000123)
	require.NoError(t, err)

	id, err := AfterID(token)
	require.NoError(t, err)
	assert.Equal(t, int64(1780000000000000123), id)

	id, err = AfterID("")
	require.NoError(t, err)
	assert.Zero(t, id)

	_, err = AfterID("!!!")
	assert.ErrorIs(t, err, ErrInvalidPageToken)
}

func TestPaginationSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Size())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 1000}.Size())
	assert.Equal(t, 10, Pagination{PageSize: 10}.Size())
}
