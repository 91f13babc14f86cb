package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateAcceptsConfiguredLayouts(t *testing.T) {
	for _, input := range []string{"2024-03-15", "03/15/2024", "15.03.2024", "2024/03/15", "2024-03-15T10:00:00Z"} {
		d, err := ParseDate(input)
		require.NoError(t, err, input)
		assert.Equal(t, "2024-03-15", d.String(), input)
	}

	_, err := ParseDate("next tuesday")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestDateJSONRoundTrip(t *testing.T) {
	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"03/15/2024"`), &d))

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `"2024-03-15"`, string(out))
}

func TestDateScan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan("2024-03-15 00:00:00+00:00"))
	assert.Equal(t, "2024-03-15", d.String())

	require.NoError(t, d.Scan(time.Date(2023, 1, 2, 13, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2023-01-02", d.String())

	assert.Error(t, d.Scan(42))
}
