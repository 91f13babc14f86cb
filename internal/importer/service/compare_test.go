package service

import (
	"encoding/json"
	"testing"

	"github.com/smallbiznis/pipelineintel/internal/password"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFormats = []string{"2006-01-02", "01/02/2006", "02.01.2006"}

func TestSameValue(t *testing.T) {
	tests := []struct {
		name     string
		kind     fieldKind
		stored   any
		incoming any
		want     bool
	}{
		{name: "null equals empty text", kind: kindText, stored: nil, incoming: "", want: true},
		{name: "text is trimmed", kind: kindText, stored: "Chemical", incoming: " Chemical ", want: true},
		{name: "text differs", kind: kindText, stored: "Chemical", incoming: "Biologic", want: false},
		{name: "integer and float", kind: kindNumber, stored: int64(3), incoming: json.Number("3.0"), want: true},
		{name: "number from text", kind: kindNumber, stored: 12, incoming: "12", want: true},
		{name: "bool spellings", kind: kindBool, stored: true, incoming: "yes", want: true},
		{name: "null bool is false", kind: kindBool, stored: false, incoming: nil, want: true},
		{name: "date formats", kind: kindDate, stored: "2025-03-15", incoming: "03/15/2025", want: true},
		{name: "different dates", kind: kindDate, stored: "2025-03-15", incoming: "2025-03-16", want: false},
		{name: "json key order", kind: kindJSON, stored: []byte(`{"a":1,"b":[1,2]}`), incoming: map[string]any{"b": []any{json.Number("1"), json.Number("2.0")}, "a": 1}, want: true},
		{name: "json null and empty", kind: kindJSON, stored: []byte("null"), incoming: "", want: true},
		{name: "json list order matters", kind: kindJSON, stored: `["a","b"]`, incoming: []any{"b", "a"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sameValue(tt.kind, tt.stored, tt.incoming, testFormats))
		})
	}
}

func TestSamePassword(t *testing.T) {
	hash, err := password.Hash("s3cret")
	require.NoError(t, err)

	assert.True(t, samePassword(hash, "s3cret"))
	assert.True(t, samePassword(hash, hash))
	assert.True(t, samePassword(hash, ""))
	assert.False(t, samePassword(hash, "other"))
}

func TestCoerce(t *testing.T) {
	v, err := coerce(kindNumber, " 42 ", testFormats)
	require.NoError(t, err)
	assert.Equal(t, json.Number("42"), v)

	_, err = coerce(kindNumber, "forty", testFormats)
	assert.Error(t, err)

	v, err = coerce(kindDate, "15.03.2025", testFormats)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-15", v)

	_, err = coerce(kindDate, "someday", testFormats)
	assert.Error(t, err)

	v, err = coerce(kindJSON, `["x"]`, testFormats)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`["x"]`), v)

	v, err = coerce(kindJSON, "plain words", testFormats)
	require.NoError(t, err)
	assert.Equal(t, "plain words", v)

	v, err = coerce(kindText, "", testFormats)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = coerce(kindText, []any{"a"}, testFormats)
	assert.Error(t, err)

	v, err = coerce(kindBool, "no", testFormats)
	require.NoError(t, err)
	assert.Equal(t, false, v)
}

func TestNamesOf(t *testing.T) {
	names, notes, err := namesOf([]any{"A", map[string]any{"challenge_name": "B", "notes": "n"}, "A", ""}, "challenge_name")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, names)
	require.Contains(t, notes, "B")
	assert.Equal(t, "n", *notes["B"])

	names, _, err = namesOf("single", "modality_name")
	require.NoError(t, err)
	assert.Equal(t, []string{"single"}, names)

	_, _, err = namesOf(42, "modality_name")
	assert.ErrorIs(t, err, errInvalidValue)
}

func TestSuggest(t *testing.T) {
	candidates := []string{"Small Molecule", "Monoclonal Antibody", "Cell Therapy", "small molecules"}

	got := suggest(candidates, "Small Molcule", 0.6, 3)
	require.NotEmpty(t, got)
	assert.Equal(t, "Small Molecule", got[0].Name)
	assert.GreaterOrEqual(t, got[0].Ratio, 90)
	for _, s := range got {
		assert.NotEqual(t, "Cell Therapy", s.Name)
	}

	assert.Empty(t, suggest(candidates, "Gene Editing Platform", 0.9, 3))
	assert.Len(t, suggest(candidates, "Small Molecule", 0.1, 2), 2)
}
