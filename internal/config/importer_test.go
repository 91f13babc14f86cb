package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImportConfigHolderDefaults(t *testing.T) {
	holder, err := NewImportConfigHolder(Config{ImportConfigPath: ""})
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 0.6, cfg.SuggestionCutoff)
	assert.Equal(t, 3, cfg.MaxSuggestions)
	assert.Equal(t, "Upstream", cfg.PhaseOrder[0])
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
}

func TestNewImportConfigHolderFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "importer.yml")
	content := []byte("importer:\n  suggestionCutoff: 0.8\n  maxSuggestions: 5\n  phaseOrder:\n    - Downstream\n    - Upstream\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	holder, err := NewImportConfigHolder(Config{ImportConfigPath: path})
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 0.8, cfg.SuggestionCutoff)
	assert.Equal(t, 5, cfg.MaxSuggestions)
	assert.Equal(t, []string{"Downstream", "Upstream"}, cfg.PhaseOrder)
	assert.NotEmpty(t, cfg.DateFormats)
}

func TestNewImportConfigHolderRejectsInvalidCutoff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "importer.yml")
	require.NoError(t, os.WriteFile(path, []byte("importer:\n  suggestionCutoff: 1.5\n"), 0o600))

	_, err := NewImportConfigHolder(Config{ImportConfigPath: path})
	assert.Error(t, err)
}
