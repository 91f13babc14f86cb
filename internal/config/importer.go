package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ImportConfig tunes the data import pipeline. It is reloaded from
// importer.yml while the process runs.
type ImportConfig struct {
	SuggestionCutoff float64       `mapstructure:"suggestionCutoff"`
	MaxSuggestions   int           `mapstructure:"maxSuggestions"`
	DateFormats      []string      `mapstructure:"dateFormats"`
	PhaseOrder       []string      `mapstructure:"phaseOrder"`
	SessionTTL       time.Duration `mapstructure:"sessionTTL"`
}

func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		SuggestionCutoff: 0.6,
		MaxSuggestions:   3,
		DateFormats: []string{
			"2006-01-02",
			"2006-01-02T15:04:05Z07:00",
			"01/02/2006",
			"02.01.2006",
			"2006/01/02",
			"2006-01",
		},
		PhaseOrder: []string{
			"Upstream",
			"Downstream",
			"Conjugation",
			"Fill & Finish",
			"Assembly",
			"QC/Reg",
		},
		SessionTTL: 2 * time.Hour,
	}
}

type ImportConfigHolder struct {
	current atomic.Value // holds ImportConfig
}

// NewStaticImportConfigHolder returns a holder that never reloads.
func NewStaticImportConfigHolder(cfg ImportConfig) *ImportConfigHolder {
	holder := &ImportConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewImportConfigHolder(cfg Config) (*ImportConfigHolder, error) {
	v := viper.New()

	if cfg.ImportConfigPath != "" {
		v.SetConfigFile(cfg.ImportConfigPath)
	} else {
		v.SetConfigName("importer")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/pipelineintel")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PIPELINEINTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultImportConfig()
	v.SetDefault("importer.suggestionCutoff", defaults.SuggestionCutoff)
	v.SetDefault("importer.maxSuggestions", defaults.MaxSuggestions)
	v.SetDefault("importer.dateFormats", defaults.DateFormats)
	v.SetDefault("importer.phaseOrder", defaults.PhaseOrder)
	v.SetDefault("importer.sessionTTL", defaults.SessionTTL)

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		found = false
	}

	current, err := decodeImportConfig(v)
	if err != nil {
		return nil, err
	}
	if err := validateImportConfig(current); err != nil {
		return nil, err
	}

	holder := NewStaticImportConfigHolder(current)
	if !found {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeImportConfig(v)
		if err != nil {
			log.Printf("[importer-config] reload failed: %v", err)
			return
		}
		if err := validateImportConfig(updated); err != nil {
			log.Printf("[importer-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[importer-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// decodeImportConfig goes through AllSettings so file values merge with defaults.
func decodeImportConfig(v *viper.Viper) (ImportConfig, error) {
	var wrapper struct {
		Importer ImportConfig `mapstructure:"importer"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return ImportConfig{}, err
	}
	return wrapper.Importer, nil
}

func (h *ImportConfigHolder) Get() ImportConfig {
	return h.current.Load().(ImportConfig)
}

func validateImportConfig(cfg ImportConfig) error {
	if cfg.SuggestionCutoff <= 0 || cfg.SuggestionCutoff > 1 {
		return errors.New("importer.suggestionCutoff must be in (0, 1]")
	}
	if cfg.MaxSuggestions <= 0 {
		return errors.New("importer.maxSuggestions must be positive")
	}
	if len(cfg.DateFormats) == 0 {
		return errors.New("importer.dateFormats cannot be empty")
	}
	if cfg.SessionTTL <= 0 {
		return errors.New("importer.sessionTTL must be positive")
	}
	return nil
}
