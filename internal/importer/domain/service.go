package domain

import (
	"context"
	"time"
)

type Service interface {
	// Analyze builds a plan for the records and stores it as a new state.
	Analyze(ctx context.Context, req AnalyzeRequest) (*State, error)
	GetState(ctx context.Context, id string) (*State, error)
	// Resolve applies decisions to a stored state and re-analyzes it.
	Resolve(ctx context.Context, req ResolveRequest) (*State, error)
	// Finalize commits a stored state entry by entry.
	Finalize(ctx context.Context, req FinalizeRequest) (*Report, error)

	ExportBackup(ctx context.Context) (*Backup, error)
	RestoreBackup(ctx context.Context, backup *Backup) (*RestoreResult, error)
	Export(ctx context.Context, req ExportRequest) (*ExportResult, error)
}

// AnalyzeRequest carries either one entity type with its items or a
// bundle of sections keyed by entity type.
type AnalyzeRequest struct {
	EntityType EntityType                      `json:"entity_type"`
	Items      []map[string]any                `json:"items"`
	Sections   map[EntityType][]map[string]any `json:"sections"`
}

type ResolveRequest struct {
	StateID   string    `json:"state_id"`
	Decisions Decisions `json:"decisions"`
}

type FinalizeRequest struct {
	StateID string         `json:"state_id"`
	Actions map[int]Action `json:"actions"`
}

type StateStore interface {
	Save(ctx context.Context, state *State, ttl time.Duration) error
	// Load returns ErrStateNotFound for unknown or expired ids.
	Load(ctx context.Context, id string) (*State, error)
	Delete(ctx context.Context, id string) error
	// Lock claims a state for one finalize run. The returned release func
	// is safe to call once the run is over.
	Lock(ctx context.Context, id string, ttl time.Duration) (func(), error)
}

type ExportRequest struct {
	Entity string   `json:"entity_type"`
	Fields []string `json:"fields"`
	IDs    []int64  `json:"ids"`
}

type ExportResult struct {
	Filename string           `json:"filename"`
	Items    []map[string]any `json:"items"`
}

type RestoreResult struct {
	Tables map[string]int `json:"tables"`
}
