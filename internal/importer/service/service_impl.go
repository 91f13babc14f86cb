package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	catalog "github.com/smallbiznis/pipelineintel/internal/catalog/domain"
	"github.com/smallbiznis/pipelineintel/internal/clock"
	"github.com/smallbiznis/pipelineintel/internal/config"
	"github.com/smallbiznis/pipelineintel/internal/importer/domain"
	"github.com/smallbiznis/pipelineintel/internal/observability/metrics"
	"github.com/smallbiznis/pipelineintel/pkg/db"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Repo           catalog.Repository
	Store          domain.StateStore
	Config         *config.ImportConfigHolder
	AppConfig      config.Config
	Metrics        *metrics.ImportMetrics `optional:"true"`
	CatalogMetrics *metrics.Metrics       `optional:"true"`
	Clock          clock.Clock            `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	repo           catalog.Repository
	store          domain.StateStore
	config         *config.ImportConfigHolder
	appConfig      config.Config
	metrics        *metrics.ImportMetrics
	catalogMetrics *metrics.Metrics
	clock          clock.Clock
	tracer         trace.Tracer
}

func New(p Params) domain.Service {
	return NewService(p)
}

// NewService returns the concrete service; tests use it to reach helpers.
func NewService(p Params) *Service {
	c := p.Clock
	if c == nil {
		c = clock.System()
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("importer.service"),
		genID:          p.GenID,
		repo:           p.Repo,
		store:          p.Store,
		config:         p.Config,
		appConfig:      p.AppConfig,
		metrics:        p.Metrics,
		catalogMetrics: p.CatalogMetrics,
		clock:          c,
		tracer:         otel.Tracer("pipelineintel/importer"),
	}
}

func (s *Service) Analyze(ctx context.Context, req domain.AnalyzeRequest) (*domain.State, error) {
	items, err := itemsOf(req)
	if err != nil {
		return nil, err
	}
	cfg := s.config.Get()

	ctx, span := s.tracer.Start(ctx, "importer.analyze")
	defer span.End()
	span.SetAttributes(attribute.Int("import.entries", len(items)))

	entries, missing, err := s.analyze(ctx, items, cfg)
	if err != nil {
		return nil, err
	}
	state := &domain.State{
		ID:          uuid.NewString(),
		CreatedAt:   s.clock.Now(),
		Entries:     entries,
		MissingKeys: missing,
	}
	if err := s.store.Save(ctx, state, cfg.SessionTTL); err != nil {
		return nil, err
	}
	s.logAnalyzed(state)
	return state, nil
}

func (s *Service) GetState(ctx context.Context, id string) (*domain.State, error) {
	return s.store.Load(ctx, id)
}

// Resolve applies the user's decisions to a stored state and re-analyzes it
// under the same id.
func (s *Service) Resolve(ctx context.Context, req domain.ResolveRequest) (*domain.State, error) {
	cfg := s.config.Get()
	release, err := s.store.Lock(ctx, req.StateID, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	state, err := s.store.Load(ctx, req.StateID)
	if err != nil {
		return nil, err
	}

	skipped := map[string]map[string]bool{}
	for key, byValue := range req.Decisions.Resolutions {
		target, ok := refTargets[key]
		if !ok {
			return nil, fmt.Errorf("%w: unknown reference key %q", domain.ErrInvalidInput, key)
		}
		for value, decision := range byValue {
			switch decision.Type {
			case domain.ResolutionUseExisting:
				name := strings.TrimSpace(decision.Value)
				if name == "" {
					return nil, fmt.Errorf("%w: use_existing for %s %q needs a value", domain.ErrInvalidInput, key, value)
				}
				_, found, err := s.repo.FindIDByName(ctx, s.db.WithContext(ctx), target, name)
				if err != nil {
					return nil, err
				}
				if !found {
					return nil, fmt.Errorf("%w: %s %q does not exist", domain.ErrInvalidInput, key, name)
				}
				renameAll(state.Entries, key, value, name)

			case domain.ResolutionCreateNew:
				name := strings.TrimSpace(decision.Value)
				if name == "" {
					name = value
				}
				if err := s.createMissing(ctx, key, name, decision.Metadata); err != nil {
					return nil, err
				}
				if name != value {
					renameAll(state.Entries, key, value, name)
				}

			case domain.ResolutionSkip:
				if skipped[key] == nil {
					skipped[key] = map[string]bool{}
				}
				skipped[key][value] = true

			default:
				return nil, fmt.Errorf("%w: unknown resolution %q", domain.ErrInvalidInput, decision.Type)
			}
		}
	}

	items := make([]item, 0, len(state.Entries))
	for _, e := range state.Entries {
		items = append(items, item{index: e.Index, kind: e.Entity, input: e.Input})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].index < items[j].index })

	entries, missing, err := s.analyze(ctx, items, cfg)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		for _, m := range entries[i].Missing {
			if skipped[m.Key][m.Value] {
				entries[i].Action = domain.ActionSkip
				entries[i].Messages = append(entries[i].Messages, fmt.Sprintf("skipped: %s %q left unresolved", m.Key, m.Value))
				break
			}
		}
	}
	if err := overrideActions(entries, req.Decisions.Actions); err != nil {
		return nil, err
	}

	state.Entries = entries
	state.MissingKeys = missing
	if err := s.store.Save(ctx, state, cfg.SessionTTL); err != nil {
		return nil, err
	}
	s.logAnalyzed(state)
	return state, nil
}

// Finalize commits a stored state. The state is dropped once a run
// finishes without a critical failure.
func (s *Service) Finalize(ctx context.Context, req domain.FinalizeRequest) (*domain.Report, error) {
	cfg := s.config.Get()
	release, err := s.store.Lock(ctx, req.StateID, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	state, err := s.store.Load(ctx, req.StateID)
	if err != nil {
		return nil, err
	}
	if err := overrideActions(state.Entries, req.Actions); err != nil {
		return nil, err
	}

	report := s.finalize(ctx, state.Entries, cfg)
	if report.Success {
		if err := s.store.Delete(context.WithoutCancel(ctx), state.ID); err != nil {
			s.log.Warn("failed to drop finalized import state", zap.String("state_id", state.ID), zap.Error(err))
		}
	}
	return report, nil
}

func overrideActions(entries []domain.Entry, actions map[int]domain.Action) error {
	if len(actions) == 0 {
		return nil
	}
	byIndex := make(map[int]int, len(entries))
	for i, e := range entries {
		byIndex[e.Index] = i
	}
	for index, action := range actions {
		switch action {
		case domain.ActionAdd, domain.ActionUpdate, domain.ActionSkip:
		default:
			return fmt.Errorf("%w: unknown action %q", domain.ErrInvalidInput, action)
		}
		i, ok := byIndex[index]
		if !ok {
			return fmt.Errorf("%w: no entry at index %d", domain.ErrInvalidInput, index)
		}
		entries[i].Action = action
	}
	return nil
}

// createMissing inserts a lookup row chosen for creation during resolution.
func (s *Service) createMissing(ctx context.Context, key, name string, metadata map[string]any) error {
	categoryColumn, ok := creatable[key]
	if !ok {
		return fmt.Errorf("%w: %s values cannot be created while resolving", domain.ErrInvalidInput, key)
	}
	target := refTargets[key]
	meta, err := catalog.MetaOf(target)
	if err != nil {
		return err
	}

	values := map[string]any{
		meta.PK:   s.genID.Generate().Int64(),
		meta.Name: name,
	}
	for _, field := range []string{"category", categoryColumn} {
		if v := strings.TrimSpace(textOf(metadata[field])); v != "" {
			values[categoryColumn] = v
		}
	}
	if v := strings.TrimSpace(textOf(metadata["description"])); v != "" {
		values["description"] = v
	}
	if target == catalog.EntityProcessStages {
		values["hierarchy_level"] = 1
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, found, err := s.repo.FindIDByName(ctx, tx, target, name)
		if err != nil || found {
			return err
		}
		model := meta.NewModel()
		if err := catalog.Decode(values, model); err != nil {
			return err
		}
		if err := tx.Create(model).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return fmt.Errorf("%w: %s", catalog.ErrDuplicateName, name)
			}
			return err
		}
		s.log.Info("created missing reference", zap.String("entity_type", string(target)), zap.String("name", name))
		return nil
	})
}

// renameAll rewrites every input reference to from under key.
func renameAll(entries []domain.Entry, key, from, to string) {
	for i := range entries {
		for _, m := range entries[i].Missing {
			if m.Key != key || m.Value != from {
				continue
			}
			if v, ok := entries[i].Input[m.Field]; ok {
				entries[i].Input[m.Field] = renameIn(v, key, from, to)
			}
		}
	}
}

func renameIn(v any, key, from, to string) any {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == from {
			return to
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = renameIn(item, key, from, to)
		}
		return t
	case map[string]any:
		if strings.TrimSpace(textOf(t[key])) == from {
			t[key] = to
		}
		return t
	}
	return v
}
