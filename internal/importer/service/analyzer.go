package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	catalog "github.com/smallbiznis/pipelineintel/internal/catalog/domain"
	"github.com/smallbiznis/pipelineintel/internal/config"
	"github.com/smallbiznis/pipelineintel/internal/importer/domain"
	"go.uber.org/zap"
)

// item is one input record with its position in the upload.
type item struct {
	index int
	kind  domain.EntityType
	input map[string]any
}

// itemsOf flattens a request into records in write order. A record without
// its natural key rejects the whole request.
func itemsOf(req domain.AnalyzeRequest) ([]item, error) {
	sections := req.Sections
	if req.EntityType != "" {
		if len(sections) > 0 {
			return nil, fmt.Errorf("%w: send either entity_type with items or sections", domain.ErrInvalidInput)
		}
		sections = map[domain.EntityType][]map[string]any{req.EntityType: req.Items}
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("%w: nothing to import", domain.ErrInvalidInput)
	}

	kinds := make([]domain.EntityType, 0, len(sections))
	for kind := range sections {
		if _, err := specOf(kind); err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return specs[kinds[i]].rank < specs[kinds[j]].rank })

	var out []item
	for _, kind := range kinds {
		spec := specs[kind]
		for i, input := range sections[kind] {
			if input == nil {
				return nil, fmt.Errorf("%w: %s[%d] must be an object", domain.ErrInvalidInput, kind, i)
			}
			if _, ok := spec.identifier(input); !ok {
				return nil, fmt.Errorf("%w: %s[%d] is missing %s", domain.ErrInvalidInput, kind, i, strings.Join(spec.keys, " and "))
			}
			out = append(out, item{index: len(out), kind: kind, input: input})
		}
	}
	return out, nil
}

// analyze classifies every item against the store. Names created by an
// earlier item of the batch count as resolvable for later ones.
func (s *Service) analyze(ctx context.Context, items []item, cfg config.ImportConfig) ([]domain.Entry, map[string]map[string][]domain.Suggestion, error) {
	r := newResolver(s.repo, modeAnalyze, cfg.DateFormats)

	entries := make([]domain.Entry, 0, len(items))
	for _, it := range items {
		spec := specs[it.kind]
		entry, err := s.analyzeItem(ctx, r, spec, it)
		if err != nil {
			return nil, nil, err
		}
		if entry.Status == domain.StatusNew && spec.target.Named() {
			name := spec.name(it.input)
			r.markPending(spec.target, name)
			for _, also := range spec.alsoNames {
				r.markPending(also, name)
			}
		}
		s.metrics.ObserveAnalyzed(string(it.kind), string(entry.Status))
		entries = append(entries, entry)
	}

	missing, err := s.suggestions(ctx, entries, cfg)
	if err != nil {
		return nil, nil, err
	}
	return entries, missing, nil
}

func (s *Service) analyzeItem(ctx context.Context, r *resolver, spec *entitySpec, it item) (domain.Entry, error) {
	identifier, _ := spec.identifier(it.input)
	entry := domain.Entry{
		Index:      it.index,
		Entity:     it.kind,
		Identifier: identifier,
		Input:      it.input,
		Diff:       map[string]domain.FieldDiff{},
		Messages:   []string{},
	}

	p, err := s.plan(ctx, s.db.WithContext(ctx), r, spec, it.input)
	if err != nil {
		if !isInvalidValue(err) {
			return entry, err
		}
		entry.Status = domain.StatusError
		entry.Action = domain.ActionAdd
		entry.Messages = append(entry.Messages, err.Error())
		return entry, nil
	}
	res := p.res

	if entry.DBItem, err = dbItem(p); err != nil {
		return entry, err
	}
	entry.Diff = p.diff
	entry.LinkDiff = p.links
	entry.Missing = res.missing

	for col, name := range res.deferred {
		entry.Messages = append(entry.Messages, fmt.Sprintf("%s %q will be created earlier in this batch", col, name))
	}
	for field, value := range res.computed {
		entry.Messages = append(entry.Messages, fmt.Sprintf("%s computed as %v", field, value))
	}
	entry.Messages = append(entry.Messages, res.warnings...)

	hardViolation := false
	for _, v := range res.violations {
		if errors.Is(v.err, catalog.ErrLineExtension) || errors.Is(v.err, catalog.ErrLaunchSequenceConflict) {
			entry.Messages = append(entry.Messages, "warning: "+v.msg)
			continue
		}
		hardViolation = true
		entry.Messages = append(entry.Messages, v.msg)
	}
	sort.Strings(entry.Messages)

	// entries that cannot be written keep their intended action so a
	// finalize reports them instead of skipping them silently
	intended := domain.ActionAdd
	if res.existing != nil {
		intended = domain.ActionUpdate
	}
	switch {
	case hardViolation:
		entry.Status, entry.Action = domain.StatusError, intended
	case len(res.missing) > 0:
		entry.Status, entry.Action = domain.StatusNeedsResolution, intended
		for _, m := range res.missing {
			entry.Messages = append(entry.Messages, fmt.Sprintf("%s %q was not found", m.Key, m.Value))
		}
	case res.existing == nil:
		entry.Status, entry.Action = domain.StatusNew, domain.ActionAdd
	case p.dirty():
		entry.Status, entry.Action = domain.StatusUpdate, domain.ActionUpdate
	default:
		entry.Status, entry.Action = domain.StatusNoChange, domain.ActionSkip
	}
	return entry, nil
}

// dbItem is the stored row an entry matched, without secrets.
func dbItem(p *plan) (map[string]any, error) {
	if p.res.existing == nil {
		return nil, nil
	}
	row, err := catalog.ToMap(p.res.existing)
	if err != nil {
		return nil, err
	}
	delete(row, "password")
	if p.parentRow != nil {
		row["location"] = p.parentRow.Location
		row["operational_status"] = p.parentRow.OperationalStatus
	}
	return row, nil
}

// suggestions ranks existing names for every missing reference.
func (s *Service) suggestions(ctx context.Context, entries []domain.Entry, cfg config.ImportConfig) (map[string]map[string][]domain.Suggestion, error) {
	out := map[string]map[string][]domain.Suggestion{}
	candidates := map[string][]string{}

	for _, entry := range entries {
		for _, m := range entry.Missing {
			if _, done := out[m.Key][m.Value]; done {
				continue
			}
			names, ok := candidates[m.Key]
			if !ok {
				target, known := refTargets[m.Key]
				if !known {
					continue
				}
				var err error
				if names, err = s.repo.ListNames(ctx, s.db.WithContext(ctx), target); err != nil {
					return nil, err
				}
				candidates[m.Key] = names
			}
			if out[m.Key] == nil {
				out[m.Key] = map[string][]domain.Suggestion{}
			}
			out[m.Key][m.Value] = suggest(names, m.Value, cfg.SuggestionCutoff, cfg.MaxSuggestions)
		}
	}
	return out, nil
}

func (s *Service) logAnalyzed(state *domain.State) {
	summary := state.Summary()
	s.log.Info("import analyzed",
		zap.String("state_id", state.ID),
		zap.Int("total", summary.Total),
		zap.Int("new", summary.New),
		zap.Int("update", summary.Update),
		zap.Int("no_change", summary.NoChange),
		zap.Int("needs_resolution", summary.NeedsResolution),
		zap.Int("error", summary.Error),
	)
}
