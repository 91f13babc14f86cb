package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/gosimple/slug"
	catalog "github.com/smallbiznis/pipelineintel/internal/catalog/domain"
	"github.com/smallbiznis/pipelineintel/internal/importer/domain"
	"go.uber.org/zap"
)

const modalityDetailsField = "modality_details"

// Export renders one entity slice. Challenges carry their per-modality
// details next to the agnostic columns.
func (s *Service) Export(ctx context.Context, req domain.ExportRequest) (*domain.ExportResult, error) {
	entity := catalog.Entity(strings.TrimSpace(req.Entity))
	if spec, ok := specs[domain.EntityType(entity)]; ok {
		entity = spec.target
	}
	meta, err := catalog.MetaOf(entity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if len(req.IDs) > 0 && meta.PK == "" {
		return nil, fmt.Errorf("%w: %s rows have no id to filter on", domain.ErrInvalidInput, entity)
	}

	rows := meta.NewSlice()
	if err := s.repo.List(ctx, s.db, entity, rows); err != nil {
		return nil, err
	}
	items, err := catalog.ToMaps(rows)
	if err != nil {
		return nil, err
	}

	if len(req.IDs) > 0 {
		want := make(map[int64]bool, len(req.IDs))
		for _, id := range req.IDs {
			want[id] = true
		}
		filtered := items[:0]
		for _, item := range items {
			id, err := int64Of(item[meta.PK])
			if err == nil && want[id] {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}

	for _, item := range items {
		delete(item, "password")
	}

	if entity == catalog.EntityChallenges && wantsField(req.Fields, modalityDetailsField) {
		for _, item := range items {
			id, err := int64Of(item[meta.PK])
			if err != nil {
				return nil, err
			}
			details, err := s.modalityDetails(ctx, id)
			if err != nil {
				return nil, err
			}
			item[modalityDetailsField] = details
		}
	}

	if len(req.Fields) > 0 {
		if items, err = project(items, req.Fields); err != nil {
			return nil, err
		}
	}

	result := &domain.ExportResult{
		Filename: fmt.Sprintf("%s-%s.json", slug.Make(string(entity)), s.clock.Now().Format("20060102-150405")),
		Items:    items,
	}
	s.catalogMetrics.RecordExport(ctx, string(entity))
	s.log.Info("entity exported", zap.String("entity_type", string(entity)), zap.Int("rows", len(items)))
	return result, nil
}

func (s *Service) modalityDetails(ctx context.Context, challengeID int64) ([]map[string]any, error) {
	views, err := s.repo.ListModalityChallenges(ctx, s.db, challengeID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(views))
	for _, v := range views {
		out = append(out, map[string]any{
			"modality_name":        v.ModalityName,
			"specific_description": v.SpecificDescription,
			"impact_score":         v.ImpactScore,
			"maturity_score":       v.MaturityScore,
			"notes":                v.Notes,
		})
	}
	return out, nil
}

func wantsField(fields []string, field string) bool {
	return len(fields) == 0 || contains(fields, field)
}

// project keeps only fields; asking for a column the entity lacks is an error.
func project(items []map[string]any, fields []string) ([]map[string]any, error) {
	if len(items) > 0 {
		for _, field := range fields {
			if _, ok := items[0][field]; !ok {
				return nil, fmt.Errorf("%w: unknown field %q", domain.ErrInvalidInput, field)
			}
		}
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		row := make(map[string]any, len(fields))
		for _, field := range fields {
			row[field] = item[field]
		}
		out = append(out, row)
	}
	return out, nil
}
