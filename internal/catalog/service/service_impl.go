package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/pipelineintel/internal/catalog/domain"
	"github.com/smallbiznis/pipelineintel/internal/observability/metrics"
	"github.com/smallbiznis/pipelineintel/internal/password"
	"github.com/smallbiznis/pipelineintel/pkg/db"
	"github.com/smallbiznis/pipelineintel/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    domain.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    domain.Repository
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("catalog.service"),
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

// fields that are never edited inline
var readOnlyFields = map[string]bool{
	"created_at": true,
	"updated_at": true,
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (*domain.ListResponse, error) {
	meta, err := domain.MetaOf(req.Entity)
	if err != nil {
		return nil, err
	}
	if meta.PK == "" {
		return nil, fmt.Errorf("%w: %s cannot be paged", domain.ErrInvalidEntity, req.Entity)
	}

	afterID, err := pagination.AfterID(req.PageToken)
	if err != nil {
		return nil, err
	}
	size := pagination.Pagination{PageSize: req.PageSize}.Size()

	rows := meta.NewSlice()
	if err := s.repo.ListPage(ctx, s.db, req.Entity, afterID, size+1, rows); err != nil {
		return nil, err
	}
	items, err := domain.ToMaps(rows)
	if err != nil {
		return nil, err
	}

	resp := &domain.ListResponse{Items: items}
	if len(items) > size {
		resp.Items = items[:size]
		resp.HasMore = true
		lastID, err := idOf(resp.Items[size-1], meta.PK)
		if err != nil {
			return nil, err
		}
		resp.NextPageToken, err = pagination.TokenFor(lastID)
		if err != nil {
			return nil, err
		}
	}
	if req.Entity == domain.EntityUsers {
		for _, item := range resp.Items {
			delete(item, "password")
		}
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, entity domain.Entity, id int64) (map[string]any, error) {
	meta, err := domain.MetaOf(entity)
	if err != nil {
		return nil, err
	}
	model := meta.NewModel()
	found, err := s.repo.FindByID(ctx, s.db, entity, id, model)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrNotFound
	}
	row, err := domain.ToMap(model)
	if err != nil {
		return nil, err
	}
	delete(row, "password")
	return row, nil
}

// UpdateField edits one column of one row, enforcing the same invariants as
// the importer.
func (s *Service) UpdateField(ctx context.Context, req domain.UpdateFieldRequest) (map[string]any, error) {
	meta, err := domain.MetaOf(req.Entity)
	if err != nil {
		return nil, err
	}
	if meta.PK == "" {
		return nil, fmt.Errorf("%w: %s rows are edited through their owner", domain.ErrInvalidEntity, req.Entity)
	}

	field := strings.TrimSpace(req.Field)
	value := req.Value
	if str, ok := value.(string); ok && strings.TrimSpace(str) == "" {
		value = nil
	}

	model := meta.NewModel()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(ctx, tx, req.Entity, req.ID, model)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrNotFound
		}

		row, err := domain.ToMap(model)
		if err != nil {
			return err
		}
		if _, ok := row[field]; !ok || field == meta.PK || readOnlyFields[field] {
			return fmt.Errorf("%w: %s", domain.ErrInvalidField, field)
		}

		if req.Entity == domain.EntityUsers && field == "password" && value != nil {
			hashed, err := password.Hash(fmt.Sprint(value))
			if err != nil {
				return err
			}
			value = hashed
		}

		if err := domain.Decode(map[string]any{field: value}, model); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) || errors.Is(err, domain.ErrInvalidDate) {
				return fmt.Errorf("%w: %s: %v", domain.ErrInvalidField, field, err)
			}
			return err
		}

		columns := []string{field}
		if field == meta.Name {
			if err := s.checkName(ctx, tx, req.Entity, req.ID, value); err != nil {
				return err
			}
		}

		extra, err := s.checkInvariants(ctx, tx, field, model)
		if err != nil {
			return err
		}
		columns = append(columns, extra...)

		if err := tx.Model(model).Select(columns).Updates(model).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return fmt.Errorf("%w: %v", domain.ErrDuplicateName, value)
			}
			return err
		}

		if stage, ok := model.(*domain.ProcessStage); ok && field == "parent_stage_id" {
			return RefreshDescendantLevels(ctx, s.repo, tx, stage.StageID, derefInt(stage.HierarchyLevel, 1))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("catalog field updated",
		zap.String("entity_type", string(req.Entity)),
		zap.Int64("id", req.ID),
		zap.String("field", field),
	)
	s.metrics.RecordCatalogEdit(ctx, string(req.Entity), field)

	out, err := domain.ToMap(model)
	if err != nil {
		return nil, err
	}
	delete(out, "password")
	return out, nil
}

func (s *Service) checkName(ctx context.Context, tx *gorm.DB, entity domain.Entity, id int64, value any) error {
	name, ok := value.(string)
	if !ok || strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name cannot be empty", domain.ErrInvalidField)
	}
	existingID, found, err := s.repo.FindIDByName(ctx, tx, entity, name)
	if err != nil {
		return err
	}
	if found && existingID != id {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateName, name)
	}
	return nil
}

// checkInvariants validates the edited model and returns derived columns
// that must be written alongside the field.
func (s *Service) checkInvariants(ctx context.Context, tx *gorm.DB, field string, model any) ([]string, error) {
	switch m := model.(type) {
	case *domain.ProcessStage:
		if field != "parent_stage_id" {
			return nil, nil
		}
		if err := CheckStageParent(ctx, s.repo, tx, m.StageID, m.ParentStageID); err != nil {
			return nil, err
		}
		level, err := StageLevel(ctx, s.repo, tx, m.ParentStageID)
		if err != nil {
			return nil, err
		}
		m.HierarchyLevel = &level
		return []string{"hierarchy_level"}, nil

	case *domain.ProcessTemplate:
		if field != "modality_id" {
			return nil, nil
		}
		return nil, CheckTemplateModality(ctx, s.repo, tx, m.TemplateID, m.ModalityID)

	case *domain.Product:
		switch field {
		case "modality_id", "process_template_id":
			if m.ProcessTemplateID == nil {
				return []string{"updated_at"}, nil
			}
			var template domain.ProcessTemplate
			found, err := s.repo.FindByID(ctx, tx, domain.EntityProcessTemplates, *m.ProcessTemplateID, &template)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, fmt.Errorf("%w: process template %d", domain.ErrNotFound, *m.ProcessTemplateID)
			}
			if !TemplateMatchesModality(&template, m.ModalityID) {
				return nil, fmt.Errorf("%w: template %s belongs to another modality", domain.ErrTemplateModalityMismatch, template.TemplateName)
			}
		case "is_nme", "is_line_extension", "parent_product_id", "launch_sequence":
			return []string{"updated_at"}, CheckLineExtension(ctx, s.repo, tx, m)
		}
		return []string{"updated_at"}, nil
	}
	return nil, nil
}

func (s *Service) Delete(ctx context.Context, entity domain.Entity, id int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.Delete(ctx, tx, entity, id)
	})
	if db.IsForeignKeyErr(err) {
		return fmt.Errorf("%w: %s %d is still referenced: %v", domain.ErrReferenced, entity, id, err)
	}
	if err != nil {
		return err
	}
	s.log.Info("catalog row deleted", zap.String("entity_type", string(entity)), zap.Int64("id", id))
	s.metrics.RecordCatalogDelete(ctx, string(entity))
	return nil
}

func idOf(row map[string]any, column string) (int64, error) {
	switch v := row[column].(type) {
	case json.Number:
		return v.Int64()
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("row has no numeric %s", column)
	}
}

func derefInt(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
