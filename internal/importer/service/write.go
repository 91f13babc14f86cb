package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	catalog "github.com/smallbiznis/pipelineintel/internal/catalog/domain"
	catalogsvc "github.com/smallbiznis/pipelineintel/internal/catalog/service"
	"github.com/smallbiznis/pipelineintel/internal/importer/domain"
	"github.com/smallbiznis/pipelineintel/internal/password"
	"github.com/smallbiznis/pipelineintel/pkg/db"
	"gorm.io/gorm"
)

// product columns that re-run the line-extension checks
var lineExtensionFields = map[string]bool{
	"is_nme":            true,
	"is_line_extension": true,
	"parent_product_id": true,
	"launch_sequence":   true,
}

type writeResult struct {
	id      int64
	added   bool
	changed bool
	notes   []string
}

// apply writes one planned record inside tx.
func (s *Service) apply(ctx context.Context, tx *gorm.DB, p *plan, formats []string) (*writeResult, error) {
	res := p.res
	if len(res.missing) > 0 {
		return nil, &domain.UnresolvedError{Missing: res.missing}
	}
	if len(res.violations) > 0 {
		msgs := make([]string, 0, len(res.violations))
		for _, v := range res.violations {
			msgs = append(msgs, v.msg)
		}
		return nil, fmt.Errorf("%w: %s", res.violations[0].err, strings.Join(msgs, "; "))
	}

	meta, err := catalog.MetaOf(p.spec.target)
	if err != nil {
		return nil, err
	}

	out := &writeResult{changed: p.dirty()}
	var model any
	if res.existing == nil {
		model, out.id, err = s.insert(ctx, tx, p, meta)
		if err != nil {
			return nil, err
		}
		out.added = true
	} else {
		model, out.id = res.existing, res.existingID
		if err := s.update(ctx, tx, p); err != nil {
			return nil, err
		}
	}

	switch m := model.(type) {
	case *catalog.ProcessStage:
		if res.existing != nil && contains(p.changed, "parent_stage_id") {
			level := 1
			if m.HierarchyLevel != nil {
				level = *m.HierarchyLevel
			}
			if err := catalogsvc.RefreshDescendantLevels(ctx, s.repo, tx, m.StageID, level); err != nil {
				return nil, err
			}
		}
	case *catalog.ProcessTemplate:
		if p.stages != nil {
			if err := s.replaceTemplateStages(ctx, tx, m.TemplateID, res); err != nil {
				return nil, err
			}
		}
	}

	if len(p.links) > 0 {
		notes, err := s.applyLinks(ctx, tx, out.id, res)
		if err != nil {
			return nil, err
		}
		out.notes = append(out.notes, notes...)
	}

	if product, ok := model.(*catalog.Product); ok {
		if err := s.replaceChildren(ctx, tx, product.ProductID, res, p.children, formats); err != nil {
			return nil, err
		}
		created, err := s.synthesizeSuppliers(ctx, tx, product, res)
		if err != nil {
			return nil, err
		}
		if created > 0 {
			out.changed = true
			out.notes = append(out.notes, fmt.Sprintf("derived %d supplier rows", created))
		}
	}
	return out, nil
}

func (s *Service) insert(ctx context.Context, tx *gorm.DB, p *plan, meta catalog.Meta) (any, int64, error) {
	res := p.res
	values := make(map[string]any, len(res.columns)+1)
	for col, v := range res.columns {
		values[col] = v
	}

	var id int64
	switch p.spec.kind {
	case domain.EntityFacilities, domain.EntityPartners:
		var err error
		if id, err = s.upsertSite(ctx, tx, p); err != nil {
			return nil, 0, err
		}
	default:
		if meta.PK != "" {
			id = s.genID.Generate().Int64()
		}
	}
	if meta.PK != "" {
		values[meta.PK] = id
	}

	if p.spec.kind == domain.EntityUsers {
		if err := hashPassword(values); err != nil {
			return nil, 0, err
		}
	}

	model := meta.NewModel()
	if err := catalog.Decode(values, model); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errInvalidValue, err)
	}
	if product, ok := model.(*catalog.Product); ok {
		if err := catalogsvc.CheckLineExtension(ctx, s.repo, tx, product); err != nil {
			return nil, 0, err
		}
	}

	if err := tx.WithContext(ctx).Create(model).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, 0, fmt.Errorf("%w: %s", catalog.ErrDuplicateName, p.identifier)
		}
		return nil, 0, err
	}
	return model, id, nil
}

func (s *Service) update(ctx context.Context, tx *gorm.DB, p *plan) error {
	res := p.res
	if len(p.parentChanged) > 0 && p.parentRow != nil {
		if err := s.updateParent(ctx, tx, p.parentRow, p.parentChanged, res.parent); err != nil {
			return err
		}
	}
	if len(p.changed) == 0 {
		return nil
	}

	values := make(map[string]any, len(p.changed))
	for _, col := range p.changed {
		values[col] = res.columns[col]
	}
	if p.spec.kind == domain.EntityUsers {
		if err := hashPassword(values); err != nil {
			return err
		}
	}

	model := res.existing
	if err := catalog.Decode(values, model); err != nil {
		return fmt.Errorf("%w: %v", errInvalidValue, err)
	}

	columns := append([]string(nil), p.changed...)
	if product, ok := model.(*catalog.Product); ok {
		for _, col := range p.changed {
			if lineExtensionFields[col] {
				if err := catalogsvc.CheckLineExtension(ctx, s.repo, tx, product); err != nil {
					return err
				}
				break
			}
		}
		columns = append(columns, "updated_at")
	}

	if err := tx.WithContext(ctx).Model(model).Select(columns).Updates(model).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return fmt.Errorf("%w: %v", catalog.ErrDuplicateName, err)
		}
		return err
	}
	return nil
}

// upsertSite returns the manufacturing entity id a new facility or partner
// shares, creating the entity when the name is unused.
func (s *Service) upsertSite(ctx context.Context, tx *gorm.DB, p *plan) (int64, error) {
	name := strings.TrimSpace(textOf(p.res.columns[p.spec.keys[0]]))
	entityType := catalog.EntityTypeInternal
	if p.spec.kind == domain.EntityPartners {
		entityType = catalog.EntityTypeExternal
	}

	var parent catalog.ManufacturingEntity
	found, err := s.repo.FindByName(ctx, tx, catalog.EntityManufacturingEntities, name, &parent)
	if err != nil {
		return 0, err
	}
	if found {
		if parent.EntityType != entityType {
			return 0, fmt.Errorf("%w: manufacturing entity %s is %s", catalog.ErrDuplicateName, name, parent.EntityType)
		}
		if len(p.res.parent) > 0 {
			fields := make([]string, 0, len(p.res.parent))
			for _, field := range parentFields {
				if _, ok := p.res.parent[field]; ok {
					fields = append(fields, field)
				}
			}
			if err := s.updateParent(ctx, tx, &parent, fields, p.res.parent); err != nil {
				return 0, err
			}
		}
		return parent.EntityID, nil
	}

	parent = catalog.ManufacturingEntity{
		EntityID:   s.genID.Generate().Int64(),
		EntityName: name,
		EntityType: entityType,
	}
	if err := catalog.Decode(siteValues(p.res.parent), &parent); err != nil {
		return 0, fmt.Errorf("%w: %v", errInvalidValue, err)
	}
	if err := tx.WithContext(ctx).Create(&parent).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return 0, fmt.Errorf("%w: manufacturing entity %s", catalog.ErrDuplicateName, name)
		}
		return 0, err
	}
	return parent.EntityID, nil
}

func (s *Service) updateParent(ctx context.Context, tx *gorm.DB, parent *catalog.ManufacturingEntity, fields []string, values map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	if err := catalog.Decode(siteValues(values), parent); err != nil {
		return fmt.Errorf("%w: %v", errInvalidValue, err)
	}
	return tx.WithContext(ctx).Model(parent).Select(fields).Updates(parent).Error
}

func siteValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for field, v := range values {
		text := strings.TrimSpace(textOf(v))
		if text == "" {
			out[field] = nil
			continue
		}
		out[field] = text
	}
	return out
}

func hashPassword(values map[string]any) error {
	plain := textOf(values["password"])
	if plain == "" || password.IsHashed(plain) {
		return nil
	}
	hashed, err := password.Hash(plain)
	if err != nil {
		return err
	}
	values["password"] = hashed
	return nil
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

// isInvalidValue reports per-record input problems.
func isInvalidValue(err error) bool {
	return errors.Is(err, errInvalidValue) || errors.Is(err, catalog.ErrInvalidDate)
}
