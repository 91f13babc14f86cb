package service

import (
	"context"
	"sort"

	catalog "github.com/smallbiznis/pipelineintel/internal/catalog/domain"
	"github.com/smallbiznis/pipelineintel/internal/importer/domain"
	"gorm.io/gorm"
)

const maskedPassword = "********"

// parentFields are the manufacturing entity columns set through a facility
// or partner record.
var parentFields = []string{"location", "operational_status"}

// plan is the resolved record plus everything that differs from the store.
type plan struct {
	spec       *entitySpec
	identifier string
	res        *resolved
	// changed lists the columns to write on an existing row.
	changed  []string
	diff     map[string]domain.FieldDiff
	links    map[string]domain.LinkDiff
	children map[string]domain.FieldDiff
	stages   *domain.FieldDiff
	// parentRow is the stored manufacturing entity of a facility or partner.
	parentRow     *catalog.ManufacturingEntity
	parentChanged []string
}

// dirty reports whether writing the record would change anything.
func (p *plan) dirty() bool {
	return len(p.diff) > 0 || len(p.links) > 0
}

func (s *Service) plan(ctx context.Context, db *gorm.DB, r *resolver, spec *entitySpec, input map[string]any) (*plan, error) {
	res, err := r.resolve(ctx, db, spec, input)
	if err != nil {
		return nil, err
	}
	identifier, _ := spec.identifier(input)
	p := &plan{spec: spec, identifier: identifier, res: res, diff: map[string]domain.FieldDiff{}}

	cols, err := columnsOf(spec.target)
	if err != nil {
		return nil, err
	}

	var stored map[string]any
	if res.existing != nil {
		if stored, err = catalog.ToMap(res.existing); err != nil {
			return nil, err
		}
	}

	for col, value := range res.columns {
		kind := cols.writable[col]
		if col == "password" && spec.kind == domain.EntityUsers {
			if stored == nil || !samePassword(stored[col], value) {
				p.changed = append(p.changed, col)
				p.diff[col] = domain.FieldDiff{Old: masked(stored, col), New: maskedPassword}
			}
			continue
		}
		if stored == nil {
			if normalized(kind, value, r.formats) != "" {
				p.diff[col] = domain.FieldDiff{Old: nil, New: value}
			}
			continue
		}
		if !sameValue(kind, stored[col], value, r.formats) {
			p.changed = append(p.changed, col)
			p.diff[col] = domain.FieldDiff{Old: stored[col], New: value}
		}
	}
	for col, name := range res.deferred {
		var old any
		if stored != nil {
			old = stored[col]
		}
		p.diff[col] = domain.FieldDiff{Old: old, New: name}
	}
	sort.Strings(p.changed)

	if spec.kind == domain.EntityFacilities || spec.kind == domain.EntityPartners {
		if err := s.planParent(ctx, db, p, r.formats); err != nil {
			return nil, err
		}
	}

	if spec.kind == domain.EntityTemplates {
		if p.stages, err = s.templateStagesDiff(ctx, db, res); err != nil {
			return nil, err
		}
		if p.stages != nil {
			p.diff["stages"] = *p.stages
		}
	}

	if spec.kind == domain.EntityProducts && len(res.children) > 0 {
		if p.children, err = s.childDiffs(ctx, db, res, r.formats); err != nil {
			return nil, err
		}
		for key, d := range p.children {
			p.diff[key] = d
		}
	}

	if len(res.links) > 0 {
		if p.links, err = s.diffLinks(ctx, db, res); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (s *Service) planParent(ctx context.Context, db *gorm.DB, p *plan, formats []string) error {
	if p.res.existing != nil {
		var parent catalog.ManufacturingEntity
		found, err := s.repo.FindByID(ctx, db, catalog.EntityManufacturingEntities, p.res.existingID, &parent)
		if err != nil {
			return err
		}
		if found {
			p.parentRow = &parent
		}
	}

	var stored map[string]any
	if p.parentRow != nil {
		var err error
		if stored, err = catalog.ToMap(p.parentRow); err != nil {
			return err
		}
	}
	for _, field := range parentFields {
		value, ok := p.res.parent[field]
		if !ok {
			continue
		}
		if stored == nil {
			if normalized(kindText, value, formats) != "" {
				p.diff[field] = domain.FieldDiff{Old: nil, New: value}
			}
			p.parentChanged = append(p.parentChanged, field)
			continue
		}
		if !sameValue(kindText, stored[field], value, formats) {
			p.diff[field] = domain.FieldDiff{Old: stored[field], New: value}
			p.parentChanged = append(p.parentChanged, field)
		}
	}
	return nil
}

func masked(row map[string]any, col string) any {
	if row == nil || textOf(row[col]) == "" {
		return nil
	}
	return maskedPassword
}
