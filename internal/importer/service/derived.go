package service

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	catalog "github.com/smallbiznis/pipelineintel/internal/catalog/domain"
	"github.com/smallbiznis/pipelineintel/internal/importer/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// productChildKeys are product input arrays that replace owned rows.
var productChildKeys = []string{"timeline_milestones", "regulatory_filings", "manufacturing_suppliers"}

var productChildEntities = map[string]catalog.Entity{
	"timeline_milestones":     catalog.EntityTimelines,
	"regulatory_filings":      catalog.EntityRegulatoryFilings,
	"manufacturing_suppliers": catalog.EntityManufacturingSuppliers,
}

// required child fields, by array
var productChildRequired = map[string][]string{
	"timeline_milestones":     {"milestone_name"},
	"manufacturing_suppliers": {"supply_type", "supplier_name"},
}

// childView reduces child rows to their comparable columns.
func childView(entity catalog.Entity, rows []map[string]any, formats []string) ([]map[string]string, error) {
	cols, err := columnsOf(entity)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		view := map[string]string{}
		for col, kind := range cols.writable {
			if col == "product_id" {
				continue
			}
			view[col] = normalized(kind, row[col], formats)
		}
		out = append(out, view)
	}
	return out, nil
}

// childDiffs compares incoming child arrays with the stored rows.
func (s *Service) childDiffs(ctx context.Context, db *gorm.DB, res *resolved, formats []string) (map[string]domain.FieldDiff, error) {
	out := map[string]domain.FieldDiff{}
	for _, key := range productChildKeys {
		incoming, ok := res.children[key]
		if !ok {
			continue
		}
		entity := productChildEntities[key]

		stored := []map[string]any{}
		if res.existing != nil {
			meta, err := catalog.MetaOf(entity)
			if err != nil {
				return nil, err
			}
			rows := meta.NewSlice()
			if err := s.repo.ListByProduct(ctx, db, entity, res.existingID, rows); err != nil {
				return nil, err
			}
			if stored, err = catalog.ToMaps(rows); err != nil {
				return nil, err
			}
			for _, row := range stored {
				delete(row, meta.PK)
				delete(row, "product_id")
			}
		}

		before, err := childView(entity, stored, formats)
		if err != nil {
			return nil, err
		}
		after, err := childView(entity, incoming, formats)
		if err != nil {
			return nil, err
		}
		if !reflect.DeepEqual(before, after) {
			out[key] = domain.FieldDiff{Old: stored, New: incoming}
		}
	}
	return out, nil
}

// replaceChildren rewrites the owned rows of the arrays named in keys.
func (s *Service) replaceChildren(ctx context.Context, tx *gorm.DB, productID int64, res *resolved, keys map[string]domain.FieldDiff, formats []string) error {
	for _, key := range productChildKeys {
		if _, changed := keys[key]; !changed {
			continue
		}
		entity := productChildEntities[key]
		meta, err := catalog.MetaOf(entity)
		if err != nil {
			return err
		}
		cols, err := columnsOf(entity)
		if err != nil {
			return err
		}

		if err := tx.WithContext(ctx).Where("product_id = ?", productID).Delete(meta.NewModel()).Error; err != nil {
			return err
		}

		for i, row := range res.children[key] {
			for _, field := range productChildRequired[key] {
				if strings.TrimSpace(textOf(row[field])) == "" {
					return fmt.Errorf("%w: %s[%d] is missing %s", errInvalidValue, key, i, field)
				}
			}
			values := map[string]any{}
			for col, kind := range cols.writable {
				v, ok := row[col]
				if !ok {
					continue
				}
				coerced, err := coerce(kind, v, formats)
				if err != nil {
					return fmt.Errorf("%w: %s[%d].%s: %v", errInvalidValue, key, i, col, err)
				}
				values[col] = coerced
			}
			values[meta.PK] = s.genID.Generate().Int64()
			values["product_id"] = productID

			model := meta.NewModel()
			if err := catalog.Decode(values, model); err != nil {
				return fmt.Errorf("%w: %s[%d]: %v", errInvalidValue, key, i, err)
			}
			if err := tx.WithContext(ctx).Create(model).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// synthesizeSuppliers creates supplier rows from the product's DS, DP and
// device arrays when the product has no supplier rows yet. An explicit
// manufacturing_suppliers array in the input owns the rows, even when empty.
func (s *Service) synthesizeSuppliers(ctx context.Context, tx *gorm.DB, product *catalog.Product, res *resolved) (int, error) {
	if _, explicit := res.children["manufacturing_suppliers"]; explicit {
		return 0, nil
	}
	var count int64
	err := tx.WithContext(ctx).
		Model(&catalog.ProductManufacturingSupplier{}).
		Where("product_id = ?", product.ProductID).
		Count(&count).Error
	if err != nil || count > 0 {
		return 0, err
	}

	sources := []struct {
		raw        datatypes.JSON
		supplyType string
	}{
		{product.DSSuppliers, catalog.SupplyTypeDS},
		{product.DPSuppliers, catalog.SupplyTypeDP},
		{product.DevicePartners, catalog.SupplyTypeDevice},
	}

	created := 0
	for _, src := range sources {
		if len(src.raw) == 0 {
			continue
		}
		var items []any
		if err := json.Unmarshal(src.raw, &items); err != nil {
			// not a list; nothing to derive
			continue
		}
		for _, item := range items {
			supplier, ok := supplierFrom(item)
			if !ok {
				continue
			}
			supplier.SupplierID = s.genID.Generate().Int64()
			supplier.ProductID = product.ProductID
			supplier.SupplyType = src.supplyType
			if err := tx.WithContext(ctx).Create(&supplier).Error; err != nil {
				return created, err
			}
			created++
		}
	}
	return created, nil
}

func supplierFrom(item any) (catalog.ProductManufacturingSupplier, bool) {
	var out catalog.ProductManufacturingSupplier
	switch v := item.(type) {
	case string:
		out.SupplierName = strings.TrimSpace(v)
	case map[string]any:
		for _, key := range []string{"supplier_name", "name", "company_name", "partner"} {
			if name := strings.TrimSpace(textOf(v[key])); name != "" {
				out.SupplierName = name
				break
			}
		}
		out.Role = optionalText(v["role"])
		out.Location = optionalText(v["location"])
		out.Status = optionalText(v["status"])
		out.Notes = optionalText(v["notes"])
	}
	return out, out.SupplierName != ""
}

func optionalText(v any) *string {
	s := strings.TrimSpace(textOf(v))
	if s == "" {
		return nil
	}
	return &s
}
