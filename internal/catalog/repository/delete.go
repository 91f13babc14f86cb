package repository

import (
	"context"
	"fmt"

	"github.com/smallbiznis/pipelineintel/internal/catalog/domain"
	"gorm.io/gorm"
)

type cascade struct {
	table  string
	column string
	// nullify clears the reference instead of deleting the row.
	nullify bool
}

// owned lists what goes with a row when it is deleted.
var owned = map[domain.Entity][]cascade{
	domain.EntityProducts: {
		{table: "indications", column: "product_id"},
		{table: "product_supply_chain", column: "product_id"},
		{table: "product_timelines", column: "product_id"},
		{table: "product_regulatory_filings", column: "product_id"},
		{table: "product_manufacturing_suppliers", column: "product_id"},
		{table: "product_to_technology", column: "product_id"},
		{table: "product_to_challenge", column: "product_id"},
	},
	domain.EntityModalities: {
		{table: "technology_modalities", column: "modality_id"},
		{table: "modality_challenges", column: "modality_id"},
		{table: "products", column: "modality_id", nullify: true},
		{table: "process_templates", column: "modality_id", nullify: true},
	},
	domain.EntityProcessStages: {
		{table: "template_stages", column: "stage_id"},
		{table: "challenge_stages", column: "stage_id"},
		{table: "manufacturing_technologies", column: "stage_id", nullify: true},
	},
	domain.EntityProcessTemplates: {
		{table: "template_stages", column: "template_id"},
		{table: "products", column: "process_template_id", nullify: true},
		{table: "manufacturing_technologies", column: "template_id", nullify: true},
	},
	domain.EntityTechnologies: {
		{table: "technology_modalities", column: "technology_id"},
		{table: "technology_challenges", column: "technology_id"},
		{table: "product_to_technology", column: "technology_id"},
		{table: "manufacturing_challenges", column: "technology_id", nullify: true},
	},
	domain.EntityChallenges: {
		{table: "technology_challenges", column: "challenge_id"},
		{table: "challenge_stages", column: "challenge_id"},
		{table: "modality_challenges", column: "challenge_id"},
		{table: "product_to_challenge", column: "challenge_id"},
	},
	domain.EntityManufacturingEntities: {
		{table: "internal_facilities", column: "entity_id"},
		{table: "external_partners", column: "entity_id"},
		{table: "product_supply_chain", column: "entity_id", nullify: true},
	},
}

// Delete removes a row and its owned records. Stages with children and
// products with line extensions are refused.
func (r *repo) Delete(ctx context.Context, db *gorm.DB, entity domain.Entity, id int64) error {
	// facilities and partners are removed through their parent entity
	if entity == domain.EntityInternalFacilities || entity == domain.EntityExternalPartners {
		entity = domain.EntityManufacturingEntities
	}

	meta, err := keyed(entity)
	if err != nil {
		return err
	}

	var exists int64
	if err := db.WithContext(ctx).Table(meta.Table).Where(meta.PK+" = ?", id).Count(&exists).Error; err != nil {
		return err
	}
	if exists == 0 {
		return domain.ErrNotFound
	}

	switch entity {
	case domain.EntityProcessStages:
		if err := refuseChildren(ctx, db, "process_stages", "parent_stage_id", id, "stage has child stages"); err != nil {
			return err
		}
	case domain.EntityProducts:
		if err := refuseChildren(ctx, db, "products", "parent_product_id", id, "product has line extensions"); err != nil {
			return err
		}
	}

	for _, c := range owned[entity] {
		if c.nullify {
			err = db.WithContext(ctx).Exec(fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s = ?", c.table, c.column, c.column), id).Error
		} else {
			err = db.WithContext(ctx).Exec(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", c.table, c.column), id).Error
		}
		if err != nil {
			return fmt.Errorf("cascade %s: %w", c.table, err)
		}
	}

	return db.WithContext(ctx).Exec(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", meta.Table, meta.PK), id).Error
}

func refuseChildren(ctx context.Context, db *gorm.DB, table, column string, id int64, reason string) error {
	var count int64
	if err := db.WithContext(ctx).Table(table).Where(column+" = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: %s", domain.ErrReferenced, reason)
	}
	return nil
}
