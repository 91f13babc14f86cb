package repository

import (
	"context"
	"fmt"

	"github.com/smallbiznis/pipelineintel/internal/catalog/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func named(entity domain.Entity) (domain.Meta, error) {
	meta, err := domain.MetaOf(entity)
	if err != nil {
		return meta, err
	}
	if meta.Name == "" {
		return meta, fmt.Errorf("%w: %s has no name column", domain.ErrInvalidEntity, entity)
	}
	return meta, nil
}

func keyed(entity domain.Entity) (domain.Meta, error) {
	meta, err := domain.MetaOf(entity)
	if err != nil {
		return meta, err
	}
	if meta.PK == "" {
		return meta, fmt.Errorf("%w: %s has a composite key", domain.ErrInvalidEntity, entity)
	}
	return meta, nil
}

func (r *repo) FindByName(ctx context.Context, db *gorm.DB, entity domain.Entity, name string, dest any) (bool, error) {
	meta, err := named(entity)
	if err != nil {
		return false, err
	}
	tx := db.WithContext(ctx).Table(meta.Table).Where(meta.Name+" = ?", name).Limit(1).Find(dest)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *repo) FindIDByName(ctx context.Context, db *gorm.DB, entity domain.Entity, name string) (int64, bool, error) {
	meta, err := named(entity)
	if err != nil {
		return 0, false, err
	}
	var ids []int64
	err = db.WithContext(ctx).Table(meta.Table).Where(meta.Name+" = ?", name).Limit(1).Pluck(meta.PK, &ids).Error
	if err != nil {
		return 0, false, err
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, entity domain.Entity, id int64, dest any) (bool, error) {
	meta, err := keyed(entity)
	if err != nil {
		return false, err
	}
	tx := db.WithContext(ctx).Table(meta.Table).Where(meta.PK+" = ?", id).Limit(1).Find(dest)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *repo) FindWhere(ctx context.Context, db *gorm.DB, entity domain.Entity, conds map[string]any, dest any) (bool, error) {
	meta, err := domain.MetaOf(entity)
	if err != nil {
		return false, err
	}
	tx := db.WithContext(ctx).Table(meta.Table).Where(conds).Limit(1).Find(dest)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, entity domain.Entity, dest any) error {
	meta, err := domain.MetaOf(entity)
	if err != nil {
		return err
	}
	stmt := db.WithContext(ctx).Table(meta.Table)
	if meta.PK != "" {
		stmt = stmt.Order(meta.PK)
	}
	return stmt.Find(dest).Error
}

func (r *repo) ListNames(ctx context.Context, db *gorm.DB, entity domain.Entity) ([]string, error) {
	meta, err := named(entity)
	if err != nil {
		return nil, err
	}
	var names []string
	err = db.WithContext(ctx).Table(meta.Table).Order(meta.Name).Pluck(meta.Name, &names).Error
	return names, err
}

func (r *repo) ListPage(ctx context.Context, db *gorm.DB, entity domain.Entity, afterID int64, limit int, dest any) error {
	meta, err := keyed(entity)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).
		Table(meta.Table).
		Where(meta.PK+" > ?", afterID).
		Order(meta.PK).
		Limit(limit).
		Find(dest).Error
}

func (r *repo) NamesByIDs(ctx context.Context, db *gorm.DB, entity domain.Entity, ids []int64) (map[int64]string, error) {
	meta, err := named(entity)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []struct {
		ID   int64
		Name string
	}
	err = db.WithContext(ctx).
		Table(meta.Table).
		Select(meta.PK+" AS id, "+meta.Name+" AS name").
		Where(meta.PK+" IN ?", ids).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row.Name
	}
	return out, nil
}

func (r *repo) ListStages(ctx context.Context, db *gorm.DB) ([]domain.ProcessStage, error) {
	var items []domain.ProcessStage
	err := db.WithContext(ctx).
		Order("hierarchy_level").
		Order("stage_order").
		Order("stage_name").
		Find(&items).Error
	return items, err
}

func (r *repo) ListChildrenOfStage(ctx context.Context, db *gorm.DB, parentID int64) ([]domain.ProcessStage, error) {
	var items []domain.ProcessStage
	err := db.WithContext(ctx).
		Where("parent_stage_id = ?", parentID).
		Order("stage_order").
		Order("stage_name").
		Find(&items).Error
	return items, err
}

func (r *repo) MaxStageDepth(ctx context.Context, db *gorm.DB) (int, error) {
	var depth int
	err := db.WithContext(ctx).
		Model(&domain.ProcessStage{}).
		Select("COALESCE(MAX(hierarchy_level), 0)").
		Scan(&depth).Error
	return depth, err
}

func (r *repo) ListTemplateStages(ctx context.Context, db *gorm.DB, templateID int64) ([]domain.TemplateStageView, error) {
	var items []domain.TemplateStageView
	err := db.WithContext(ctx).Raw(
		`SELECT ts.template_id, ts.stage_id, ts.stage_order, ts.is_required, ts.base_capabilities, s.stage_name
		 FROM template_stages ts
		 JOIN process_stages s ON s.stage_id = ts.stage_id
		 WHERE ts.template_id = ?
		 ORDER BY ts.stage_order ASC, s.stage_name ASC`,
		templateID,
	).Scan(&items).Error
	return items, err
}

func (r *repo) ReplaceTemplateStages(ctx context.Context, db *gorm.DB, templateID int64, stages []domain.TemplateStage) error {
	if err := db.WithContext(ctx).Where("template_id = ?", templateID).Delete(&domain.TemplateStage{}).Error; err != nil {
		return err
	}
	if len(stages) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&stages).Error
}

func (r *repo) ListTemplatesByModality(ctx context.Context, db *gorm.DB, modalityID int64) ([]domain.ProcessTemplate, error) {
	var items []domain.ProcessTemplate
	err := db.WithContext(ctx).
		Where("modality_id = ?", modalityID).
		Order("template_name").
		Find(&items).Error
	return items, err
}

func (r *repo) ListProductsByTemplate(ctx context.Context, db *gorm.DB, templateID int64) ([]domain.Product, error) {
	var items []domain.Product
	err := db.WithContext(ctx).
		Where("process_template_id = ?", templateID).
		Order("product_code").
		Find(&items).Error
	return items, err
}

func (r *repo) FindProductByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Product, error) {
	var p domain.Product
	tx := db.WithContext(ctx).Where("product_code = ?", code).Limit(1).Find(&p)
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) ListByProduct(ctx context.Context, db *gorm.DB, entity domain.Entity, productID int64, dest any) error {
	meta, err := keyed(entity)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).
		Table(meta.Table).
		Where("product_id = ?", productID).
		Order(meta.PK).
		Find(dest).Error
}

func (r *repo) MaxSiblingLaunchSequence(ctx context.Context, db *gorm.DB, parentID int64, excludeProductID int64) (int, error) {
	var max int
	err := db.WithContext(ctx).
		Model(&domain.Product{}).
		Select("COALESCE(MAX(launch_sequence), 0)").
		Where("parent_product_id = ? AND product_id <> ?", parentID, excludeProductID).
		Scan(&max).Error
	return max, err
}

func (r *repo) LaunchSequenceTaken(ctx context.Context, db *gorm.DB, parentID int64, seq int, excludeProductID int64) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("parent_product_id = ? AND launch_sequence = ? AND product_id <> ?", parentID, seq, excludeProductID).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) ListTechnologiesOfStage(ctx context.Context, db *gorm.DB, stageID int64) ([]domain.ManufacturingTechnology, error) {
	var items []domain.ManufacturingTechnology
	err := db.WithContext(ctx).
		Where("stage_id = ?", stageID).
		Order("technology_name").
		Find(&items).Error
	return items, err
}

func (r *repo) ListTechnologyModalityIDs(ctx context.Context, db *gorm.DB, technologyID int64) ([]int64, error) {
	var ids []int64
	err := db.WithContext(ctx).
		Model(&domain.TechnologyModality{}).
		Where("technology_id = ?", technologyID).
		Order("modality_id").
		Pluck("modality_id", &ids).Error
	return ids, err
}

func (r *repo) ReplaceTechnologyModalities(ctx context.Context, db *gorm.DB, technologyID int64, modalityIDs []int64) error {
	del := db.WithContext(ctx).Where("technology_id = ?", technologyID)
	if len(modalityIDs) > 0 {
		del = del.Where("modality_id NOT IN ?", modalityIDs)
	}
	if err := del.Delete(&domain.TechnologyModality{}).Error; err != nil {
		return err
	}
	for _, id := range modalityIDs {
		link := domain.TechnologyModality{TechnologyID: technologyID, ModalityID: id}
		if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
			return err
		}
	}
	return nil
}

// ListChallengesOfTechnology returns challenges attached either through the
// technology_id column or the technology_challenges junction.
func (r *repo) ListChallengesOfTechnology(ctx context.Context, db *gorm.DB, technologyID int64) ([]domain.ManufacturingChallenge, error) {
	var items []domain.ManufacturingChallenge
	err := db.WithContext(ctx).
		Where("technology_id = ?", technologyID).
		Or("challenge_id IN (?)", db.Model(&domain.TechnologyChallenge{}).Select("challenge_id").Where("technology_id = ?", technologyID)).
		Order("challenge_name").
		Find(&items).Error
	return items, err
}

func (r *repo) AddTechnologyChallenge(ctx context.Context, db *gorm.DB, technologyID, challengeID int64) error {
	link := domain.TechnologyChallenge{TechnologyID: technologyID, ChallengeID: challengeID}
	return db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error
}

func (r *repo) ListTechnologiesOfProduct(ctx context.Context, db *gorm.DB, productID int64) ([]domain.ManufacturingTechnology, error) {
	var items []domain.ManufacturingTechnology
	err := db.WithContext(ctx).
		Joins("JOIN product_to_technology pt ON pt.technology_id = manufacturing_technologies.technology_id").
		Where("pt.product_id = ?", productID).
		Order("manufacturing_technologies.technology_name").
		Find(&items).Error
	return items, err
}

func (r *repo) AddProductTechnology(ctx context.Context, db *gorm.DB, productID, technologyID int64) error {
	link := domain.ProductTechnology{ProductID: productID, TechnologyID: technologyID}
	return db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error
}

func (r *repo) ListTypicalChallengesOfModality(ctx context.Context, db *gorm.DB, modalityID int64) ([]domain.ManufacturingChallenge, error) {
	var items []domain.ManufacturingChallenge
	err := db.WithContext(ctx).
		Joins("JOIN modality_challenges mc ON mc.challenge_id = manufacturing_challenges.challenge_id").
		Where("mc.modality_id = ?", modalityID).
		Order("manufacturing_challenges.challenge_name").
		Find(&items).Error
	return items, err
}

func (r *repo) ListModalityChallenges(ctx context.Context, db *gorm.DB, challengeID int64) ([]domain.ModalityChallengeView, error) {
	var items []domain.ModalityChallengeView
	err := db.WithContext(ctx).Raw(
		`SELECT mc.modality_id, mc.challenge_id, mc.specific_description, mc.impact_score, mc.maturity_score, mc.notes, m.modality_name
		 FROM modality_challenges mc
		 JOIN modalities m ON m.modality_id = mc.modality_id
		 WHERE mc.challenge_id = ?
		 ORDER BY m.modality_name ASC`,
		challengeID,
	).Scan(&items).Error
	return items, err
}

// ReplaceChallengeModalities keeps detail columns of modality links that survive.
func (r *repo) ReplaceChallengeModalities(ctx context.Context, db *gorm.DB, challengeID int64, modalityIDs []int64) error {
	del := db.WithContext(ctx).Where("challenge_id = ?", challengeID)
	if len(modalityIDs) > 0 {
		del = del.Where("modality_id NOT IN ?", modalityIDs)
	}
	if err := del.Delete(&domain.ModalityChallenge{}).Error; err != nil {
		return err
	}
	for _, id := range modalityIDs {
		link := domain.ModalityChallenge{ModalityID: id, ChallengeID: challengeID}
		if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) ListChallengeStageIDs(ctx context.Context, db *gorm.DB, challengeID int64) ([]int64, error) {
	var ids []int64
	err := db.WithContext(ctx).
		Model(&domain.ChallengeStage{}).
		Where("challenge_id = ?", challengeID).
		Order("stage_id").
		Pluck("stage_id", &ids).Error
	return ids, err
}

func (r *repo) ReplaceChallengeStages(ctx context.Context, db *gorm.DB, challengeID int64, stageIDs []int64) error {
	del := db.WithContext(ctx).Where("challenge_id = ?", challengeID)
	if len(stageIDs) > 0 {
		del = del.Where("stage_id NOT IN ?", stageIDs)
	}
	if err := del.Delete(&domain.ChallengeStage{}).Error; err != nil {
		return err
	}
	for _, id := range stageIDs {
		link := domain.ChallengeStage{ChallengeID: challengeID, StageID: id}
		if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) ListProductChallenges(ctx context.Context, db *gorm.DB, productID int64, relationship string) ([]domain.ProductChallengeView, error) {
	query := `SELECT pc.product_id, pc.challenge_id, pc.relationship_type, pc.notes,
		        c.challenge_name, c.challenge_category, c.severity_level
		 FROM product_to_challenge pc
		 JOIN manufacturing_challenges c ON c.challenge_id = pc.challenge_id
		 WHERE pc.product_id = ?`
	args := []any{productID}
	if relationship != "" {
		query += ` AND pc.relationship_type = ?`
		args = append(args, relationship)
	}
	query += ` ORDER BY c.challenge_name ASC`

	var items []domain.ProductChallengeView
	err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error
	return items, err
}

func (r *repo) ListChallengeProductIDs(ctx context.Context, db *gorm.DB, challengeID int64, relationship string) ([]int64, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.ProductChallenge{}).
		Where("challenge_id = ?", challengeID)
	if relationship != "" {
		stmt = stmt.Where("relationship_type = ?", relationship)
	}
	var ids []int64
	err := stmt.Order("product_id").Pluck("product_id", &ids).Error
	return ids, err
}

func (r *repo) UpsertProductChallenge(ctx context.Context, db *gorm.DB, link domain.ProductChallenge) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "challenge_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"relationship_type", "notes"}),
	}).Create(&link).Error
}

func (r *repo) DeleteProductChallenges(ctx context.Context, db *gorm.DB, challengeID int64, relationship string, keepProductIDs []int64) error {
	stmt := db.WithContext(ctx).Where("challenge_id = ? AND relationship_type = ?", challengeID, relationship)
	if len(keepProductIDs) > 0 {
		stmt = stmt.Where("product_id NOT IN ?", keepProductIDs)
	}
	return stmt.Delete(&domain.ProductChallenge{}).Error
}
