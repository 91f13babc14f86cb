package service

import (
	"context"
	"fmt"

	"github.com/smallbiznis/pipelineintel/internal/catalog/domain"
	"gorm.io/gorm"
)

// CheckStageParent fails with ErrHierarchyCycle when parentID is stageID or
// one of its descendants. The walk up from parentID visits at most as many
// stages as the deepest recorded hierarchy level.
func CheckStageParent(ctx context.Context, repo domain.Repository, db *gorm.DB, stageID int64, parentID *int64) error {
	if parentID == nil {
		return nil
	}
	if *parentID == stageID {
		return fmt.Errorf("%w: a stage cannot be its own parent", domain.ErrHierarchyCycle)
	}

	depth, err := repo.MaxStageDepth(ctx, db)
	if err != nil {
		return err
	}

	current := *parentID
	seen := map[int64]bool{}
	for step := 0; step <= depth; step++ {
		if current == stageID || seen[current] {
			return fmt.Errorf("%w: stage %d would become its own ancestor", domain.ErrHierarchyCycle, stageID)
		}
		seen[current] = true
		var stage domain.ProcessStage
		found, err := repo.FindByID(ctx, db, domain.EntityProcessStages, current, &stage)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: parent stage %d", domain.ErrNotFound, current)
		}
		if stage.ParentStageID == nil {
			return nil
		}
		current = *stage.ParentStageID
	}
	return fmt.Errorf("%w: parent chain of stage %d is deeper than %d levels", domain.ErrHierarchyCycle, stageID, depth)
}

// StageLevel is 1 for roots and parent level + 1 otherwise.
func StageLevel(ctx context.Context, repo domain.Repository, db *gorm.DB, parentID *int64) (int, error) {
	if parentID == nil {
		return 1, nil
	}
	var parent domain.ProcessStage
	found, err := repo.FindByID(ctx, db, domain.EntityProcessStages, *parentID, &parent)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%w: parent stage %d", domain.ErrNotFound, *parentID)
	}
	if parent.HierarchyLevel == nil {
		return 2, nil
	}
	return *parent.HierarchyLevel + 1, nil
}

// RefreshDescendantLevels rewrites hierarchy levels below stageID, which sits at level.
func RefreshDescendantLevels(ctx context.Context, repo domain.Repository, db *gorm.DB, stageID int64, level int) error {
	type node struct {
		id    int64
		level int
	}
	queue := []node{{id: stageID, level: level}}
	seen := map[int64]bool{stageID: true}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		children, err := repo.ListChildrenOfStage(ctx, db, current.id)
		if err != nil {
			return err
		}
		for _, child := range children {
			if seen[child.StageID] {
				continue
			}
			seen[child.StageID] = true
			want := current.level + 1
			if child.HierarchyLevel == nil || *child.HierarchyLevel != want {
				err := db.WithContext(ctx).
					Model(&domain.ProcessStage{}).
					Where("stage_id = ?", child.StageID).
					Update("hierarchy_level", want).Error
				if err != nil {
					return err
				}
			}
			queue = append(queue, node{id: child.StageID, level: want})
		}
	}
	return nil
}

// CheckTemplateModality fails when products using templateID belong to a
// modality other than modalityID.
func CheckTemplateModality(ctx context.Context, repo domain.Repository, db *gorm.DB, templateID int64, modalityID *int64) error {
	if modalityID == nil {
		return nil
	}
	products, err := repo.ListProductsByTemplate(ctx, db, templateID)
	if err != nil {
		return err
	}
	for _, p := range products {
		if p.ModalityID != nil && *p.ModalityID != *modalityID {
			return fmt.Errorf("%w: product %s uses this template with another modality", domain.ErrTemplateModalityMismatch, p.ProductCode)
		}
	}
	return nil
}

// TemplateMatchesModality reports whether a product of modalityID may use template.
func TemplateMatchesModality(template *domain.ProcessTemplate, modalityID *int64) bool {
	if template == nil || template.ModalityID == nil || modalityID == nil {
		return true
	}
	return *template.ModalityID == *modalityID
}

// CheckLineExtension applies the NME / line-extension rules and sibling
// launch sequence uniqueness to p.
func CheckLineExtension(ctx context.Context, repo domain.Repository, db *gorm.DB, p *domain.Product) error {
	var parent *domain.Product
	if p.ParentProductID != nil {
		var loaded domain.Product
		found, err := repo.FindByID(ctx, db, domain.EntityProducts, *p.ParentProductID, &loaded)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: parent product %d", domain.ErrNotFound, *p.ParentProductID)
		}
		parent = &loaded
	}

	if violations := p.LineExtensionViolations(parent, p.ParentProductID != nil); len(violations) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrLineExtension, violations[0])
	}

	if p.ParentProductID != nil && p.LaunchSequence != nil {
		taken, err := repo.LaunchSequenceTaken(ctx, db, *p.ParentProductID, *p.LaunchSequence, p.ProductID)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: launch sequence %d already used under parent %s", domain.ErrLaunchSequenceConflict, *p.LaunchSequence, parent.ProductCode)
		}
	}
	return nil
}
