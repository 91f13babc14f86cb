package domain

import (
	"context"

	"gorm.io/gorm"
)

// Repository reads and writes catalog rows. Lookups that find nothing return
// a nil row and a nil error.
type Repository interface {
	// FindByName loads the row of a named entity into dest.
	FindByName(ctx context.Context, db *gorm.DB, entity Entity, name string, dest any) (bool, error)
	FindIDByName(ctx context.Context, db *gorm.DB, entity Entity, name string) (int64, bool, error)
	FindByID(ctx context.Context, db *gorm.DB, entity Entity, id int64, dest any) (bool, error)
	// FindWhere loads the first row matching every column in conds.
	FindWhere(ctx context.Context, db *gorm.DB, entity Entity, conds map[string]any, dest any) (bool, error)
	// List loads every row of entity into dest, a pointer to a slice.
	List(ctx context.Context, db *gorm.DB, entity Entity, dest any) error
	ListNames(ctx context.Context, db *gorm.DB, entity Entity) ([]string, error)
	ListPage(ctx context.Context, db *gorm.DB, entity Entity, afterID int64, limit int, dest any) error
	NamesByIDs(ctx context.Context, db *gorm.DB, entity Entity, ids []int64) (map[int64]string, error)

	ListStages(ctx context.Context, db *gorm.DB) ([]ProcessStage, error)
	ListChildrenOfStage(ctx context.Context, db *gorm.DB, parentID int64) ([]ProcessStage, error)
	MaxStageDepth(ctx context.Context, db *gorm.DB) (int, error)

	ListTemplateStages(ctx context.Context, db *gorm.DB, templateID int64) ([]TemplateStageView, error)
	ReplaceTemplateStages(ctx context.Context, db *gorm.DB, templateID int64, stages []TemplateStage) error
	ListTemplatesByModality(ctx context.Context, db *gorm.DB, modalityID int64) ([]ProcessTemplate, error)
	ListProductsByTemplate(ctx context.Context, db *gorm.DB, templateID int64) ([]Product, error)

	FindProductByCode(ctx context.Context, db *gorm.DB, code string) (*Product, error)
	// ListByProduct loads the rows of a product-owned entity into dest.
	ListByProduct(ctx context.Context, db *gorm.DB, entity Entity, productID int64, dest any) error
	MaxSiblingLaunchSequence(ctx context.Context, db *gorm.DB, parentID int64, excludeProductID int64) (int, error)
	LaunchSequenceTaken(ctx context.Context, db *gorm.DB, parentID int64, seq int, excludeProductID int64) (bool, error)

	ListTechnologiesOfStage(ctx context.Context, db *gorm.DB, stageID int64) ([]ManufacturingTechnology, error)
	ListTechnologyModalityIDs(ctx context.Context, db *gorm.DB, technologyID int64) ([]int64, error)
	ReplaceTechnologyModalities(ctx context.Context, db *gorm.DB, technologyID int64, modalityIDs []int64) error
	ListChallengesOfTechnology(ctx context.Context, db *gorm.DB, technologyID int64) ([]ManufacturingChallenge, error)
	AddTechnologyChallenge(ctx context.Context, db *gorm.DB, technologyID, challengeID int64) error
	ListTechnologiesOfProduct(ctx context.Context, db *gorm.DB, productID int64) ([]ManufacturingTechnology, error)
	AddProductTechnology(ctx context.Context, db *gorm.DB, productID, technologyID int64) error

	ListTypicalChallengesOfModality(ctx context.Context, db *gorm.DB, modalityID int64) ([]ManufacturingChallenge, error)
	ListModalityChallenges(ctx context.Context, db *gorm.DB, challengeID int64) ([]ModalityChallengeView, error)
	ReplaceChallengeModalities(ctx context.Context, db *gorm.DB, challengeID int64, modalityIDs []int64) error
	ListChallengeStageIDs(ctx context.Context, db *gorm.DB, challengeID int64) ([]int64, error)
	ReplaceChallengeStages(ctx context.Context, db *gorm.DB, challengeID int64, stageIDs []int64) error

	ListProductChallenges(ctx context.Context, db *gorm.DB, productID int64, relationship string) ([]ProductChallengeView, error)
	ListChallengeProductIDs(ctx context.Context, db *gorm.DB, challengeID int64, relationship string) ([]int64, error)
	UpsertProductChallenge(ctx context.Context, db *gorm.DB, link ProductChallenge) error
	DeleteProductChallenges(ctx context.Context, db *gorm.DB, challengeID int64, relationship string, keepProductIDs []int64) error

	// Delete removes a row and everything it owns.
	Delete(ctx context.Context, db *gorm.DB, entity Entity, id int64) error
}

// TemplateStageView is a template stage joined with its stage name.
type TemplateStageView struct {
	TemplateStage
	StageName string `json:"stage_name" gorm:"column:stage_name"`
}

type ModalityChallengeView struct {
	ModalityChallenge
	ModalityName string `json:"modality_name" gorm:"column:modality_name"`
}

type ProductChallengeView struct {
	ProductChallenge
	ChallengeName     string  `json:"challenge_name" gorm:"column:challenge_name"`
	ChallengeCategory *string `json:"challenge_category" gorm:"column:challenge_category"`
	SeverityLevel     *string `json:"severity_level" gorm:"column:severity_level"`
}
