package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pipelineintel/internal/catalog/domain"
	"github.com/smallbiznis/pipelineintel/internal/password"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultAdminUsername = "admin"
	phaseCategory        = "Phase"
)

type AdminOptions struct {
	Username string
	Password string
}

// EnsureAdmin creates the bootstrap admin account unless a user with the same
// name already exists. Without a password nothing is created.
func EnsureAdmin(ctx context.Context, db *gorm.DB, node *snowflake.Node, opts AdminOptions, log *zap.Logger) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	username := strings.TrimSpace(opts.Username)
	if username == "" {
		username = defaultAdminUsername
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		if opts.Password == "" {
			log.Warn("admin user not seeded, ADMIN_PASSWORD is empty", zap.String("username", username))
			return nil
		}

		hashed, err := password.Hash(opts.Password)
		if err != nil {
			return err
		}
		user := domain.User{
			ID:        node.Generate().Int64(),
			Username:  username,
			Password:  hashed,
			IsAdmin:   true,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		log.Info("admin user seeded", zap.String("username", username))
		return nil
	})
}

// EnsurePhases creates one root stage per phase name when the stage table is
// still empty. Existing catalogs are left alone.
func EnsurePhases(ctx context.Context, db *gorm.DB, node *snowflake.Node, phases []string) (int, error) {
	if db == nil {
		return 0, errors.New("seed database handle is required")
	}

	created := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.ProcessStage{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		category := phaseCategory
		level := 1
		now := time.Now().UTC()
		for i, name := range phases {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			order := i + 1
			stage := domain.ProcessStage{
				StageID:        node.Generate().Int64(),
				StageName:      name,
				StageCategory:  &category,
				HierarchyLevel: &level,
				StageOrder:     &order,
				CreatedAt:      now,
			}
			if err := tx.Create(&stage).Error; err != nil {
				return err
			}
			created++
		}
		return nil
	})
	return created, err
}
