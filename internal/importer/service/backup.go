package service

import (
	"context"
	"encoding/json"
	"fmt"

	catalog "github.com/smallbiznis/pipelineintel/internal/catalog/domain"
	"github.com/smallbiznis/pipelineintel/internal/importer/domain"
	"github.com/smallbiznis/pipelineintel/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	backupSchema     = "pipelineintel"
	restoreBatchSize = 200
)

// ExportBackup dumps every catalog table in dependency order.
func (s *Service) ExportBackup(ctx context.Context) (*domain.Backup, error) {
	backup := &domain.Backup{Tables: make(map[string][]map[string]any, len(catalog.TableOrder))}
	tables := make([]string, 0, len(catalog.TableOrder))

	for _, entity := range catalog.TableOrder {
		meta, err := catalog.MetaOf(entity)
		if err != nil {
			return nil, err
		}
		rows := meta.NewSlice()
		if err := s.repo.List(ctx, s.db, entity, rows); err != nil {
			return nil, err
		}
		items, err := catalog.ToMaps(rows)
		if err != nil {
			return nil, err
		}
		backup.Tables[meta.Table] = items
		tables = append(tables, meta.Table)
	}

	backup.Meta = &domain.BackupMeta{
		Version:    s.appConfig.AppVersion,
		ExportedAt: s.clock.Now(),
		Schema:     backupSchema,
		Tables:     tables,
	}
	s.log.Info("backup exported", zap.Int("tables", len(tables)))
	return backup, nil
}

// RestoreBackup replaces the whole catalog with the backup contents. Any
// failure rolls everything back.
func (s *Service) RestoreBackup(ctx context.Context, backup *domain.Backup) (*domain.RestoreResult, error) {
	if backup == nil || backup.Tables == nil {
		return nil, fmt.Errorf("%w: empty backup", domain.ErrInvalidInput)
	}
	for _, table := range domain.RequiredBackupTables {
		if _, ok := backup.Tables[table]; !ok {
			return nil, fmt.Errorf("%w: backup is missing table %s", domain.ErrInvalidInput, table)
		}
	}

	known := make(map[string]bool, len(catalog.TableOrder))
	for _, entity := range catalog.TableOrder {
		known[string(entity)] = true
	}
	for table := range backup.Tables {
		if !known[table] {
			s.log.Warn("ignoring unknown backup table", zap.String("table", table))
		}
	}

	result := &domain.RestoreResult{Tables: map[string]int{}}
	err := s.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := db.SetForeignKeyChecks(conn, false); err != nil {
			return err
		}
		defer func() {
			if err := db.SetForeignKeyChecks(conn, true); err != nil {
				s.log.Error("failed to re-enable foreign key checks", zap.Error(err))
			}
		}()

		return conn.Transaction(func(tx *gorm.DB) error {
			for i := len(catalog.TableOrder) - 1; i >= 0; i-- {
				meta, err := catalog.MetaOf(catalog.TableOrder[i])
				if err != nil {
					return err
				}
				if err := tx.Where("1 = 1").Delete(meta.NewModel()).Error; err != nil {
					return fmt.Errorf("wipe %s: %w", meta.Table, err)
				}
			}

			for _, entity := range catalog.TableOrder {
				meta, err := catalog.MetaOf(entity)
				if err != nil {
					return err
				}
				rows := backup.Tables[meta.Table]
				if len(rows) == 0 {
					result.Tables[meta.Table] = 0
					continue
				}
				raw, err := json.Marshal(rows)
				if err != nil {
					return err
				}
				models := meta.NewSlice()
				if err := json.Unmarshal(raw, models); err != nil {
					return fmt.Errorf("%w: table %s: %v", domain.ErrInvalidInput, meta.Table, err)
				}
				if err := tx.CreateInBatches(models, restoreBatchSize).Error; err != nil {
					return fmt.Errorf("restore %s: %w", meta.Table, err)
				}
				result.Tables[meta.Table] = len(rows)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("backup restored", zap.Any("tables", result.Tables))
	return result, nil
}
