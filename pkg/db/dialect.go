package db

import (
	"fmt"

	"github.com/smallbiznis/pipelineintel/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func Dialect(cfg config.Config) (gorm.Dialector, error) {
	switch cfg.DBType {
	case "mysql":
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBName,
		)), nil
	case "postgres":
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
			cfg.DBPort,
			cfg.DBSSLMode,
		)), nil
	case "sqlite":
		return sqlite.Open(fmt.Sprintf("file:%s?_foreign_keys=on", cfg.DBPath)), nil
	default:
		return nil, fmt.Errorf("unsupported %s type", cfg.DBType)
	}
}

// SetForeignKeyChecks toggles referential checks for the session behind db.
// Callers must pin db to a single connection.
func SetForeignKeyChecks(db *gorm.DB, enabled bool) error {
	switch db.Dialector.Name() {
	case "sqlite":
		if enabled {
			return db.Exec("PRAGMA foreign_keys = ON").Error
		}
		return db.Exec("PRAGMA foreign_keys = OFF").Error
	case "postgres":
		if enabled {
			return db.Exec("SET session_replication_role = DEFAULT").Error
		}
		return db.Exec("SET session_replication_role = replica").Error
	case "mysql":
		if enabled {
			return db.Exec("SET FOREIGN_KEY_CHECKS = 1").Error
		}
		return db.Exec("SET FOREIGN_KEY_CHECKS = 0").Error
	default:
		return fmt.Errorf("unsupported dialect %s", db.Dialector.Name())
	}
}
