package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/barter"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/community"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/config"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/listings"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const defaultConnMaxLifetime = 30 * time.Minute

// Open connects to the configured driver, migrates the schema and applies the
// named one-shot migrations.
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db handle: %w", err)
	}
	if cfg.Driver == config.DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		sqlDB.SetConnMaxLifetime(defaultConnMaxLifetime)
		if err := sqlDB.Ping(); err != nil {
			return nil, fmt.Errorf("db ping: %w", err)
		}
	}

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}

	logger.Info("database initialized", zap.String("driver", cfg.Driver))
	return db, nil
}

// Migrate brings the schema up to date on an open handle.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(
		&users.Profile{},
		&community.Community{},
		&community.Membership{},
		&community.Ban{},
		&listings.Listing{},
		&barter.Request{},
		&notifications.Notification{},
		&migrationRecord{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return applyMigrations(db, logger)
}

func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case config.DriverSQLite, "":
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, fmt.Errorf("database path is required")
		}
		return sqlite.Open(cfg.Path), nil
	case config.DriverPostgres:
		return postgres.Open(cfg.DSN), nil
	case config.DriverMySQL:
		return mysql.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
