package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/community"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationUppercaseCommunityCodes = "2026-06-01_uppercase_community_codes"
	migrationRecountCommunityMembers = "2026-06-08_recount_community_members"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	migrations := []migrationDefinition{
		{name: migrationUppercaseCommunityCodes, apply: uppercaseCommunityCodes},
		{name: migrationRecountCommunityMembers, apply: recountCommunityMembers},
	}

	for _, migration := range migrations {
		applied, err := migrationApplied(db, migration.name)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: time.Now().UTC().Unix()}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %s: %w", migration.name, err)
		}
		logger.Info("database migration applied", zap.String("migration", migration.name))
	}
	return nil
}

func migrationApplied(db *gorm.DB, name string) (bool, error) {
	var record migrationRecord
	err := db.Where("name = ?", name).Take(&record).Error
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Join lookups compare against uppercase input.
func uppercaseCommunityCodes(db *gorm.DB) error {
	return db.Model(&community.Community{}).
		Where("code <> UPPER(code)").
		Update("code", gorm.Expr("UPPER(code)")).Error
}

func recountCommunityMembers(db *gorm.DB) error {
	return db.Session(&gorm.Session{AllowGlobalUpdate: true}).
		Model(&community.Community{}).
		Update("member_count", gorm.Expr(
			"(SELECT COUNT(*) FROM community_memberships WHERE community_memberships.community_id = communities.id)",
		)).Error
}
