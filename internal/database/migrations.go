package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/content"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/documents"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/portfolio"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillDocumentKind    = "2026-01-10_backfill_document_kind"
	migrationDefaultInterestCategory = "2026-01-24_default_interest_category"
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

func registeredMigrations() []migrationDefinition {
	return []migrationDefinition{
		{name: migrationBackfillDocumentKind, apply: backfillDocumentKind},
		{name: migrationDefaultInterestCategory, apply: defaultInterestCategory},
	}
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	for _, migration := range registeredMigrations() {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillDocumentKind assigns the default kind to rows written before
// documents carried one.
func backfillDocumentKind(db *gorm.DB) error {
	return db.Model(&documents.DocumentRecord{}).
		Where("kind = ''").
		Update("kind", content.DefaultKind).Error
}

func defaultInterestCategory(db *gorm.DB) error {
	return db.Model(&portfolio.InterestRecord{}).
		Where("category = ''").
		Update("category", string(portfolio.DefaultCategory)).Error
}
