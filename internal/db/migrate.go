package db

import (
	"encoding/json"
	"fmt"

	"github.com/zulandar/switchyard/internal/config"
	"github.com/zulandar/switchyard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Issue{},
		&models.IssueDep{},
		&models.Installation{},
		&models.IssueMapping{},
		&models.SyncState{},
		&models.ProcessedDelivery{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedInstallations upserts Installation rows from configuration and
// ensures each has a SyncState row. Rows for repos removed from the config
// are marked inactive rather than deleted, so their mapping history and
// sync cursors survive.
func SeedInstallations(db *gorm.DB, installs []config.InstallationConfig) error {
	seen := make(map[string]bool, len(installs))
	for _, ic := range installs {
		conventions, err := marshalJSON(ic.Conventions)
		if err != nil {
			return fmt.Errorf("db: marshal conventions for %s/%s: %w", ic.Owner, ic.Repo, err)
		}

		inst := models.Installation{
			Owner:         ic.Owner,
			Repo:          ic.Repo,
			Strategy:      ic.Strategy,
			CreateMissing: ic.CreateMissing,
			Conventions:   conventions,
			Active:        true,
		}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner"}, {Name: "repo"}},
			DoUpdates: clause.AssignmentColumns([]string{"strategy", "create_missing", "conventions", "active"}),
		}).Create(&inst)
		if result.Error != nil {
			return fmt.Errorf("db: seed installation %s/%s: %w", ic.Owner, ic.Repo, result.Error)
		}
		seen[ic.Owner+"/"+ic.Repo] = true

		var row models.Installation
		if err := db.Where("owner = ? AND repo = ?", ic.Owner, ic.Repo).First(&row).Error; err != nil {
			return fmt.Errorf("db: reload installation %s/%s: %w", ic.Owner, ic.Repo, err)
		}
		state := models.SyncState{InstallationID: row.ID, SyncStatus: models.SyncIdle}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&state).Error; err != nil {
			return fmt.Errorf("db: seed sync state for %s/%s: %w", ic.Owner, ic.Repo, err)
		}
	}

	var existing []models.Installation
	if err := db.Find(&existing).Error; err != nil {
		return fmt.Errorf("db: list installations: %w", err)
	}
	for _, inst := range existing {
		if !seen[inst.Owner+"/"+inst.Repo] && inst.Active {
			if err := db.Model(&models.Installation{}).
				Where("id = ?", inst.ID).
				Update("active", false).Error; err != nil {
				return fmt.Errorf("db: deactivate installation %s/%s: %w", inst.Owner, inst.Repo, err)
			}
		}
	}
	return nil
}

// marshalJSON marshals a value to a JSON string, returning empty string for nil.
func marshalJSON(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
