package models

import "time"

// Installation is the scope boundary for one connected remote repository.
// It owns one convention config, one sync state, and many issue mappings.
// Secrets are never persisted: the config file names environment variables
// and the row only records which repository this scope covers.
type Installation struct {
	ID    uint   `gorm:"primaryKey;autoIncrement"`
	Owner string `gorm:"size:64;uniqueIndex:idx_installation_repo"`
	Repo  string `gorm:"size:128;uniqueIndex:idx_installation_repo"`

	// Strategy is the conflict-resolution strategy for true conflicts:
	// local-wins, remote-wins, or newest-wins.
	Strategy string `gorm:"size:16;default:newest-wins"`

	// CreateMissing controls where unpaired issues are created during a
	// full pass: remote, local, both, or none.
	CreateMissing string `gorm:"size:8;default:both"`

	// Conventions holds the per-installation convention overrides as JSON,
	// merged over the defaults at load time.
	Conventions string `gorm:"type:json"`

	Active    bool `gorm:"default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Mappings []IssueMapping `gorm:"foreignKey:InstallationID"`
}
