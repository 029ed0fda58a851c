package models

import "time"

// IssueMapping is the durable correlation between a local issue and its
// remote counterpart. For a given installation, LocalID and RemoteNumber
// are each unique: the correlation is strictly 1:1. A mapping is created
// the first time an issue is observed on either side and updated on every
// successful reconciliation; it is never silently dropped.
type IssueMapping struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	InstallationID uint   `gorm:"uniqueIndex:idx_mapping_local;uniqueIndex:idx_mapping_remote"`
	LocalID        string `gorm:"size:64;uniqueIndex:idx_mapping_local"`
	RemoteNumber   int    `gorm:"uniqueIndex:idx_mapping_remote"`
	RemoteURL      string `gorm:"type:text"`

	// Snapshots taken at the last successful reconciliation. A side is
	// considered changed when its current UpdatedAt is after its snapshot.
	LastSyncedAt          time.Time
	LocalUpdatedAtAtSync  time.Time
	RemoteUpdatedAtAtSync time.Time

	// Version implements optimistic concurrency: reconciliation reads the
	// row, does its work, and writes back only if Version is unchanged.
	Version uint `gorm:"default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sync status values for SyncState.
const (
	SyncIdle    = "idle"
	SyncSyncing = "syncing"
	SyncError   = "error"
)

// SyncState is the per-installation sync cursor. Created once per
// installation and mutated by the engine; never deleted while the
// installation is active.
type SyncState struct {
	InstallationID uint `gorm:"primaryKey"`

	LastSyncAt   *time.Time
	SyncStatus   string `gorm:"size:16;default:idle"`
	ErrorCount   int    `gorm:"default:0"`
	ErrorMessage string `gorm:"type:text"`

	// LastEventID is the most recently processed webhook delivery ID.
	LastEventID string `gorm:"size:64"`

	// LastMirrorHash fingerprints the mirror directory at the last scan,
	// for local-side change detection.
	LastMirrorHash string `gorm:"size:64"`

	UpdatedAt time.Time
}

// ProcessedDelivery records a webhook delivery ID that has already been
// applied. Deliveries arrive at-least-once and out of order, so a single
// last-seen cursor is not enough for replay protection.
type ProcessedDelivery struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	InstallationID uint   `gorm:"uniqueIndex:idx_delivery"`
	DeliveryID     string `gorm:"size:64;uniqueIndex:idx_delivery"`
	CreatedAt      time.Time
}
