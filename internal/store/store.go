// Package store persists issue mappings, sync cursors, and webhook
// delivery records. These rows encode idempotency and conflict history,
// so they are durable, never cached-only.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/switchyard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrVersionConflict is returned when an optimistic mapping write lost a
// race; the caller re-reads the row and retries its reconciliation.
var ErrVersionConflict = errors.New("store: mapping version conflict")

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps the database for reconciliation state.
type Store struct {
	db *gorm.DB
}

// New creates a Store.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// InstallationByRepo returns the active installation for owner/repo.
func (s *Store) InstallationByRepo(owner, repo string) (*models.Installation, error) {
	var inst models.Installation
	err := s.db.Where("owner = ? AND repo = ? AND active = ?", owner, repo, true).First(&inst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("store: installation %s/%s: %w", owner, repo, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: installation %s/%s: %w", owner, repo, err)
	}
	return &inst, nil
}

// ActiveInstallations lists all active installations.
func (s *Store) ActiveInstallations() ([]models.Installation, error) {
	var installs []models.Installation
	if err := s.db.Where("active = ?", true).Order("id").Find(&installs).Error; err != nil {
		return nil, fmt.Errorf("store: list installations: %w", err)
	}
	return installs, nil
}

// MappingByLocalID returns the mapping for a local issue ID.
func (s *Store) MappingByLocalID(installationID uint, localID string) (*models.IssueMapping, error) {
	return s.mapping("installation_id = ? AND local_id = ?", installationID, localID)
}

// MappingByRemoteNumber returns the mapping for a remote issue number.
func (s *Store) MappingByRemoteNumber(installationID uint, number int) (*models.IssueMapping, error) {
	return s.mapping("installation_id = ? AND remote_number = ?", installationID, number)
}

func (s *Store) mapping(query string, args ...interface{}) (*models.IssueMapping, error) {
	var m models.IssueMapping
	err := s.db.Where(query, args...).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load mapping: %w", err)
	}
	return &m, nil
}

// ListMappings returns all mappings for an installation.
func (s *Store) ListMappings(installationID uint) ([]models.IssueMapping, error) {
	var out []models.IssueMapping
	if err := s.db.Where("installation_id = ?", installationID).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list mappings: %w", err)
	}
	return out, nil
}

// CreateMapping inserts a new correlation row. The unique indexes enforce
// the 1:1 invariant; a duplicate on either key is surfaced, never guessed
// around.
func (s *Store) CreateMapping(m *models.IssueMapping) error {
	if err := s.db.Create(m).Error; err != nil {
		return fmt.Errorf("store: create mapping local=%s remote=#%d: %w", m.LocalID, m.RemoteNumber, err)
	}
	return nil
}

// MarkSynced advances the mapping's sync snapshots after a successful
// reconciliation. The write is optimistic: it only succeeds if the row
// version still matches the one the caller read, so concurrent
// reconciliations of the same issue cannot interleave.
func (s *Store) MarkSynced(m *models.IssueMapping, localUpdatedAt, remoteUpdatedAt, at time.Time) error {
	result := s.db.Model(&models.IssueMapping{}).
		Where("id = ? AND version = ?", m.ID, m.Version).
		Updates(map[string]interface{}{
			"last_synced_at":            at,
			"local_updated_at_at_sync":  localUpdatedAt,
			"remote_updated_at_at_sync": remoteUpdatedAt,
			"version":                   m.Version + 1,
		})
	if result.Error != nil {
		return fmt.Errorf("store: mark synced local=%s: %w", m.LocalID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}
	m.Version++
	m.LastSyncedAt = at
	m.LocalUpdatedAtAtSync = localUpdatedAt
	m.RemoteUpdatedAtAtSync = remoteUpdatedAt
	return nil
}

// State returns the sync state for an installation.
func (s *Store) State(installationID uint) (*models.SyncState, error) {
	var st models.SyncState
	err := s.db.Where("installation_id = ?", installationID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load sync state %d: %w", installationID, err)
	}
	return &st, nil
}

// BeginSync transitions the installation to syncing. Valid from idle or
// error; a concurrent pass already syncing is reported so callers skip
// rather than overlap full passes.
func (s *Store) BeginSync(installationID uint) error {
	result := s.db.Model(&models.SyncState{}).
		Where("installation_id = ? AND sync_status IN ?", installationID, []string{models.SyncIdle, models.SyncError}).
		Update("sync_status", models.SyncSyncing)
	if result.Error != nil {
		return fmt.Errorf("store: begin sync %d: %w", installationID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: begin sync %d: already syncing", installationID)
	}
	return nil
}

// FinishSync records a successful pass: back to idle, error counters
// cleared, last-sync cursor advanced.
func (s *Store) FinishSync(installationID uint, at time.Time) error {
	err := s.db.Model(&models.SyncState{}).
		Where("installation_id = ?", installationID).
		Updates(map[string]interface{}{
			"sync_status":   models.SyncIdle,
			"error_count":   0,
			"error_message": "",
			"last_sync_at":  at,
		}).Error
	if err != nil {
		return fmt.Errorf("store: finish sync %d: %w", installationID, err)
	}
	return nil
}

// FailSync records a failed pass: status error, counter incremented, the
// message kept for status consumers. The pending work is not lost; the
// divergent updatedAt timestamps re-surface it on the next pass.
func (s *Store) FailSync(installationID uint, msg string) error {
	err := s.db.Model(&models.SyncState{}).
		Where("installation_id = ?", installationID).
		Updates(map[string]interface{}{
			"sync_status":   models.SyncError,
			"error_count":   gorm.Expr("error_count + 1"),
			"error_message": msg,
		}).Error
	if err != nil {
		return fmt.Errorf("store: fail sync %d: %w", installationID, err)
	}
	return nil
}

// ResumeAfterError moves an errored installation back to idle so the next
// trigger retries it.
func (s *Store) ResumeAfterError(installationID uint) error {
	err := s.db.Model(&models.SyncState{}).
		Where("installation_id = ? AND sync_status = ?", installationID, models.SyncError).
		Update("sync_status", models.SyncIdle).Error
	if err != nil {
		return fmt.Errorf("store: resume %d: %w", installationID, err)
	}
	return nil
}

// MarkDelivery records a webhook delivery ID. Returns true when the
// delivery was already processed, which makes redelivery a no-op.
func (s *Store) MarkDelivery(installationID uint, deliveryID string) (alreadyProcessed bool, err error) {
	rec := models.ProcessedDelivery{
		InstallationID: installationID,
		DeliveryID:     deliveryID,
	}
	result := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if result.Error != nil {
		return false, fmt.Errorf("store: mark delivery %s: %w", deliveryID, result.Error)
	}
	if result.RowsAffected == 0 {
		return true, nil
	}
	err = s.db.Model(&models.SyncState{}).
		Where("installation_id = ?", installationID).
		Update("last_event_id", deliveryID).Error
	if err != nil {
		return false, fmt.Errorf("store: record last event %s: %w", deliveryID, err)
	}
	return false, nil
}

// ClearDelivery removes a recorded delivery ID so a redelivery is
// processed instead of acknowledged as a replay. Used when applying a
// claimed delivery fails.
func (s *Store) ClearDelivery(installationID uint, deliveryID string) error {
	err := s.db.Where("installation_id = ? AND delivery_id = ?", installationID, deliveryID).
		Delete(&models.ProcessedDelivery{}).Error
	if err != nil {
		return fmt.Errorf("store: clear delivery %s: %w", deliveryID, err)
	}
	return nil
}

// SetMirrorHash stores the mirror directory fingerprint from the last scan.
func (s *Store) SetMirrorHash(installationID uint, hash string) error {
	err := s.db.Model(&models.SyncState{}).
		Where("installation_id = ?", installationID).
		Update("last_mirror_hash", hash).Error
	if err != nil {
		return fmt.Errorf("store: set mirror hash %d: %w", installationID, err)
	}
	return nil
}
