// Package tracker is the local graph-structured issue store. Dependency
// edges are stored once (issue depends-on blocker) and the dependsOn and
// blocks views are assembled from them, so the symmetry invariant holds
// by construction: if A depends on B, B blocks A.
package tracker

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/zulandar/switchyard/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when an issue does not exist.
var ErrNotFound = errors.New("tracker: issue not found")

// Tracker queries and mutates local issues.
type Tracker struct {
	db *gorm.DB
}

// New creates a Tracker.
func New(db *gorm.DB) *Tracker {
	return &Tracker{db: db}
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status   string
	Type     string
	Priority *int
	Label    string
}

// Get loads one issue with both dependency views populated.
func (t *Tracker) Get(id string) (*models.Issue, error) {
	var issue models.Issue
	err := t.db.First(&issue, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tracker: get %s: %w", id, err)
	}
	if err := t.loadEdges(&issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// List returns issues matching the filter, edges populated, ordered by ID.
func (t *Tracker) List(f Filter) ([]*models.Issue, error) {
	q := t.db.Model(&models.Issue{}).Order("id")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Priority != nil {
		q = q.Where("priority = ?", *f.Priority)
	}

	var issues []*models.Issue
	if err := q.Find(&issues).Error; err != nil {
		return nil, fmt.Errorf("tracker: list: %w", err)
	}
	if f.Label != "" {
		filtered := issues[:0]
		for _, issue := range issues {
			if issue.HasLabel(f.Label) {
				filtered = append(filtered, issue)
			}
		}
		issues = filtered
	}
	for _, issue := range issues {
		if err := t.loadEdges(issue); err != nil {
			return nil, err
		}
	}
	return issues, nil
}

// Ready returns open issues with no open blockers.
func (t *Tracker) Ready() ([]*models.Issue, error) {
	return t.byBlockerState(false)
}

// Blocked returns non-closed issues with at least one open blocker.
func (t *Tracker) Blocked() ([]*models.Issue, error) {
	return t.byBlockerState(true)
}

func (t *Tracker) byBlockerState(blocked bool) ([]*models.Issue, error) {
	sub := t.db.Model(&models.IssueDep{}).
		Select("issue_deps.issue_id").
		Joins("JOIN issues AS blockers ON blockers.id = issue_deps.depends_on_id").
		Where("blockers.status <> ?", models.StatusClosed)

	q := t.db.Model(&models.Issue{}).Order("id")
	if blocked {
		q = q.Where("status <> ?", models.StatusClosed).Where("id IN (?)", sub)
	} else {
		q = q.Where("status = ?", models.StatusOpen).Where("id NOT IN (?)", sub)
	}

	var issues []*models.Issue
	if err := q.Find(&issues).Error; err != nil {
		return nil, fmt.Errorf("tracker: blocker query: %w", err)
	}
	for _, issue := range issues {
		if err := t.loadEdges(issue); err != nil {
			return nil, err
		}
	}
	return issues, nil
}

// Create inserts a new issue and its dependency edges. An empty ID gets
// the next free one for the given prefix.
func (t *Tracker) Create(issue *models.Issue, idPrefix string) error {
	return t.db.Transaction(func(tx *gorm.DB) error {
		if issue.ID == "" {
			id, err := nextID(tx, idPrefix)
			if err != nil {
				return err
			}
			issue.ID = id
		}
		if issue.Status == "" {
			issue.Status = models.StatusOpen
		}
		if issue.Type == "" {
			issue.Type = models.TypeTask
		}
		if err := tx.Create(issue).Error; err != nil {
			return fmt.Errorf("tracker: create %s: %w", issue.ID, err)
		}
		return syncEdges(tx, issue)
	})
}

// Update overwrites an issue's managed fields and reconciles its
// dependency edges to match the DependsOn/Blocks views on upd. UpdatedAt
// is bumped by the store, which is what marks the local side as changed.
func (t *Tracker) Update(id string, upd *models.Issue) error {
	return t.db.Transaction(func(tx *gorm.DB) error {
		var existing models.Issue
		err := tx.First(&existing, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("tracker: load %s: %w", id, err)
		}

		fields := map[string]interface{}{
			"title":     upd.Title,
			"body":      upd.Body,
			"status":    upd.Status,
			"type":      upd.Type,
			"priority":  models.ClampPriority(upd.Priority),
			"labels":    upd.Labels,
			"assignees": upd.Assignees,
			"parent_id": upd.ParentID,
		}
		if upd.ExternalRef != nil {
			fields["external_ref"] = upd.ExternalRef
		}
		if upd.Status == models.StatusClosed && existing.Status != models.StatusClosed {
			closedAt := upd.ClosedAt
			if closedAt == nil {
				now := time.Now().UTC()
				closedAt = &now
			}
			fields["closed_at"] = closedAt
		}
		if upd.Status != models.StatusClosed {
			fields["closed_at"] = nil
		}

		if err := tx.Model(&models.Issue{}).Where("id = ?", id).Updates(fields).Error; err != nil {
			return fmt.Errorf("tracker: update %s: %w", id, err)
		}

		target := *upd
		target.ID = id
		return syncEdges(tx, &target)
	})
}

// Close marks an issue closed with an optional reason.
func (t *Tracker) Close(id, reason string) error {
	now := time.Now().UTC()
	result := t.db.Model(&models.Issue{}).
		Where("id = ? AND status <> ?", id, models.StatusClosed).
		Updates(map[string]interface{}{
			"status":       models.StatusClosed,
			"closed_at":    now,
			"close_reason": reason,
		})
	if result.Error != nil {
		return fmt.Errorf("tracker: close %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		// Either missing or already closed; distinguish for the caller.
		var count int64
		t.db.Model(&models.Issue{}).Where("id = ?", id).Count(&count)
		if count == 0 {
			return ErrNotFound
		}
	}
	return nil
}

// Touch bumps an issue's UpdatedAt without changing content, used when a
// mirror edit carried no field changes but must still advance the local
// change cursor.
func (t *Tracker) Touch(id string, at time.Time) error {
	err := t.db.Model(&models.Issue{}).Where("id = ?", id).Update("updated_at", at).Error
	if err != nil {
		return fmt.Errorf("tracker: touch %s: %w", id, err)
	}
	return nil
}

// loadEdges fills DependsOn and Blocks from the edge table, ordered by
// edge creation so reconciliation sees a stable order.
func (t *Tracker) loadEdges(issue *models.Issue) error {
	var deps []models.IssueDep
	if err := t.db.Where("issue_id = ?", issue.ID).Order("created_at, depends_on_id").Find(&deps).Error; err != nil {
		return fmt.Errorf("tracker: load deps for %s: %w", issue.ID, err)
	}
	issue.DependsOn = issue.DependsOn[:0]
	for _, d := range deps {
		issue.DependsOn = append(issue.DependsOn, d.DependsOnID)
	}

	var blockers []models.IssueDep
	if err := t.db.Where("depends_on_id = ?", issue.ID).Order("created_at, issue_id").Find(&blockers).Error; err != nil {
		return fmt.Errorf("tracker: load blocks for %s: %w", issue.ID, err)
	}
	issue.Blocks = issue.Blocks[:0]
	for _, d := range blockers {
		issue.Blocks = append(issue.Blocks, d.IssueID)
	}
	return nil
}

// syncEdges makes the edge table match the issue's DependsOn and Blocks
// views. A Blocks entry becomes the reciprocal depends-on edge on the
// referenced issue; edges to unknown local issues are skipped, not
// invented.
func syncEdges(tx *gorm.DB, issue *models.Issue) error {
	want := make(map[string]bool, len(issue.DependsOn))
	for _, dep := range issue.DependsOn {
		if dep != "" && dep != issue.ID {
			want[dep] = true
		}
	}

	var current []models.IssueDep
	if err := tx.Where("issue_id = ?", issue.ID).Find(&current).Error; err != nil {
		return fmt.Errorf("tracker: load edges for %s: %w", issue.ID, err)
	}
	have := make(map[string]bool, len(current))
	for _, d := range current {
		have[d.DependsOnID] = true
		if !want[d.DependsOnID] {
			if err := tx.Delete(&models.IssueDep{}, "issue_id = ? AND depends_on_id = ?", issue.ID, d.DependsOnID).Error; err != nil {
				return fmt.Errorf("tracker: drop edge %s->%s: %w", issue.ID, d.DependsOnID, err)
			}
		}
	}
	for dep := range want {
		if !have[dep] {
			if err := addEdge(tx, issue.ID, dep); err != nil {
				return err
			}
		}
	}

	for _, blocked := range issue.Blocks {
		if blocked == "" || blocked == issue.ID {
			continue
		}
		if err := addEdge(tx, blocked, issue.ID); err != nil {
			return err
		}
	}
	return nil
}

// addEdge inserts dependent->blocker if both issues exist locally and the
// edge is absent.
func addEdge(tx *gorm.DB, dependent, blocker string) error {
	var count int64
	if err := tx.Model(&models.Issue{}).Where("id IN ?", []string{dependent, blocker}).Count(&count).Error; err != nil {
		return fmt.Errorf("tracker: check edge endpoints: %w", err)
	}
	if count != 2 {
		return nil
	}
	var existing int64
	if err := tx.Model(&models.IssueDep{}).
		Where("issue_id = ? AND depends_on_id = ?", dependent, blocker).
		Count(&existing).Error; err != nil {
		return fmt.Errorf("tracker: check edge: %w", err)
	}
	if existing > 0 {
		return nil
	}
	edge := models.IssueDep{IssueID: dependent, DependsOnID: blocker}
	if err := tx.Create(&edge).Error; err != nil {
		return fmt.Errorf("tracker: add edge %s->%s: %w", dependent, blocker, err)
	}
	return nil
}

var idSuffixRe = regexp.MustCompile(`-(\d+)$`)

// nextID returns "<prefix>-<n>" where n is one past the highest existing
// numeric suffix for that prefix.
func nextID(tx *gorm.DB, prefix string) (string, error) {
	if prefix == "" {
		prefix = "issue"
	}
	var ids []string
	if err := tx.Model(&models.Issue{}).
		Where("id LIKE ?", prefix+"-%").
		Pluck("id", &ids).Error; err != nil {
		return "", fmt.Errorf("tracker: next id for %s: %w", prefix, err)
	}
	max := 0
	for _, id := range ids {
		if m := idSuffixRe.FindStringSubmatch(id); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > max {
				max = n
			}
		}
	}
	return fmt.Sprintf("%s-%d", prefix, max+1), nil
}
