package models

import "time"

// Issue is one logical work item, mirrored across the local tracker,
// the markdown mirror, and the remote tracker.
type Issue struct {
	ID        string   `gorm:"primaryKey;size:64"`
	Title     string   `gorm:"not null"`
	Body      string   `gorm:"type:text"`
	Status    string   `gorm:"size:16;default:open;index"`
	Type      string   `gorm:"size:16;default:task"`
	Priority  int      `gorm:"default:2"`
	Labels    []string `gorm:"serializer:json"`
	Assignees []string `gorm:"serializer:json"`
	ParentID  *string  `gorm:"size:64"`

	// ExternalRef is the remote-side URL when the issue has a remote
	// counterpart. The authoritative correlation lives in IssueMapping.
	ExternalRef *string `gorm:"type:text"`

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ClosedAt    *time.Time
	CloseReason string `gorm:"type:text"`

	// DependsOn and Blocks are assembled from IssueDep rows by the
	// tracker; they are not columns. Order is first-occurrence order.
	DependsOn []string `gorm:"-"`
	Blocks    []string `gorm:"-"`

	Parent   *Issue     `gorm:"foreignKey:ParentID"`
	Children []Issue    `gorm:"foreignKey:ParentID"`
	Deps     []IssueDep `gorm:"foreignKey:IssueID"`
}

// IssueDep is one directed dependency edge: IssueID depends on DependsOnID,
// equivalently DependsOnID blocks IssueID. The tracker keeps the two views
// symmetric; callers never write edges directly.
type IssueDep struct {
	IssueID     string `gorm:"primaryKey;size:64"`
	DependsOnID string `gorm:"primaryKey;size:64"`

	Issue     Issue `gorm:"foreignKey:IssueID"`
	DependsOn Issue `gorm:"foreignKey:DependsOnID"`

	CreatedAt time.Time
}

// HasLabel reports whether the issue carries the given label.
func (i *Issue) HasLabel(label string) bool {
	for _, l := range i.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Closed reports whether the issue is in the closed status.
func (i *Issue) Closed() bool {
	return i.Status == StatusClosed
}
