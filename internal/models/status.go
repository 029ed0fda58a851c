package models

import "strings"

// Canonical issue statuses.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusClosed     = "closed"
)

// Canonical issue types.
const (
	TypeBug     = "bug"
	TypeFeature = "feature"
	TypeTask    = "task"
	TypeEpic    = "epic"
	TypeChore   = "chore"
)

// Priority bounds. 0 is critical, 4 is backlog.
const (
	PriorityCritical = 0
	PriorityDefault  = 2
	PriorityBacklog  = 4
)

// statusAliases maps accepted spellings to canonical statuses. Mirror files
// written by other tools use done/completed for closed and a hyphenated
// in-progress.
var statusAliases = map[string]string{
	"open":        StatusOpen,
	"in_progress": StatusInProgress,
	"in-progress": StatusInProgress,
	"closed":      StatusClosed,
	"done":        StatusClosed,
	"completed":   StatusClosed,
}

// NormalizeStatus resolves a status alias to its canonical form. The second
// return is false when the input matches no known status.
func NormalizeStatus(s string) (string, bool) {
	canonical, ok := statusAliases[strings.ToLower(strings.TrimSpace(s))]
	return canonical, ok
}

// ValidType reports whether t is one of the canonical issue types.
func ValidType(t string) bool {
	switch t {
	case TypeBug, TypeFeature, TypeTask, TypeEpic, TypeChore:
		return true
	}
	return false
}

// ClampPriority forces p into the 0-4 range.
func ClampPriority(p int) int {
	if p < PriorityCritical {
		return PriorityCritical
	}
	if p > PriorityBacklog {
		return PriorityBacklog
	}
	return p
}
