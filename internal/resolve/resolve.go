// Package resolve merges two divergent copies of one logical issue into a
// single record plus the writes each side needs to converge. It is pure:
// no I/O, deterministic for identical inputs.
package resolve

import (
	"github.com/zulandar/switchyard/internal/models"
)

// Strategy picks the winner when both sides changed since the last sync.
type Strategy string

const (
	LocalWins  Strategy = "local-wins"
	RemoteWins Strategy = "remote-wins"
	NewestWins Strategy = "newest-wins"
)

// Result is the outcome of resolving one issue pair. Merged is the
// converged record; LocalWrite and RemoteWrite say which side must be
// updated to match it. The caller updates the mapping snapshots only after
// every required write succeeds.
type Result struct {
	Merged      models.Issue
	LocalWrite  bool
	RemoteWrite bool
}

// Resolve reconciles the local and remote copies of one logical issue.
// Both inputs describe the same issue (same logical ID); the remote copy
// has already been converted through convention mapping.
//
// The merge is whole-record: the winning side's full field set is taken
// as-is, except that dependency edges are always unioned (losing an edge
// silently is worse than a duplicate) and a remote closed state always
// sticks (an issue closed upstream is never reopened by reconciliation).
func Resolve(local, remote *models.Issue, mapping *models.IssueMapping, strategy Strategy) Result {
	localChanged := local.UpdatedAt.After(mapping.LocalUpdatedAtAtSync)
	remoteChanged := remote.UpdatedAt.After(mapping.RemoteUpdatedAtAtSync)

	var winner, loser *models.Issue
	switch {
	case !localChanged && !remoteChanged:
		winner, loser = local, remote
	case localChanged && !remoteChanged:
		winner, loser = local, remote
	case remoteChanged && !localChanged:
		winner, loser = remote, local
	default:
		// True conflict: both sides changed since the last sync.
		switch strategy {
		case LocalWins:
			winner, loser = local, remote
		case RemoteWins:
			winner, loser = remote, local
		default: // NewestWins; ties go to the local side.
			if remote.UpdatedAt.After(local.UpdatedAt) {
				winner, loser = remote, local
			} else {
				winner, loser = local, remote
			}
		}
	}

	res := Result{Merged: clone(winner)}

	// Dependency edges survive from both sides regardless of winner.
	res.Merged.DependsOn = unionOrdered(winner.DependsOn, loser.DependsOn)
	res.Merged.Blocks = unionOrdered(winner.Blocks, loser.Blocks)

	// Closing ratchet: remote closed always propagates. The local side
	// closing the remote rides along with an ordinary remote write; it
	// never forces one on its own.
	if remote.Closed() && !res.Merged.Closed() {
		res.Merged.Status = models.StatusClosed
		res.Merged.ClosedAt = remote.ClosedAt
	}

	res.LocalWrite = !Equivalent(&res.Merged, local)
	res.RemoteWrite = !Equivalent(&res.Merged, remote)
	return res
}

// clone copies the fields reconciliation manages. Slices are copied so the
// merged record never aliases an input.
func clone(src *models.Issue) models.Issue {
	dst := *src
	dst.Labels = append([]string(nil), src.Labels...)
	dst.Assignees = append([]string(nil), src.Assignees...)
	dst.DependsOn = append([]string(nil), src.DependsOn...)
	dst.Blocks = append([]string(nil), src.Blocks...)
	return dst
}

// unionOrdered merges two ID lists, deduplicated, preserving the order of
// first occurrence with the winner's entries first.
func unionOrdered(winner, loser []string) []string {
	seen := make(map[string]bool, len(winner)+len(loser))
	var out []string
	for _, lists := range [][]string{winner, loser} {
		for _, id := range lists {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// Equivalent reports whether two copies of an issue match in every field
// reconciliation manages. Timestamps are excluded: they describe when a
// side changed, not what it says.
func Equivalent(a, b *models.Issue) bool {
	if a.Title != b.Title ||
		a.Body != b.Body ||
		a.Status != b.Status ||
		a.Type != b.Type ||
		a.Priority != b.Priority {
		return false
	}
	if !sameSet(a.Labels, b.Labels) || !sameSet(a.Assignees, b.Assignees) {
		return false
	}
	if !sameSet(a.DependsOn, b.DependsOn) || !sameSet(a.Blocks, b.Blocks) {
		return false
	}
	return strPtrEq(a.ParentID, b.ParentID)
}

// sameSet compares two string slices as sets; insertion order and
// duplicates are irrelevant.
func sameSet(a, b []string) bool {
	as := make(map[string]bool, len(a))
	for _, s := range a {
		as[s] = true
	}
	bs := make(map[string]bool, len(b))
	for _, s := range b {
		bs[s] = true
	}
	if len(as) != len(bs) {
		return false
	}
	for s := range as {
		if !bs[s] {
			return false
		}
	}
	return true
}

func strPtrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
