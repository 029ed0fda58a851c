package engine

import (
	"sort"
	"strconv"

	"github.com/zulandar/switchyard/internal/convention"
	"github.com/zulandar/switchyard/internal/github"
	"github.com/zulandar/switchyard/internal/models"
)

// localFromRemote maps a raw remote issue into the local model through the
// installation's conventions: labels become type/priority/status, body
// patterns become dependency edges and the parent link. Remote issue
// numbers in references are translated to local IDs through the mapping
// store; references to unmapped issues are dropped (the edge appears once
// its target has been paired).
func (e *Engine) localFromRemote(rt *runtime, remote *github.RemoteIssue, localID string) *models.Issue {
	mapped := rt.conv.MapLabels(remote.Labels, remote.State)
	parsed := rt.conv.ParseBody(remote.Body)

	issue := &models.Issue{
		ID:        localID,
		Title:     remote.Title,
		Body:      remote.Body,
		Status:    mapped.Status,
		Type:      mapped.Type,
		Priority:  mapped.Priority,
		Labels:    mapped.Remaining,
		Assignees: remote.Assignees,
		UpdatedAt: remote.UpdatedAt,
		CreatedAt: remote.CreatedAt,
		ClosedAt:  remote.ClosedAt,
		DependsOn: e.translateRefs(rt.inst.ID, parsed.DependsOn),
		Blocks:    e.translateRefs(rt.inst.ID, parsed.Blocks),
	}
	if remote.HTMLURL != "" {
		url := remote.HTMLURL
		issue.ExternalRef = &url
	}
	if parsed.Parent != "" {
		if parent := e.translateParent(rt.inst.ID, parsed.Parent); parent != "" {
			issue.ParentID = &parent
		}
	}
	return issue
}

// translateRefs converts remote issue numbers to local IDs via the
// mapping store, dropping refs with no mapping yet.
func (e *Engine) translateRefs(installationID uint, refs []string) []string {
	var out []string
	for _, ref := range refs {
		number, err := strconv.Atoi(ref)
		if err != nil {
			continue
		}
		m, err := e.store.MappingByRemoteNumber(installationID, number)
		if err != nil {
			continue
		}
		out = append(out, m.LocalID)
	}
	return out
}

// translateParent resolves a parent reference: a numeric reference goes
// through the mapping store, anything else is taken as a local ID only if
// that issue exists.
func (e *Engine) translateParent(installationID uint, ref string) string {
	if number, err := strconv.Atoi(ref); err == nil {
		m, err := e.store.MappingByRemoteNumber(installationID, number)
		if err != nil {
			return ""
		}
		return m.LocalID
	}
	if _, err := e.tracker.Get(ref); err != nil {
		return ""
	}
	return ref
}

// remoteLabelsFor renders an issue's type, priority, and status back into
// convention labels plus the preserved remainder. Label selection is
// deterministic: among convention labels mapping to the same value, the
// one equal to the value wins, then the lexicographically smallest.
func remoteLabelsFor(conv *convention.Config, issue *models.Issue) []string {
	labels := append([]string(nil), issue.Labels...)
	if l := canonicalTypeLabel(conv, issue.Type); l != "" {
		labels = append(labels, l)
	}
	if l := canonicalPriorityLabel(conv, issue.Priority); l != "" {
		labels = append(labels, l)
	}
	if issue.Status == models.StatusInProgress && conv.InProgressLabel != "" {
		labels = append(labels, conv.InProgressLabel)
	}
	return labels
}

func canonicalTypeLabel(conv *convention.Config, typ string) string {
	if _, ok := conv.TypeLabels[typ]; ok && conv.TypeLabels[typ] == typ {
		return typ
	}
	var candidates []string
	for label, t := range conv.TypeLabels {
		if t == typ {
			candidates = append(candidates, label)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Strings(candidates)
	return candidates[0]
}

func canonicalPriorityLabel(conv *convention.Config, priority int) string {
	var candidates []string
	for label, p := range conv.PriorityLabels {
		if p == priority {
			candidates = append(candidates, label)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Strings(candidates)
	return candidates[0]
}

// updateRequestFor builds the remote write that makes the remote copy
// match the merged record. Dependency text is not synthesized into the
// body; the body travels as the merged record carries it.
func updateRequestFor(conv *convention.Config, merged *models.Issue) github.UpdateRequest {
	state := "open"
	if merged.Status == models.StatusClosed {
		state = "closed"
	}
	labels := remoteLabelsFor(conv, merged)
	title := merged.Title
	body := merged.Body
	return github.UpdateRequest{
		Title:  &title,
		Body:   &body,
		State:  &state,
		Labels: &labels,
	}
}

// createRequestFor builds the remote create for a local-only issue.
func createRequestFor(conv *convention.Config, issue *models.Issue) github.CreateRequest {
	return github.CreateRequest{
		Title:     issue.Title,
		Body:      issue.Body,
		Labels:    remoteLabelsFor(conv, issue),
		Assignees: issue.Assignees,
	}
}

// strategyFor reads the installation's conflict strategy.
func strategyFor(inst *models.Installation) string {
	if inst.Strategy == "" {
		return "newest-wins"
	}
	return inst.Strategy
}

// wantsCreate reports whether CreateMissing allows creating on the given
// side ("local" or "remote").
func wantsCreate(inst *models.Installation, side string) bool {
	switch inst.CreateMissing {
	case "both":
		return true
	case "none":
		return false
	default:
		return inst.CreateMissing == side
	}
}
