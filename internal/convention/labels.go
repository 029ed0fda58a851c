package convention

import "github.com/zulandar/switchyard/internal/models"

// MapResult is the outcome of mapping a remote label set.
type MapResult struct {
	Type      string
	Priority  int
	Status    string
	Remaining []string
}

// MapLabels maps a remote label set plus the remote open/closed state to
// the internal type/priority/status triple. Labels the conventions do not
// consume are returned in Remaining (input order, empty strings dropped)
// so a later write back to the remote side does not destroy them.
//
// Pure and deterministic: same inputs always yield the same result.
func (c *Config) MapLabels(labels []string, remoteState string) MapResult {
	res := MapResult{
		Type:     models.TypeTask,
		Priority: models.PriorityDefault,
	}

	typeSet := false
	prioritySet := false
	inProgress := false
	consumed := make([]bool, len(labels))

	for i, label := range labels {
		if label == "" {
			consumed[i] = true
			continue
		}
		if t, ok := c.TypeLabels[label]; ok {
			// First matching label wins; later type labels are still
			// consumed so they do not leak into Remaining.
			if !typeSet {
				res.Type = t
				typeSet = true
			}
			consumed[i] = true
			continue
		}
		if p, ok := c.PriorityLabels[label]; ok {
			if !prioritySet || p < res.Priority {
				res.Priority = p
				prioritySet = true
			}
			consumed[i] = true
			continue
		}
		if label == c.InProgressLabel {
			inProgress = true
			consumed[i] = true
		}
	}

	// A closed remote state overrides everything, including in-progress.
	switch {
	case remoteState == "closed":
		res.Status = models.StatusClosed
	case inProgress:
		res.Status = models.StatusInProgress
	default:
		res.Status = models.StatusOpen
	}

	for i, label := range labels {
		if !consumed[i] {
			res.Remaining = append(res.Remaining, label)
		}
	}
	return res
}
