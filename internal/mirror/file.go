// Package mirror reads and writes the flat-file markdown mirror: one
// YAML-frontmatter file per issue, editable by hand, watched for changes
// and fed back into reconciliation.
package mirror

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/switchyard/internal/models"
	"gopkg.in/yaml.v3"
)

const delimiter = "---"

// frontmatter is the YAML header of a mirror file. State aliases are
// accepted on read and normalized; the canonical form is written.
type frontmatter struct {
	ID          string     `yaml:"id"`
	Title       string     `yaml:"title"`
	State       string     `yaml:"state"`
	Type        string     `yaml:"type,omitempty"`
	Priority    *int       `yaml:"priority,omitempty"`
	Assignee    []string   `yaml:"assignee,omitempty"`
	Labels      []string   `yaml:"labels,omitempty"`
	DependsOn   []string   `yaml:"dependsOn,omitempty"`
	Blocks      []string   `yaml:"blocks,omitempty"`
	Parent      string     `yaml:"parent,omitempty"`
	ExternalRef string     `yaml:"externalRef,omitempty"`
	CreatedAt   *time.Time `yaml:"createdAt,omitempty"`
	UpdatedAt   *time.Time `yaml:"updatedAt,omitempty"`
	ClosedAt    *time.Time `yaml:"closedAt,omitempty"`
}

// Render serializes an issue as a frontmatter markdown document.
func Render(issue *models.Issue) ([]byte, error) {
	fm := frontmatter{
		ID:        issue.ID,
		Title:     issue.Title,
		State:     issue.Status,
		Type:      issue.Type,
		Assignee:  issue.Assignees,
		Labels:    issue.Labels,
		DependsOn: issue.DependsOn,
		Blocks:    issue.Blocks,
		ClosedAt:  issue.ClosedAt,
	}
	p := issue.Priority
	fm.Priority = &p
	if issue.ParentID != nil {
		fm.Parent = *issue.ParentID
	}
	if issue.ExternalRef != nil {
		fm.ExternalRef = *issue.ExternalRef
	}
	if !issue.CreatedAt.IsZero() {
		t := issue.CreatedAt
		fm.CreatedAt = &t
	}
	if !issue.UpdatedAt.IsZero() {
		t := issue.UpdatedAt
		fm.UpdatedAt = &t
	}

	head, err := yaml.Marshal(&fm)
	if err != nil {
		return nil, fmt.Errorf("mirror: render %s: %w", issue.ID, err)
	}

	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")
	buf.Write(head)
	buf.WriteString(delimiter + "\n")
	if issue.Body != "" {
		buf.WriteString("\n")
		buf.WriteString(issue.Body)
		if !strings.HasSuffix(issue.Body, "\n") {
			buf.WriteString("\n")
		}
	}
	return buf.Bytes(), nil
}

// Parse reads a frontmatter markdown document back into an issue. The
// state field accepts the read aliases (done, completed, in_progress)
// and normalizes them to the canonical statuses.
func Parse(data []byte) (*models.Issue, error) {
	head, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	var fm frontmatter
	if err := yaml.Unmarshal(head, &fm); err != nil {
		return nil, fmt.Errorf("mirror: parse frontmatter: %w", err)
	}
	if fm.ID == "" {
		return nil, fmt.Errorf("mirror: frontmatter missing id")
	}

	status, ok := models.NormalizeStatus(fm.State)
	if !ok {
		return nil, fmt.Errorf("mirror: %s: unknown state %q", fm.ID, fm.State)
	}

	issue := &models.Issue{
		ID:        fm.ID,
		Title:     fm.Title,
		Body:      strings.TrimPrefix(string(body), "\n"),
		Status:    status,
		Type:      fm.Type,
		Priority:  models.PriorityDefault,
		Assignees: fm.Assignee,
		Labels:    fm.Labels,
		DependsOn: fm.DependsOn,
		Blocks:    fm.Blocks,
		ClosedAt:  fm.ClosedAt,
	}
	if fm.Priority != nil {
		issue.Priority = models.ClampPriority(*fm.Priority)
	}
	if issue.Type == "" {
		issue.Type = models.TypeTask
	} else if !models.ValidType(issue.Type) {
		return nil, fmt.Errorf("mirror: %s: unknown type %q", fm.ID, fm.Type)
	}
	if fm.Parent != "" {
		parent := fm.Parent
		issue.ParentID = &parent
	}
	if fm.ExternalRef != "" {
		ref := fm.ExternalRef
		issue.ExternalRef = &ref
	}
	if fm.CreatedAt != nil {
		issue.CreatedAt = *fm.CreatedAt
	}
	if fm.UpdatedAt != nil {
		issue.UpdatedAt = *fm.UpdatedAt
	}
	return issue, nil
}

// splitFrontmatter separates the YAML header from the markdown body.
func splitFrontmatter(data []byte) (head, body []byte, err error) {
	text := string(data)
	if !strings.HasPrefix(text, delimiter+"\n") && text != delimiter {
		return nil, nil, fmt.Errorf("mirror: no frontmatter delimiter")
	}
	rest := strings.TrimPrefix(text, delimiter+"\n")
	if strings.HasPrefix(rest, delimiter) {
		// Empty header.
		return nil, []byte(trimDelimiterTail(strings.TrimPrefix(rest, delimiter))), nil
	}
	idx := strings.Index(rest, "\n"+delimiter)
	if idx < 0 {
		return nil, nil, fmt.Errorf("mirror: unterminated frontmatter")
	}
	head = []byte(rest[:idx+1])
	body = []byte(trimDelimiterTail(rest[idx+1+len(delimiter):]))
	return head, body, nil
}

func trimDelimiterTail(s string) string {
	return strings.TrimPrefix(s, "\n")
}
