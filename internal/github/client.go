// Package github wraps the GitHub Issues API for one installation's
// repository. All calls are keyed by the (owner, repo) the client was
// built for plus an issue number.
package github

import (
	"context"
	"fmt"
	"time"

	gh "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// RemoteIssue is the engine's view of one remote issue: the raw fields a
// webhook payload or API response carries, before convention mapping.
type RemoteIssue struct {
	Number    int
	Title     string
	Body      string
	State     string // "open" or "closed"
	Labels    []string
	Assignees []string
	HTMLURL   string
	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
}

// Client talks to the GitHub Issues API for a single repository.
type Client struct {
	gh    *gh.Client
	owner string
	repo  string
}

// NewClient builds a Client authenticated with a static token.
func NewClient(ctx context.Context, owner, repo, token string) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &Client{
		gh:    gh.NewClient(oauth2.NewClient(ctx, ts)),
		owner: owner,
		repo:  repo,
	}
}

// Get fetches a single issue by number.
func (c *Client) Get(ctx context.Context, number int) (*RemoteIssue, error) {
	issue, _, err := c.gh.Issues.Get(ctx, c.owner, c.repo, number)
	if err != nil {
		return nil, fmt.Errorf("github: get %s/%s#%d: %w", c.owner, c.repo, number, err)
	}
	return FromGitHub(issue), nil
}

// List fetches all issues in the given state ("open", "closed", or "all"),
// following pagination. Pull requests are excluded.
func (c *Client) List(ctx context.Context, state string) ([]*RemoteIssue, error) {
	opts := &gh.IssueListByRepoOptions{
		State:       state,
		ListOptions: gh.ListOptions{PerPage: 100},
	}
	var all []*RemoteIssue
	for {
		issues, resp, err := c.gh.Issues.ListByRepo(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("github: list %s/%s (state=%s): %w", c.owner, c.repo, state, err)
		}
		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			all = append(all, FromGitHub(issue))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// CreateRequest holds the fields for creating a remote issue.
type CreateRequest struct {
	Title     string
	Body      string
	Labels    []string
	Assignees []string
}

// Create opens a new remote issue.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*RemoteIssue, error) {
	issue, _, err := c.gh.Issues.Create(ctx, c.owner, c.repo, &gh.IssueRequest{
		Title:     gh.Ptr(req.Title),
		Body:      gh.Ptr(req.Body),
		Labels:    &req.Labels,
		Assignees: &req.Assignees,
	})
	if err != nil {
		return nil, fmt.Errorf("github: create issue in %s/%s: %w", c.owner, c.repo, err)
	}
	return FromGitHub(issue), nil
}

// UpdateRequest holds the fields for updating a remote issue. Nil fields
// are left untouched.
type UpdateRequest struct {
	Title  *string
	Body   *string
	State  *string // "open" or "closed"
	Labels *[]string
}

// Update edits an existing remote issue.
func (c *Client) Update(ctx context.Context, number int, req UpdateRequest) (*RemoteIssue, error) {
	issue, _, err := c.gh.Issues.Edit(ctx, c.owner, c.repo, number, &gh.IssueRequest{
		Title:  req.Title,
		Body:   req.Body,
		State:  req.State,
		Labels: req.Labels,
	})
	if err != nil {
		return nil, fmt.Errorf("github: update %s/%s#%d: %w", c.owner, c.repo, number, err)
	}
	return FromGitHub(issue), nil
}

// AddLabels attaches labels to an issue.
func (c *Client) AddLabels(ctx context.Context, number int, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	_, _, err := c.gh.Issues.AddLabelsToIssue(ctx, c.owner, c.repo, number, labels)
	if err != nil {
		return fmt.Errorf("github: add labels to %s/%s#%d: %w", c.owner, c.repo, number, err)
	}
	return nil
}

// RemoveLabel detaches one label from an issue.
func (c *Client) RemoveLabel(ctx context.Context, number int, label string) error {
	_, err := c.gh.Issues.RemoveLabelForIssue(ctx, c.owner, c.repo, number, label)
	if err != nil {
		return fmt.Errorf("github: remove label %q from %s/%s#%d: %w", label, c.owner, c.repo, number, err)
	}
	return nil
}

// FromGitHub converts a go-github issue to the engine's snapshot form.
// Exported because webhook payloads decode into the same API type.
func FromGitHub(issue *gh.Issue) *RemoteIssue {
	ri := &RemoteIssue{
		Number:    issue.GetNumber(),
		Title:     issue.GetTitle(),
		Body:      issue.GetBody(),
		State:     issue.GetState(),
		HTMLURL:   issue.GetHTMLURL(),
		CreatedAt: issue.GetCreatedAt().Time,
		UpdatedAt: issue.GetUpdatedAt().Time,
	}
	for _, l := range issue.Labels {
		ri.Labels = append(ri.Labels, l.GetName())
	}
	for _, a := range issue.Assignees {
		ri.Assignees = append(ri.Assignees, a.GetLogin())
	}
	if issue.ClosedAt != nil {
		t := issue.GetClosedAt().Time
		ri.ClosedAt = &t
	}
	return ri
}
