package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v68/github"
	"github.com/zulandar/switchyard/internal/github"
)

// Header names GitHub sets on every delivery.
const (
	HeaderEvent     = "X-GitHub-Event"
	HeaderDelivery  = "X-GitHub-Delivery"
	HeaderSignature = "X-Hub-Signature-256"
)

// Errors callers branch on to pick an HTTP status.
var (
	ErrMissingEventType  = errors.New("webhook: missing event type header")
	ErrMissingDeliveryID = errors.New("webhook: missing delivery ID header")
	ErrBadSignature      = errors.New("webhook: signature verification failed")
)

// Delivery is the envelope read from the request headers, before the body
// is trusted or parsed.
type Delivery struct {
	EventType  string
	DeliveryID string
	Signature  string
}

// ParseHeaders extracts the delivery envelope. Event type and delivery ID
// are required; the signature header may be empty here because its absence
// is a verification failure, not a malformed request.
func ParseHeaders(h http.Header) (Delivery, error) {
	d := Delivery{
		EventType:  h.Get(HeaderEvent),
		DeliveryID: h.Get(HeaderDelivery),
		Signature:  h.Get(HeaderSignature),
	}
	if d.EventType == "" {
		return d, ErrMissingEventType
	}
	if d.DeliveryID == "" {
		return d, ErrMissingDeliveryID
	}
	return d, nil
}

// Event is a normalized webhook delivery. Issue is nil for event types
// that carry no issue (ping, unhandled types).
type Event struct {
	Type       string
	Action     string
	DeliveryID string
	Owner      string
	Repo       string
	Issue      *github.RemoteIssue
}

// Normalize parses a verified raw payload into an Event. Only "issues"
// events produce an Issue; other event types return an Event with the
// type and repository filled so the caller can acknowledge and skip them.
func Normalize(d Delivery, rawBody []byte) (*Event, error) {
	ev := &Event{Type: d.EventType, DeliveryID: d.DeliveryID}

	switch d.EventType {
	case "issues":
		var payload gh.IssuesEvent
		if err := json.Unmarshal(rawBody, &payload); err != nil {
			return nil, fmt.Errorf("webhook: parse issues payload: %w", err)
		}
		ev.Action = payload.GetAction()
		ev.Owner = payload.GetRepo().GetOwner().GetLogin()
		ev.Repo = payload.GetRepo().GetName()
		if payload.Issue != nil {
			ev.Issue = github.FromGitHub(payload.Issue)
		}
		return ev, nil
	default:
		// Repository coordinates are enough to route the ack.
		var payload struct {
			Repository struct {
				Name  string `json:"name"`
				Owner struct {
					Login string `json:"login"`
				} `json:"owner"`
			} `json:"repository"`
		}
		if err := json.Unmarshal(rawBody, &payload); err != nil {
			return nil, fmt.Errorf("webhook: parse %s payload: %w", d.EventType, err)
		}
		ev.Owner = payload.Repository.Owner.Login
		ev.Repo = payload.Repository.Name
		return ev, nil
	}
}
