package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zulandar/switchyard/internal/config"
	"github.com/zulandar/switchyard/internal/db"
	"github.com/zulandar/switchyard/internal/engine"
	"github.com/zulandar/switchyard/internal/github"
	"github.com/zulandar/switchyard/internal/mirror"
	"github.com/zulandar/switchyard/internal/store"
	"github.com/zulandar/switchyard/internal/tracker"
)

const testSecret = "testing-secret"

// stubRemote satisfies engine.RemoteAPI with an empty remote tracker.
type stubRemote struct{}

func (stubRemote) Get(_ context.Context, number int) (*github.RemoteIssue, error) {
	return nil, fmt.Errorf("stub: issue %d not found", number)
}
func (stubRemote) List(context.Context, string) ([]*github.RemoteIssue, error) {
	return nil, nil
}
func (stubRemote) Create(_ context.Context, req github.CreateRequest) (*github.RemoteIssue, error) {
	now := time.Now().UTC()
	return &github.RemoteIssue{Number: 1, Title: req.Title, State: "open", CreatedAt: now, UpdatedAt: now}, nil
}
func (stubRemote) Update(_ context.Context, number int, _ github.UpdateRequest) (*github.RemoteIssue, error) {
	return &github.RemoteIssue{Number: number, UpdatedAt: time.Now().UTC()}, nil
}

func testServer(t *testing.T) *Server {
	t.Helper()
	t.Setenv("TEST_WEBHOOK_SECRET", testSecret)
	t.Setenv("TEST_GITHUB_TOKEN", "token")

	cfg, err := config.Parse([]byte(`
installations:
  - owner: acme
    repo: app
    webhook_secret_env: TEST_WEBHOOK_SECRET
    token_env: TEST_GITHUB_TOKEN
`))
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	gdb, err := db.ConnectMemory()
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.SeedInstallations(gdb, cfg.Installations); err != nil {
		t.Fatalf("seed: %v", err)
	}

	m, err := mirror.New(t.TempDir())
	if err != nil {
		t.Fatalf("mirror: %v", err)
	}
	s := store.New(gdb)
	eng, err := engine.New(engine.Opts{
		Config:  cfg,
		Store:   s,
		Tracker: tracker.New(gdb),
		Mirror:  m,
		Remotes: func(context.Context, string, string, string) engine.RemoteAPI {
			return stubRemote{}
		},
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	srv, err := New(Opts{Config: cfg, Store: s, Engine: eng})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func post(t *testing.T, srv *Server, headers map[string]string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

const pingBody = `{"zen":"Design for failure.","repository":{"name":"app","owner":{"login":"acme"}}}`

func TestWebhook_MissingHeadersRejectedBeforeSignature(t *testing.T) {
	srv := testServer(t)
	body := []byte(pingBody)

	// No event type header; the signature is garbage but the response
	// must still be 400, not 401.
	w := post(t, srv, map[string]string{
		"X-GitHub-Delivery":   "d-1",
		"X-Hub-Signature-256": "sha256=not-a-signature",
	}, body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing event type: status = %d, want 400", w.Code)
	}

	w = post(t, srv, map[string]string{
		"X-GitHub-Event":      "ping",
		"X-Hub-Signature-256": sign(body),
	}, body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing delivery ID: status = %d, want 400", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if resp["error"] == "" {
		t.Error("400 response missing error field")
	}
}

func TestWebhook_BadSignatureRejected(t *testing.T) {
	srv := testServer(t)
	body := []byte(pingBody)

	w := post(t, srv, map[string]string{
		"X-GitHub-Event":      "ping",
		"X-GitHub-Delivery":   "d-1",
		"X-Hub-Signature-256": "sha256=" + "00000000000000000000000000000000000000000000000000000000000000ff",
	}, body)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestWebhook_MalformedJSONAfterValidSignature(t *testing.T) {
	srv := testServer(t)
	body := []byte(`{"truncated`)

	w := post(t, srv, map[string]string{
		"X-GitHub-Event":      "issues",
		"X-GitHub-Delivery":   "d-1",
		"X-Hub-Signature-256": sign(body),
	}, body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestWebhook_PingSucceeds(t *testing.T) {
	srv := testServer(t)
	body := []byte(pingBody)

	w := post(t, srv, map[string]string{
		"X-GitHub-Event":      "ping",
		"X-GitHub-Delivery":   "d-1",
		"X-Hub-Signature-256": sign(body),
	}, body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}
	var resp map[string]bool
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if !resp["success"] {
		t.Error("success field not true")
	}
}

func TestWebhook_UnknownRepositoryIsInternalError(t *testing.T) {
	srv := testServer(t)
	body := []byte(`{"zen":"x","repository":{"name":"elsewhere","owner":{"login":"nobody"}}}`)

	w := post(t, srv, map[string]string{
		"X-GitHub-Event":      "ping",
		"X-GitHub-Delivery":   "d-1",
		"X-Hub-Signature-256": sign(body),
	}, body)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if resp["error"] != "Internal server error" {
		t.Errorf("error = %q, want generic message", resp["error"])
	}
}

func TestWebhook_IssuesEventCreatesLocalIssue(t *testing.T) {
	srv := testServer(t)
	body := []byte(`{
		"action": "opened",
		"issue": {
			"number": 12,
			"title": "pagination broken",
			"state": "open",
			"labels": [{"name": "bug"}],
			"updated_at": "2026-08-01T10:00:00Z",
			"created_at": "2026-08-01T10:00:00Z"
		},
		"repository": {"name": "app", "owner": {"login": "acme"}}
	}`)

	w := post(t, srv, map[string]string{
		"X-GitHub-Event":      "issues",
		"X-GitHub-Delivery":   "d-1",
		"X-Hub-Signature-256": sign(body),
	}, body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", w.Code, w.Body.String())
	}

	status := get(t, srv, "/api/installations")
	if status.Code != http.StatusOK {
		t.Fatalf("installations: status = %d", status.Code)
	}
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	srv := testServer(t)
	w := get(t, srv, "/healthz")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestInstallationStatusAPI(t *testing.T) {
	srv := testServer(t)

	w := get(t, srv, "/api/installations")
	if w.Code != http.StatusOK {
		t.Fatalf("list: status = %d", w.Code)
	}
	var listResp struct {
		Installations []struct {
			ID         uint   `json:"id"`
			Owner      string `json:"owner"`
			Repo       string `json:"repo"`
			SyncStatus string `json:"sync_status"`
		} `json:"installations"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("parse list: %v", err)
	}
	if len(listResp.Installations) != 1 {
		t.Fatalf("installations = %d, want 1", len(listResp.Installations))
	}
	inst := listResp.Installations[0]
	if inst.Owner != "acme" || inst.Repo != "app" || inst.SyncStatus != "idle" {
		t.Errorf("installation = %+v", inst)
	}

	w = get(t, srv, fmt.Sprintf("/api/installations/%d/status", inst.ID))
	if w.Code != http.StatusOK {
		t.Errorf("status endpoint: status = %d", w.Code)
	}

	w = get(t, srv, "/api/installations/999/status")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing installation: status = %d, want 404", w.Code)
	}

	w = get(t, srv, "/api/installations/abc/status")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", w.Code)
	}
}
