package engine

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/zulandar/switchyard/internal/models"
	"github.com/zulandar/switchyard/internal/tracker"
)

func TestSyncInstallation_PairsLocalOnlyIssue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	local := &models.Issue{ID: "app-1", Title: "wire up metrics", Type: models.TypeTask}
	if err := env.tracker.Create(local, "app"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	report, err := env.engine.SyncInstallation(ctx, "acme", "app", false)
	if err != nil {
		t.Fatalf("SyncInstallation: %v", err)
	}
	if len(report.Errors) != 0 {
		t.Fatalf("report errors: %v", report.Errors)
	}
	if env.remote.creates != 1 {
		t.Errorf("remote creates = %d, want 1", env.remote.creates)
	}

	mapping, err := env.store.MappingByLocalID(env.instID, "app-1")
	if err != nil {
		t.Fatalf("mapping: %v", err)
	}
	ri, err := env.remote.Get(ctx, mapping.RemoteNumber)
	if err != nil {
		t.Fatalf("remote issue: %v", err)
	}
	if ri.Title != "wire up metrics" {
		t.Errorf("remote title = %q", ri.Title)
	}

	// The pairing snapshot must not read as a pending local change: a
	// second pass performs no writes.
	if _, err := env.engine.SyncInstallation(ctx, "acme", "app", false); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if env.remote.updates != 0 {
		t.Errorf("second pass performed %d remote updates, want 0", env.remote.updates)
	}
}

func TestSyncInstallation_LocalEditPropagates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ri := remoteIssue(7, "original")
	env.remote.put(ri)
	if err := env.engine.HandleWebhook(ctx, issueEvent("d-1", ri)); err != nil {
		t.Fatalf("pair: %v", err)
	}
	mapping, _ := env.store.MappingByRemoteNumber(env.instID, 7)

	local, _ := env.tracker.Get(mapping.LocalID)
	edited := *local
	edited.Title = "edited locally"
	edited.Status = models.StatusClosed
	time.Sleep(10 * time.Millisecond) // the change must land after the pairing snapshot
	if err := env.tracker.Update(mapping.LocalID, &edited); err != nil {
		t.Fatalf("Update: %v", err)
	}

	report, err := env.engine.SyncInstallation(ctx, "acme", "app", false)
	if err != nil {
		t.Fatalf("SyncInstallation: %v", err)
	}
	if report.Reconciled != 1 {
		t.Errorf("Reconciled = %d, want 1", report.Reconciled)
	}

	got, _ := env.remote.Get(ctx, 7)
	if got.Title != "edited locally" {
		t.Errorf("remote title = %q, want edited locally", got.Title)
	}
	if got.State != "closed" {
		t.Errorf("remote state = %q, want closed", got.State)
	}
}

func TestSyncInstallation_CreateMissingNone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.gdb.Model(&models.Installation{}).
		Where("id = ?", env.instID).
		Update("create_missing", "none").Error; err != nil {
		t.Fatalf("set create_missing: %v", err)
	}

	env.remote.put(remoteIssue(7, "remote only"))
	if err := env.tracker.Create(&models.Issue{ID: "app-1", Title: "local only"}, "app"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := env.engine.SyncInstallation(ctx, "acme", "app", false); err != nil {
		t.Fatalf("SyncInstallation: %v", err)
	}

	if env.remote.creates != 0 {
		t.Errorf("remote creates = %d, want 0", env.remote.creates)
	}
	locals, _ := env.tracker.List(tracker.Filter{})
	if len(locals) != 1 {
		t.Errorf("local issues = %d, want only the original", len(locals))
	}
}

func TestSyncInstallation_ClosedLocalPairsClosed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	closedAt := time.Now().UTC()
	local := &models.Issue{
		ID:       "app-1",
		Title:    "fixed before pairing",
		Status:   models.StatusClosed,
		Type:     models.TypeBug,
		ClosedAt: &closedAt,
	}
	if err := env.tracker.Create(local, "app"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := env.engine.SyncInstallation(ctx, "acme", "app", false); err != nil {
		t.Fatalf("SyncInstallation: %v", err)
	}

	mapping, err := env.store.MappingByLocalID(env.instID, "app-1")
	if err != nil {
		t.Fatalf("mapping: %v", err)
	}
	ri, err := env.remote.Get(ctx, mapping.RemoteNumber)
	if err != nil {
		t.Fatalf("remote issue: %v", err)
	}
	if ri.State != "closed" {
		t.Errorf("remote state = %q, want closed after one pass", ri.State)
	}
	if ri.ClosedAt == nil {
		t.Error("remote ClosedAt not set")
	}

	// Pairing already converged: a second pass performs no writes.
	updates := env.remote.updates
	if _, err := env.engine.SyncInstallation(ctx, "acme", "app", false); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if env.remote.updates != updates {
		t.Errorf("second pass performed %d remote updates, want 0", env.remote.updates-updates)
	}
}

func TestSyncInstallation_DryRunPlansWithoutWriting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.remote.put(remoteIssue(7, "remote only"))
	if err := env.tracker.Create(&models.Issue{ID: "app-1", Title: "local only"}, "app"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	report, err := env.engine.SyncInstallation(ctx, "acme", "app", true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !report.DryRun {
		t.Error("report not marked dry-run")
	}

	actions := make(map[string]int)
	for _, p := range report.Planned {
		actions[p.Action]++
	}
	if actions["create-local"] != 1 || actions["create-remote"] != 1 {
		t.Errorf("planned = %v, want one create-local and one create-remote", actions)
	}

	if env.remote.creates != 0 || env.remote.updates != 0 {
		t.Error("dry run performed remote writes")
	}
	if _, err := env.store.MappingByLocalID(env.instID, "app-1"); err == nil {
		t.Error("dry run created a mapping")
	}
	state, _ := env.store.State(env.instID)
	if state.SyncStatus != models.SyncIdle {
		t.Errorf("dry run moved sync state to %q", state.SyncStatus)
	}
}

func TestSyncInstallation_FailureEscalatesOncePerTransition(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.remote.listErr = errors.New("remote API timeout")

	if _, err := env.engine.SyncInstallation(ctx, "acme", "app", false); err == nil {
		t.Fatal("failing pass returned nil error")
	}
	state, _ := env.store.State(env.instID)
	if state.SyncStatus != models.SyncError {
		t.Errorf("SyncStatus = %q, want error", state.SyncStatus)
	}
	if got := len(env.notify.Events()); got != 1 {
		t.Fatalf("escalations = %d, want 1", got)
	}

	// Still failing: the counter rises but no second escalation fires.
	if _, err := env.engine.SyncInstallation(ctx, "acme", "app", false); err == nil {
		t.Fatal("second failing pass returned nil error")
	}
	state, _ = env.store.State(env.instID)
	if state.ErrorCount != 2 {
		t.Errorf("ErrorCount = %d, want 2", state.ErrorCount)
	}
	if got := len(env.notify.Events()); got != 1 {
		t.Errorf("escalations = %d, want still 1", got)
	}

	// Recovery: the next clean pass returns to idle and clears counters.
	env.remote.listErr = nil
	if _, err := env.engine.SyncInstallation(ctx, "acme", "app", false); err != nil {
		t.Fatalf("recovery pass: %v", err)
	}
	state, _ = env.store.State(env.instID)
	if state.SyncStatus != models.SyncIdle || state.ErrorCount != 0 {
		t.Errorf("state after recovery = (%q, %d), want (idle, 0)", state.SyncStatus, state.ErrorCount)
	}
}

func TestSyncInstallation_MirrorRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A hand-written mirror file becomes a tracked and paired issue.
	doc := "---\nid: note-1\ntitle: from the mirror\nstate: open\n---\n\nwritten by hand\n"
	if err := os.WriteFile(env.mirror.Path("note-1"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write mirror file: %v", err)
	}

	if _, err := env.engine.SyncInstallation(ctx, "acme", "app", false); err != nil {
		t.Fatalf("SyncInstallation: %v", err)
	}

	local, err := env.tracker.Get("note-1")
	if err != nil {
		t.Fatalf("imported issue: %v", err)
	}
	if local.Title != "from the mirror" {
		t.Errorf("Title = %q", local.Title)
	}
	if _, err := env.store.MappingByLocalID(env.instID, "note-1"); err != nil {
		t.Errorf("imported issue not paired: %v", err)
	}

	// The export leg rewrote the file with the remote link attached.
	exported, err := env.mirror.ReadFile(env.mirror.Path("note-1"))
	if err != nil {
		t.Fatalf("exported file: %v", err)
	}
	if exported.ExternalRef == nil {
		t.Error("exported mirror file missing external ref")
	}

	state, _ := env.store.State(env.instID)
	if state.LastMirrorHash == "" {
		t.Error("mirror hash not recorded")
	}
}
