package mirror

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestWatcher_FirstPollSeedsSilently(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "todo-1.md", "---\nid: todo-1\n---\n")
	w := NewWatcher(WatcherOpts{Dir: dir})

	changes, err := w.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("first poll emitted %d changes, want 0", len(changes))
	}
	if !w.Seeded() {
		t.Error("watcher not seeded after first poll")
	}
}

func TestWatcher_DetectsCreateModifyDelete(t *testing.T) {
	dir := t.TempDir()
	w := NewWatcher(WatcherOpts{Dir: dir})
	if _, err := w.Poll(); err != nil {
		t.Fatalf("seed poll: %v", err)
	}

	path := writeFile(t, dir, "todo-1.md", "---\nid: todo-1\n---\n")
	changes, err := w.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(changes) != 1 || changes[0].Type != ChangeCreated || changes[0].Path != path {
		t.Fatalf("changes = %+v, want one created event for %s", changes, path)
	}

	// Size change makes the edit visible even within mtime granularity.
	writeFile(t, dir, "todo-1.md", "---\nid: todo-1\ntitle: edited\n---\n")
	changes, _ = w.Poll()
	if len(changes) != 1 || changes[0].Type != ChangeModified {
		t.Fatalf("changes = %+v, want one modified event", changes)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	changes, _ = w.Poll()
	if len(changes) != 1 || changes[0].Type != ChangeDeleted {
		t.Fatalf("changes = %+v, want one deleted event", changes)
	}
}

func TestWatcher_QuiescentPollEmitsNothing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "todo-1.md", "---\nid: todo-1\n---\n")
	w := NewWatcher(WatcherOpts{Dir: dir})
	if _, err := w.Poll(); err != nil {
		t.Fatalf("seed poll: %v", err)
	}

	changes, err := w.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("quiescent poll emitted %+v, want nothing", changes)
	}
}

func TestWatcher_MarkSuppressesOwnWrites(t *testing.T) {
	dir := t.TempDir()
	w := NewWatcher(WatcherOpts{Dir: dir})
	if _, err := w.Poll(); err != nil {
		t.Fatalf("seed poll: %v", err)
	}

	path := writeFile(t, dir, "todo-1.md", "---\nid: todo-1\n---\n")
	w.Mark(path)

	changes, err := w.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("marked write echoed back as %+v", changes)
	}
}

func TestWatcher_IgnoresNonMarkdown(t *testing.T) {
	dir := t.TempDir()
	w := NewWatcher(WatcherOpts{Dir: dir})
	if _, err := w.Poll(); err != nil {
		t.Fatalf("seed poll: %v", err)
	}

	writeFile(t, dir, "todo-1.md.tmp", "partial")
	changes, _ := w.Poll()
	if len(changes) != 0 {
		t.Errorf("temp file emitted %+v, want nothing", changes)
	}
}

func TestDebouncer_CollapsesBurst(t *testing.T) {
	fired := make(chan struct{}, 8)
	d := NewDebouncer(30*time.Millisecond, func() { fired <- struct{}{} })

	d.Trigger()
	d.Trigger()
	d.Trigger()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced action never fired")
	}

	select {
	case <-fired:
		t.Error("action fired more than once for a single burst")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebouncer_Cancel(t *testing.T) {
	fired := make(chan struct{}, 1)
	d := NewDebouncer(30*time.Millisecond, func() { fired <- struct{}{} })

	d.Trigger()
	d.Cancel()

	select {
	case <-fired:
		t.Error("cancelled action fired")
	case <-time.After(100 * time.Millisecond):
	}
}
