package tracker

import (
	"errors"
	"reflect"
	"testing"

	"github.com/zulandar/switchyard/internal/db"
	"github.com/zulandar/switchyard/internal/models"
)

func testTracker(t *testing.T) *Tracker {
	t.Helper()
	gdb, err := db.ConnectMemory()
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(gdb)
}

func mustCreate(t *testing.T, tr *Tracker, issue *models.Issue) {
	t.Helper()
	if err := tr.Create(issue, "todo"); err != nil {
		t.Fatalf("Create(%s): %v", issue.ID, err)
	}
}

func TestCreateAndGet(t *testing.T) {
	tr := testTracker(t)
	mustCreate(t, tr, &models.Issue{ID: "todo-1", Title: "first"})

	got, err := tr.Get("todo-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "first" {
		t.Errorf("Title = %q, want first", got.Title)
	}
	if got.Status != models.StatusOpen {
		t.Errorf("Status = %q, want open default", got.Status)
	}
	if got.Type != models.TypeTask {
		t.Errorf("Type = %q, want task default", got.Type)
	}

	if _, err := tr.Get("todo-404"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing: err = %v, want ErrNotFound", err)
	}
}

func TestCreate_GeneratedIDs(t *testing.T) {
	tr := testTracker(t)
	a := &models.Issue{Title: "a"}
	b := &models.Issue{Title: "b"}
	mustCreate(t, tr, a)
	mustCreate(t, tr, b)

	if a.ID != "todo-1" {
		t.Errorf("first generated ID = %q, want todo-1", a.ID)
	}
	if b.ID != "todo-2" {
		t.Errorf("second generated ID = %q, want todo-2", b.ID)
	}
}

func TestDependencySymmetry(t *testing.T) {
	tr := testTracker(t)
	mustCreate(t, tr, &models.Issue{ID: "todo-1", Title: "a"})
	mustCreate(t, tr, &models.Issue{ID: "todo-2", Title: "b", DependsOn: []string{"todo-1"}})

	a, err := tr.Get("todo-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(a.Blocks, []string{"todo-2"}) {
		t.Errorf("todo-1.Blocks = %v, want [todo-2]", a.Blocks)
	}

	b, err := tr.Get("todo-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(b.DependsOn, []string{"todo-1"}) {
		t.Errorf("todo-2.DependsOn = %v, want [todo-1]", b.DependsOn)
	}
}

func TestUpdate_BlocksViewCreatesReciprocalEdge(t *testing.T) {
	tr := testTracker(t)
	mustCreate(t, tr, &models.Issue{ID: "todo-1", Title: "a"})
	mustCreate(t, tr, &models.Issue{ID: "todo-2", Title: "b"})

	// Updating a's Blocks view must yield the reciprocal dependsOn on b.
	upd := &models.Issue{Title: "a", Status: models.StatusOpen, Type: models.TypeTask, Priority: 2, Blocks: []string{"todo-2"}}
	if err := tr.Update("todo-1", upd); err != nil {
		t.Fatalf("Update: %v", err)
	}

	b, _ := tr.Get("todo-2")
	if !reflect.DeepEqual(b.DependsOn, []string{"todo-1"}) {
		t.Errorf("todo-2.DependsOn = %v, want [todo-1]", b.DependsOn)
	}
}

func TestUpdate_RemovesDroppedEdges(t *testing.T) {
	tr := testTracker(t)
	mustCreate(t, tr, &models.Issue{ID: "todo-1", Title: "a"})
	mustCreate(t, tr, &models.Issue{ID: "todo-2", Title: "b", DependsOn: []string{"todo-1"}})

	upd := &models.Issue{Title: "b", Status: models.StatusOpen, Type: models.TypeTask, Priority: 2}
	if err := tr.Update("todo-2", upd); err != nil {
		t.Fatalf("Update: %v", err)
	}

	b, _ := tr.Get("todo-2")
	if len(b.DependsOn) != 0 {
		t.Errorf("todo-2.DependsOn = %v, want empty", b.DependsOn)
	}
	a, _ := tr.Get("todo-1")
	if len(a.Blocks) != 0 {
		t.Errorf("todo-1.Blocks = %v, want empty", a.Blocks)
	}
}

func TestEdgesToUnknownIssuesSkipped(t *testing.T) {
	tr := testTracker(t)
	mustCreate(t, tr, &models.Issue{ID: "todo-1", Title: "a", DependsOn: []string{"ghost-9"}})

	a, _ := tr.Get("todo-1")
	if len(a.DependsOn) != 0 {
		t.Errorf("DependsOn = %v, want empty: unknown issues get no edge", a.DependsOn)
	}
}

func TestReadyAndBlocked(t *testing.T) {
	tr := testTracker(t)
	mustCreate(t, tr, &models.Issue{ID: "todo-1", Title: "blocker"})
	mustCreate(t, tr, &models.Issue{ID: "todo-2", Title: "waiting", DependsOn: []string{"todo-1"}})
	mustCreate(t, tr, &models.Issue{ID: "todo-3", Title: "free"})

	ready, err := tr.Ready()
	if err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if ids := idsOf(ready); !reflect.DeepEqual(ids, []string{"todo-1", "todo-3"}) {
		t.Errorf("Ready = %v, want [todo-1 todo-3]", ids)
	}

	blocked, err := tr.Blocked()
	if err != nil {
		t.Fatalf("Blocked: %v", err)
	}
	if ids := idsOf(blocked); !reflect.DeepEqual(ids, []string{"todo-2"}) {
		t.Errorf("Blocked = %v, want [todo-2]", ids)
	}

	// Closing the blocker frees the waiter.
	if err := tr.Close("todo-1", "done"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	ready, _ = tr.Ready()
	if ids := idsOf(ready); !reflect.DeepEqual(ids, []string{"todo-2", "todo-3"}) {
		t.Errorf("Ready after close = %v, want [todo-2 todo-3]", ids)
	}
}

func TestClose(t *testing.T) {
	tr := testTracker(t)
	mustCreate(t, tr, &models.Issue{ID: "todo-1", Title: "a"})

	if err := tr.Close("todo-1", "obsolete"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got, _ := tr.Get("todo-1")
	if got.Status != models.StatusClosed {
		t.Errorf("Status = %q, want closed", got.Status)
	}
	if got.ClosedAt == nil {
		t.Error("ClosedAt is nil")
	}
	if got.CloseReason != "obsolete" {
		t.Errorf("CloseReason = %q, want obsolete", got.CloseReason)
	}

	// Idempotent for an already-closed issue, error for a missing one.
	if err := tr.Close("todo-1", "again"); err != nil {
		t.Errorf("Close twice: %v", err)
	}
	if err := tr.Close("todo-404", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Close missing: err = %v, want ErrNotFound", err)
	}
}

func TestList_Filters(t *testing.T) {
	tr := testTracker(t)
	mustCreate(t, tr, &models.Issue{ID: "todo-1", Title: "a", Type: models.TypeBug, Labels: []string{"backend"}})
	mustCreate(t, tr, &models.Issue{ID: "todo-2", Title: "b", Type: models.TypeFeature})
	if err := tr.Close("todo-2", ""); err != nil {
		t.Fatalf("Close: %v", err)
	}

	open, err := tr.List(Filter{Status: models.StatusOpen})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if ids := idsOf(open); !reflect.DeepEqual(ids, []string{"todo-1"}) {
		t.Errorf("List(open) = %v, want [todo-1]", ids)
	}

	bugs, _ := tr.List(Filter{Type: models.TypeBug})
	if ids := idsOf(bugs); !reflect.DeepEqual(ids, []string{"todo-1"}) {
		t.Errorf("List(bug) = %v, want [todo-1]", ids)
	}

	labeled, _ := tr.List(Filter{Label: "backend"})
	if ids := idsOf(labeled); !reflect.DeepEqual(ids, []string{"todo-1"}) {
		t.Errorf("List(label) = %v, want [todo-1]", ids)
	}
}

func idsOf(issues []*models.Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.ID)
	}
	return out
}
