package convention

import (
	"reflect"
	"testing"

	"github.com/zulandar/switchyard/internal/models"
)

func mustMerge(t *testing.T, o Overrides) *Config {
	t.Helper()
	cfg, err := Merge(o)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	return cfg
}

func TestMapLabels_Defaults(t *testing.T) {
	cfg := mustMerge(t, Overrides{})

	res := cfg.MapLabels(nil, "open")
	if res.Type != models.TypeTask {
		t.Errorf("Type = %q, want %q", res.Type, models.TypeTask)
	}
	if res.Priority != models.PriorityDefault {
		t.Errorf("Priority = %d, want %d", res.Priority, models.PriorityDefault)
	}
	if res.Status != models.StatusOpen {
		t.Errorf("Status = %q, want %q", res.Status, models.StatusOpen)
	}
	if len(res.Remaining) != 0 {
		t.Errorf("Remaining = %v, want empty", res.Remaining)
	}
}

func TestMapLabels_TypeFirstMatchWins(t *testing.T) {
	cfg := mustMerge(t, Overrides{})

	res := cfg.MapLabels([]string{"bug", "enhancement"}, "open")
	if res.Type != models.TypeBug {
		t.Errorf("Type = %q, want %q", res.Type, models.TypeBug)
	}

	res = cfg.MapLabels([]string{"enhancement", "bug"}, "open")
	if res.Type != models.TypeFeature {
		t.Errorf("Type = %q, want %q", res.Type, models.TypeFeature)
	}
}

func TestMapLabels_PriorityMinWins(t *testing.T) {
	cfg := mustMerge(t, Overrides{})

	res := cfg.MapLabels([]string{"P3", "P1"}, "open")
	if res.Priority != 1 {
		t.Errorf("Priority = %d, want 1", res.Priority)
	}

	res = cfg.MapLabels([]string{"P1", "P3"}, "open")
	if res.Priority != 1 {
		t.Errorf("Priority = %d, want 1", res.Priority)
	}
}

func TestMapLabels_ClosedOverridesInProgress(t *testing.T) {
	cfg := mustMerge(t, Overrides{})

	res := cfg.MapLabels([]string{"in-progress"}, "closed")
	if res.Status != models.StatusClosed {
		t.Errorf("Status = %q, want %q", res.Status, models.StatusClosed)
	}

	res = cfg.MapLabels([]string{"in-progress"}, "open")
	if res.Status != models.StatusInProgress {
		t.Errorf("Status = %q, want %q", res.Status, models.StatusInProgress)
	}
}

func TestMapLabels_RemainingPreserved(t *testing.T) {
	cfg := mustMerge(t, Overrides{})

	res := cfg.MapLabels([]string{"bug", "", "needs-triage", "P0", "frontend"}, "open")
	want := []string{"needs-triage", "frontend"}
	if !reflect.DeepEqual(res.Remaining, want) {
		t.Errorf("Remaining = %v, want %v", res.Remaining, want)
	}
}

func TestMapLabels_LaterTypeLabelsConsumed(t *testing.T) {
	cfg := mustMerge(t, Overrides{})

	// The second type label loses the mapping but must not leak into
	// Remaining, or a round trip would duplicate it.
	res := cfg.MapLabels([]string{"bug", "chore"}, "open")
	if res.Type != models.TypeBug {
		t.Errorf("Type = %q, want %q", res.Type, models.TypeBug)
	}
	if len(res.Remaining) != 0 {
		t.Errorf("Remaining = %v, want empty", res.Remaining)
	}
}

func TestMapLabels_Deterministic(t *testing.T) {
	cfg := mustMerge(t, Overrides{})
	labels := []string{"P2", "bug", "in-progress", "misc"}

	first := cfg.MapLabels(labels, "open")
	for i := 0; i < 10; i++ {
		if got := cfg.MapLabels(labels, "open"); !reflect.DeepEqual(got, first) {
			t.Fatalf("MapLabels not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestMapLabels_OverrideMapping(t *testing.T) {
	cfg := mustMerge(t, Overrides{
		TypeLabels:     map[string]string{"defect": "bug"},
		PriorityLabels: map[string]int{"urgent": 0},
	})

	res := cfg.MapLabels([]string{"defect", "urgent"}, "open")
	if res.Type != models.TypeBug {
		t.Errorf("Type = %q, want %q", res.Type, models.TypeBug)
	}
	if res.Priority != 0 {
		t.Errorf("Priority = %d, want 0", res.Priority)
	}

	// Defaults survive under the override.
	res = cfg.MapLabels([]string{"epic"}, "open")
	if res.Type != models.TypeEpic {
		t.Errorf("Type = %q, want %q", res.Type, models.TypeEpic)
	}
}
