package mirror

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultPollInterval is the watcher's default polling cadence.
const DefaultPollInterval = 15 * time.Second

// ChangeType identifies the kind of change detected by the watcher.
type ChangeType string

const (
	ChangeCreated  ChangeType = "created"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
)

// Change is one detected mirror file change.
type Change struct {
	Type      ChangeType
	Path      string
	Timestamp time.Time
}

// fileSnapshot holds the last-known mtime and size of a mirror file.
type fileSnapshot struct {
	ModTime time.Time
	Size    int64
}

// Watcher polls the mirror directory for file changes by comparing
// mtimes and sizes against an in-memory snapshot. The first poll seeds
// the snapshot without emitting events so startup does not produce a
// burst of false positives.
type Watcher struct {
	dir          string
	pollInterval time.Duration

	mu       sync.Mutex
	snapshot map[string]fileSnapshot
	seeded   bool
}

// WatcherOpts holds parameters for creating a Watcher.
type WatcherOpts struct {
	Dir          string
	PollInterval time.Duration // defaults to DefaultPollInterval
}

// NewWatcher creates a Watcher for a mirror directory.
func NewWatcher(opts WatcherOpts) *Watcher {
	poll := opts.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Watcher{
		dir:          opts.Dir,
		pollInterval: poll,
		snapshot:     make(map[string]fileSnapshot),
	}
}

// Poll runs one detection cycle and returns the changes since the
// previous cycle.
func (w *Watcher) Poll() ([]Change, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	var changes []Change
	currentPaths := make(map[string]bool, len(entries))

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		info, err := e.Info()
		if err != nil {
			continue
		}
		currentPaths[path] = true

		old, exists := w.snapshot[path]
		current := fileSnapshot{ModTime: info.ModTime(), Size: info.Size()}
		if !exists {
			w.snapshot[path] = current
			if w.seeded {
				changes = append(changes, Change{Type: ChangeCreated, Path: path, Timestamp: now})
			}
			continue
		}
		if !old.ModTime.Equal(current.ModTime) || old.Size != current.Size {
			w.snapshot[path] = current
			changes = append(changes, Change{Type: ChangeModified, Path: path, Timestamp: now})
		}
	}

	for path := range w.snapshot {
		if !currentPaths[path] {
			delete(w.snapshot, path)
			if w.seeded {
				changes = append(changes, Change{Type: ChangeDeleted, Path: path, Timestamp: now})
			}
		}
	}

	if !w.seeded {
		w.seeded = true
	}

	return changes, nil
}

// Run starts the watcher loop. It polls on the configured interval and
// sends detected changes to the returned channel, which is closed when
// the context is cancelled.
func (w *Watcher) Run(ctx context.Context) <-chan Change {
	ch := make(chan Change, 64)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				changes, err := w.Poll()
				if err != nil {
					continue
				}
				for _, c := range changes {
					select {
					case ch <- c:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return ch
}

// Mark records the current state of one file without emitting a change,
// used after the engine itself writes a mirror file so its own writes
// do not echo back as edits.
func (w *Watcher) Mark(path string) {
	info, err := os.Stat(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		delete(w.snapshot, path)
		return
	}
	w.snapshot[path] = fileSnapshot{ModTime: info.ModTime(), Size: info.Size()}
}

// Seeded reports whether the initial snapshot has been taken.
func (w *Watcher) Seeded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seeded
}
