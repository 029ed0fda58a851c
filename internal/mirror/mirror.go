package mirror

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zulandar/switchyard/internal/models"
)

// Mirror manages a directory of one-file-per-issue markdown documents.
type Mirror struct {
	dir string
}

// New creates a Mirror rooted at dir, creating the directory if needed.
func New(dir string) (*Mirror, error) {
	if dir == "" {
		return nil, fmt.Errorf("mirror: dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mirror: create %s: %w", dir, err)
	}
	return &Mirror{dir: dir}, nil
}

// Dir returns the mirror's root directory.
func (m *Mirror) Dir() string {
	return m.dir
}

// Path returns the file path for an issue ID.
func (m *Mirror) Path(id string) string {
	return filepath.Join(m.dir, id+".md")
}

// WriteIssue renders the issue to its mirror file. The write goes
// through a temp file and rename so the watcher never reads a partial
// document.
func (m *Mirror) WriteIssue(issue *models.Issue) error {
	data, err := Render(issue)
	if err != nil {
		return err
	}
	path := m.Path(issue.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("mirror: write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("mirror: rename %s: %w", path, err)
	}
	return nil
}

// ReadFile parses one mirror file.
func (m *Mirror) ReadFile(path string) (*models.Issue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mirror: read %s: %w", path, err)
	}
	issue, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("mirror: %s: %w", filepath.Base(path), err)
	}
	return issue, nil
}

// ReadAll parses every mirror file in the directory, ordered by ID.
func (m *Mirror) ReadAll() ([]*models.Issue, error) {
	paths, err := m.listFiles()
	if err != nil {
		return nil, err
	}
	issues := make([]*models.Issue, 0, len(paths))
	for _, p := range paths {
		issue, err := m.ReadFile(p)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	sort.Slice(issues, func(i, j int) bool { return issues[i].ID < issues[j].ID })
	return issues, nil
}

// Export writes every issue and removes mirror files for issues no
// longer present, so the directory is an exact rendering of the set.
func (m *Mirror) Export(issues []*models.Issue) error {
	keep := make(map[string]bool, len(issues))
	for _, issue := range issues {
		if err := m.WriteIssue(issue); err != nil {
			return err
		}
		keep[filepath.Base(m.Path(issue.ID))] = true
	}

	paths, err := m.listFiles()
	if err != nil {
		return err
	}
	for _, p := range paths {
		if !keep[filepath.Base(p)] {
			if err := os.Remove(p); err != nil {
				return fmt.Errorf("mirror: remove stale %s: %w", p, err)
			}
		}
	}
	return nil
}

// Hash digests every mirror file's name and content in sorted order.
// Two directories with identical issue sets hash identically, so the
// engine can skip mirror passes when nothing changed.
func (m *Mirror) Hash() (string, error) {
	paths, err := m.listFiles()
	if err != nil {
		return "", err
	}
	h := sha256.New()
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return "", fmt.Errorf("mirror: hash %s: %w", p, err)
		}
		fmt.Fprintf(h, "%s\x00%d\x00", filepath.Base(p), len(data))
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// listFiles returns the sorted .md paths in the mirror directory,
// skipping temp files from in-flight writes.
func (m *Mirror) listFiles() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("mirror: read dir %s: %w", m.dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		paths = append(paths, filepath.Join(m.dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
