// Package convention implements the configurable rules that let a remote
// tracker without native fields express issue type, priority, status, and
// the dependency graph through labels and body-text patterns.
package convention

import (
	"fmt"
	"regexp"
)

// Config is one installation's merged convention rule set. Build it with
// Merge; a built Config is immutable and safe for concurrent use.
type Config struct {
	// TypeLabels maps a label to an issue type. The first input label
	// that appears here wins.
	TypeLabels map[string]string

	// PriorityLabels maps a label to a priority. Among matching labels
	// the lowest value wins.
	PriorityLabels map[string]int

	// InProgressLabel marks an open issue as in progress.
	InProgressLabel string

	// DependsOnPattern and BlocksPattern locate dependency lists in the
	// issue body. ParentPattern locates the parent reference; if it has a
	// capture group the captured text is the reference.
	DependsOnPattern string
	BlocksPattern    string
	ParentPattern    string

	// Separator splits multi-reference fragments, in addition to newlines.
	Separator string

	dependsOnRe *regexp.Regexp
	blocksRe    *regexp.Regexp
	parentRe    *regexp.Regexp
}

// Overrides is a partial convention rule set supplied per installation.
// Map entries merge over the defaults key-wise; non-empty scalars replace
// the default value.
type Overrides struct {
	TypeLabels       map[string]string `yaml:"type_labels" json:"type_labels,omitempty"`
	PriorityLabels   map[string]int    `yaml:"priority_labels" json:"priority_labels,omitempty"`
	InProgressLabel  string            `yaml:"in_progress_label" json:"in_progress_label,omitempty"`
	DependsOnPattern string            `yaml:"depends_on_pattern" json:"depends_on_pattern,omitempty"`
	BlocksPattern    string            `yaml:"blocks_pattern" json:"blocks_pattern,omitempty"`
	ParentPattern    string            `yaml:"parent_pattern" json:"parent_pattern,omitempty"`
	Separator        string            `yaml:"separator" json:"separator,omitempty"`
}

// Defaults returns the stock convention rule set.
func Defaults() Overrides {
	return Overrides{
		TypeLabels: map[string]string{
			"bug":         "bug",
			"enhancement": "feature",
			"feature":     "feature",
			"task":        "task",
			"epic":        "epic",
			"chore":       "chore",
		},
		PriorityLabels: map[string]int{
			"P0": 0,
			"P1": 1,
			"P2": 2,
			"P3": 3,
			"P4": 4,
		},
		InProgressLabel:  "in-progress",
		DependsOnPattern: `(?i)depends[ -]?on:`,
		BlocksPattern:    `(?i)blocks:`,
		ParentPattern:    `(?i)parent:\s*(.+)`,
		Separator:        ",",
	}
}

// Merge builds an immutable Config from the defaults and an installation's
// overrides. Patterns are compiled here so that a bad override surfaces as
// a configuration error, not a parse-time panic.
func Merge(overrides Overrides) (*Config, error) {
	base := Defaults()

	cfg := &Config{
		TypeLabels:       make(map[string]string, len(base.TypeLabels)),
		PriorityLabels:   make(map[string]int, len(base.PriorityLabels)),
		InProgressLabel:  base.InProgressLabel,
		DependsOnPattern: base.DependsOnPattern,
		BlocksPattern:    base.BlocksPattern,
		ParentPattern:    base.ParentPattern,
		Separator:        base.Separator,
	}
	for k, v := range base.TypeLabels {
		cfg.TypeLabels[k] = v
	}
	for k, v := range base.PriorityLabels {
		cfg.PriorityLabels[k] = v
	}

	for k, v := range overrides.TypeLabels {
		cfg.TypeLabels[k] = v
	}
	for k, v := range overrides.PriorityLabels {
		cfg.PriorityLabels[k] = v
	}
	if overrides.InProgressLabel != "" {
		cfg.InProgressLabel = overrides.InProgressLabel
	}
	if overrides.DependsOnPattern != "" {
		cfg.DependsOnPattern = overrides.DependsOnPattern
	}
	if overrides.BlocksPattern != "" {
		cfg.BlocksPattern = overrides.BlocksPattern
	}
	if overrides.ParentPattern != "" {
		cfg.ParentPattern = overrides.ParentPattern
	}
	if overrides.Separator != "" {
		cfg.Separator = overrides.Separator
	}

	var err error
	if cfg.dependsOnRe, err = regexp.Compile(cfg.DependsOnPattern); err != nil {
		return nil, fmt.Errorf("convention: depends_on_pattern: %w", err)
	}
	if cfg.blocksRe, err = regexp.Compile(cfg.BlocksPattern); err != nil {
		return nil, fmt.Errorf("convention: blocks_pattern: %w", err)
	}
	if cfg.parentRe, err = regexp.Compile(cfg.ParentPattern); err != nil {
		return nil, fmt.Errorf("convention: parent_pattern: %w", err)
	}
	return cfg, nil
}
