package convention

import (
	"regexp"
	"strings"
)

// ParseResult holds the relationships extracted from an issue body.
// DependsOn and Blocks are deduplicated, first-occurrence order preserved.
// Parent is empty when no parent reference was found.
type ParseResult struct {
	DependsOn []string
	Blocks    []string
	Parent    string
}

// scanState drives the continuation-line scan. Keeping the states explicit
// makes the termination rules (heading, second blank line, unrelated text)
// enumerable and individually testable.
type scanState int

const (
	stateScanningMatch scanState = iota
	stateInContinuation
	stateTerminated
)

var (
	issueURLRe = regexp.MustCompile(`/issues/(\d+)\b`)
	hashRefRe  = regexp.MustCompile(`#(\d+)\b`)
	bulletRe   = regexp.MustCompile(`^\s*[-*+]\s`)
	headingRe  = regexp.MustCompile(`^#{1,6}\s`)

	// fallbackParentRe is applied when the configured parent pattern does
	// not match at all. Retained for compatibility with bodies written
	// before parent patterns were configurable; deliberately not extended.
	fallbackParentRe = regexp.MustCompile(`(?i)parent:\s*(.+)`)

	issueHosts = []string{"github.com", "linear.app"}
)

// ParseBody extracts dependsOn, blocks, and parent references from free
// issue body text using the configured patterns. Fragments that resolve to
// no issue reference are dropped silently; free text is expected to
// contain noise.
func (c *Config) ParseBody(body string) ParseResult {
	if strings.TrimSpace(body) == "" {
		return ParseResult{}
	}
	return ParseResult{
		DependsOn: c.collectRefs(body, c.dependsOnRe),
		Blocks:    c.collectRefs(body, c.blocksRe),
		Parent:    c.parseParent(body),
	}
}

// collectRefs finds every non-overlapping match of re in body, captures
// the list block following each match, and resolves the fragments to bare
// issue numbers. Duplicates across matches are dropped, keeping the first
// occurrence.
func (c *Config) collectRefs(body string, re *regexp.Regexp) []string {
	var refs []string
	seen := make(map[string]bool)
	for _, loc := range re.FindAllStringIndex(body, -1) {
		block := captureBlock(body[loc[1]:])
		for _, frag := range c.splitFragments(block) {
			ref, ok := extractRef(frag)
			if !ok || seen[ref] {
				continue
			}
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	return refs
}

// captureBlock collects the remainder of the match line plus any
// continuation lines. A line continues the list when it looks like a
// bullet, contains an issue reference, or names an issue host domain. A
// markdown heading, a second blank line, or any other non-blank line
// terminates the scan.
func captureBlock(rest string) string {
	lines := strings.Split(rest, "\n")
	var captured []string
	state := stateScanningMatch
	blanks := 0

	for _, line := range lines {
		switch state {
		case stateScanningMatch:
			captured = append(captured, line)
			state = stateInContinuation
		case stateInContinuation:
			if strings.TrimSpace(line) == "" {
				blanks++
				if blanks >= 2 {
					state = stateTerminated
				}
				continue
			}
			if headingRe.MatchString(line) {
				state = stateTerminated
				continue
			}
			if isContinuationLine(line) {
				captured = append(captured, line)
				continue
			}
			state = stateTerminated
		}
		if state == stateTerminated {
			break
		}
	}
	return strings.Join(captured, "\n")
}

// isContinuationLine reports whether line plausibly continues an issue
// reference list.
func isContinuationLine(line string) bool {
	if bulletRe.MatchString(line) {
		return true
	}
	if hashRefRe.MatchString(line) || issueURLRe.MatchString(line) {
		return true
	}
	lower := strings.ToLower(line)
	for _, host := range issueHosts {
		if strings.Contains(lower, host) {
			return true
		}
	}
	return false
}

// splitFragments splits a captured block on newlines and the configured
// separator.
func (c *Config) splitFragments(block string) []string {
	var frags []string
	for _, line := range strings.Split(block, "\n") {
		if c.Separator == "" {
			frags = append(frags, line)
			continue
		}
		frags = append(frags, strings.Split(line, c.Separator)...)
	}
	return frags
}

// extractRef resolves a fragment to a bare issue number, trying the issue
// URL suffix form first and the #digits form second.
func extractRef(fragment string) (string, bool) {
	if m := issueURLRe.FindStringSubmatch(fragment); m != nil {
		return m[1], true
	}
	if m := hashRefRe.FindStringSubmatch(fragment); m != nil {
		return m[1], true
	}
	return "", false
}

// parseParent resolves the parent reference. The configured pattern is
// tried first: a capture group yields the captured text, a groupless match
// falls through to URL/#digits extraction over the whole match. When the
// configured pattern finds nothing, the hard-coded fallback scan runs.
func (c *Config) parseParent(body string) string {
	if loc := c.parentRe.FindStringSubmatchIndex(body); loc != nil {
		if c.parentRe.NumSubexp() > 0 && loc[2] >= 0 {
			return resolveParentText(body[loc[2]:loc[3]])
		}
		if ref, ok := extractRef(body[loc[0]:loc[1]]); ok {
			return ref
		}
		return ""
	}
	if m := fallbackParentRe.FindStringSubmatch(body); m != nil {
		return resolveParentText(m[1])
	}
	return ""
}

// resolveParentText reduces captured parent text to a single reference:
// an extracted issue number when one is present, otherwise the first line
// of the captured text verbatim (parents may be local issue IDs with no
// numeric form).
func resolveParentText(captured string) string {
	if i := strings.IndexByte(captured, '\n'); i >= 0 {
		captured = captured[:i]
	}
	captured = strings.TrimSpace(captured)
	if ref, ok := extractRef(captured); ok {
		return ref
	}
	return captured
}
