// Package script defines the shared domain types for script generation:
// outline sections, quality issues, and verification results. Types here are
// value records so that results stored across refinement iterations never
// alias each other.
package script

import "strings"

// Severity ranks how strongly an issue blocks acceptance of a draft.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

// Category classifies a quality issue.
type Category string

const (
	// CategoryDuration marks word-count deviation beyond tolerance.
	CategoryDuration Category = "DURATION"
	// CategoryCoherence marks logical or tonal breaks inside a section.
	CategoryCoherence Category = "COHERENCE"
	// CategoryRedundancy marks content repeated within or across sections.
	CategoryRedundancy Category = "REDUNDANCY"
	// CategoryContinuity marks claims that contradict earlier sections.
	CategoryContinuity Category = "CONTINUITY"
	// CategoryTransition marks abrupt handoffs at section boundaries.
	CategoryTransition Category = "TRANSITION"
	// CategoryFormat marks speaker-label or stage-direction formatting problems.
	CategoryFormat Category = "FORMAT"
)

// Section is one numbered, timed unit of the outline driving a single
// generation pass. Created once at parse time and immutable afterward.
type Section struct {
	ID              string
	Number          string // hierarchical, e.g. "2.1"
	Title           string
	DurationMinutes float64
	Overview        string
	RawContent      string // full source block, passed through verbatim
}

// Issue is a single quality finding from a verification pass.
// Issues are plain value records; copying the struct copies everything
// except Actions, which callers must clone when archiving.
type Issue struct {
	Category    Category `json:"type"`
	Severity    Severity `json:"priority"`
	Description string   `json:"description"`
	Evidence    string   `json:"evidence,omitempty"` // quote or location in the draft
	Fix         string   `json:"fix,omitempty"`      // prescriptive recommendation
	Actions     []string `json:"actions,omitempty"`
}

// Clone returns a structurally independent copy of the issue.
func (i Issue) Clone() Issue {
	out := i
	if len(i.Actions) > 0 {
		out.Actions = append([]string(nil), i.Actions...)
	}
	return out
}

// CloneIssues deep-copies a slice of issues.
func CloneIssues(issues []Issue) []Issue {
	if issues == nil {
		return nil
	}
	out := make([]Issue, len(issues))
	for idx, is := range issues {
		out[idx] = is.Clone()
	}
	return out
}

// ResultSource tags which path produced a verification result, so callers
// branch on confidence instead of inferring it from side effects.
type ResultSource string

const (
	// SourceStructured means the service returned parseable JSON findings.
	SourceStructured ResultSource = "structured"
	// SourceHeuristic means validity was guessed from keywords in prose.
	SourceHeuristic ResultSource = "heuristic"
	// SourceLocalMetrics means the service was unreachable and only local
	// word-count measurement informed the verdict.
	SourceLocalMetrics ResultSource = "local_metrics"
)

// VerificationResult is the uniform return shape of every verification path.
// Produced fresh per verify call; not mutated after the adapter hands it out.
type VerificationResult struct {
	IsValid  bool
	Feedback string
	Issues   []Issue
	Source   ResultSource
	Raw      map[string]any // structured payload as parsed, nil on fallback paths
}

// HasCategory reports whether any issue carries the given category.
func (r *VerificationResult) HasCategory(cat Category) bool {
	for i := range r.Issues {
		if r.Issues[i].Category == cat {
			return true
		}
	}
	return false
}

// CriticalCount returns the number of critical issues.
func (r *VerificationResult) CriticalCount() int {
	n := 0
	for i := range r.Issues {
		if r.Issues[i].Severity == SeverityCritical {
			n++
		}
	}
	return n
}

// DisplayTitle returns "<number>. <title>" for logs and prompts.
func (s *Section) DisplayTitle() string {
	title := strings.TrimSpace(s.Title)
	if s.Number == "" {
		return title
	}
	return s.Number + ". " + title
}
