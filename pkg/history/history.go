// Package history tracks refinement attempts across iterations: which issues
// recur, how fast they are being resolved, and whether further improvement
// passes are worth their cost. All stored issue data is copied on entry so
// later mutation by callers can never be observed.
package history

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"scriptsmith/pkg/logx"
	"scriptsmith/pkg/script"
)

// Defaults for the continuation policy.
const (
	DefaultMaxAttempts        = 3
	DefaultMinImprovementRate = 10.0
	DefaultMinOccurrences     = 2
)

// Prefix lengths used when fingerprinting an issue.
const (
	descriptionPrefixLen = 40
	evidencePrefixLen    = 20
)

//nolint:gochecknoglobals // Compiled once, read-only
var whitespaceRe = regexp.MustCompile(`\s+`)

// AttemptRecord captures one refinement iteration. Append-only; retained for
// the life of a pipeline run.
type AttemptRecord struct {
	AttemptNumber  int
	SectionID      string
	IssuesSnapshot []script.Issue
	ProducedText   string
	TiersAddressed []string
	Timestamp      time.Time
}

// SignatureEntry tracks one recurring issue fingerprint. Count is cumulative
// and never decreases; SeenThisIteration is transient per-iteration metadata
// and never used to decay the count.
type SignatureEntry struct {
	Signature         string
	Count             int
	LastSeenAttempt   int
	Sample            script.Issue
	SeenThisIteration bool
}

// Tracker owns the attempt history for one generation run.
// Not safe for concurrent use; the orchestrator owns it exclusively.
type Tracker struct {
	logger        *logx.Logger
	attempts      []AttemptRecord
	persistent    map[string]*SignatureEntry
	totalResolved int
	rates         []float64
}

// NewTracker creates an empty tracker for a single run.
func NewTracker() *Tracker {
	return &Tracker{
		logger:     logx.NewLogger("history"),
		persistent: make(map[string]*SignatureEntry),
	}
}

// Signature derives the coarse fingerprint used to recognize "the same"
// issue across iterations: category, severity, and whitespace-normalized
// prefixes of the description and evidence.
func Signature(issue *script.Issue) string {
	return fmt.Sprintf("%s-%s-%s-%s",
		issue.Category,
		issue.Severity,
		prefix(issue.Description, descriptionPrefixLen),
		prefix(issue.Evidence, evidencePrefixLen),
	)
}

func prefix(s string, n int) string {
	s = strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
	// Cut on rune boundaries so multi-byte text never yields invalid UTF-8.
	if r := []rune(s); len(r) > n {
		s = string(r[:n])
	}
	return s
}

// AddAttempt records one refinement iteration: a structurally independent
// copy of issues, an appended AttemptRecord, the persistent-issue update and,
// once at least two attempts exist, exactly one improvement-metrics
// computation for the new attempt. Calling it twice for the same attempt
// double-counts resolved issues; callers must invoke it once per iteration.
func (t *Tracker) AddAttempt(issues []script.Issue, producedText, sectionID string, tiers []string) {
	record := AttemptRecord{
		AttemptNumber:  len(t.attempts) + 1,
		SectionID:      sectionID,
		IssuesSnapshot: script.CloneIssues(issues),
		ProducedText:   producedText,
		TiersAddressed: append([]string(nil), tiers...),
		Timestamp:      time.Now().UTC(),
	}
	t.attempts = append(t.attempts, record)

	t.updatePersistentIssues(record.IssuesSnapshot, record.AttemptNumber)

	if len(t.attempts) >= 2 {
		t.calculateImprovementMetrics()
	}

	t.logger.Debug("attempt %d recorded for %s: %d issues", record.AttemptNumber, sectionID, len(issues))
}

// updatePersistentIssues runs the two-phase update: every existing entry is
// first marked unseen, then each current issue either increments its entry's
// count or inserts a new one. Entries not re-seen keep their historical
// count; persistence is strictly cumulative.
func (t *Tracker) updatePersistentIssues(issues []script.Issue, attemptNumber int) {
	for _, entry := range t.persistent {
		entry.SeenThisIteration = false
	}

	for i := range issues {
		sig := Signature(&issues[i])
		if entry, ok := t.persistent[sig]; ok {
			entry.Count++
			entry.LastSeenAttempt = attemptNumber
			entry.SeenThisIteration = true
			continue
		}
		t.persistent[sig] = &SignatureEntry{
			Signature:         sig,
			Count:             1,
			LastSeenAttempt:   attemptNumber,
			Sample:            issues[i].Clone(),
			SeenThisIteration: true,
		}
	}
}

// calculateImprovementMetrics compares issue counts between the two most
// recent attempts. Non-idempotent: it adds to the running resolved total and
// appends to the rate history, so it runs at most once per new attempt.
func (t *Tracker) calculateImprovementMetrics() {
	prev := len(t.attempts[len(t.attempts)-2].IssuesSnapshot)
	cur := len(t.attempts[len(t.attempts)-1].IssuesSnapshot)

	resolved := prev - cur
	if resolved < 0 {
		resolved = 0
	}
	t.totalResolved += resolved

	var rate float64
	switch {
	case prev == 0:
		rate = 0
	case cur > prev:
		rate = -(float64(cur-prev) / float64(prev)) * 100
	default:
		rate = float64(resolved) / float64(prev) * 100
	}
	t.rates = append(t.rates, rate)
}

// Attempts returns how many refinement iterations have been recorded.
func (t *Tracker) Attempts() int {
	return len(t.attempts)
}

// Records returns a copy of the attempt records in order.
func (t *Tracker) Records() []AttemptRecord {
	return append([]AttemptRecord(nil), t.attempts...)
}

// TotalResolved returns the running total of resolved issues.
func (t *Tracker) TotalResolved() int {
	return t.totalResolved
}

// LatestRate returns the most recently computed improvement rate, if any.
func (t *Tracker) LatestRate() (float64, bool) {
	if len(t.rates) == 0 {
		return 0, false
	}
	return t.rates[len(t.rates)-1], true
}

// PersistentIssues returns entries seen at least minOccurrences times,
// sorted by count descending with ties broken by most recently seen first.
// This ordering controls which issues surface first in the history digest.
func (t *Tracker) PersistentIssues(minOccurrences int) []SignatureEntry {
	if minOccurrences <= 0 {
		minOccurrences = DefaultMinOccurrences
	}

	out := make([]SignatureEntry, 0, len(t.persistent))
	for _, entry := range t.persistent {
		if entry.Count >= minOccurrences {
			out = append(out, *entry)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].LastSeenAttempt > out[j].LastSeenAttempt
	})
	return out
}

// ShouldContinue reports whether another improvement pass is advisable: stop
// once maxAttempts is reached, continue while no attempts exist, otherwise
// stop when the latest improvement rate fell below minRate. Advisory only;
// callers must act on the return value.
func (t *Tracker) ShouldContinue(maxAttempts int, minRate float64) bool {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if len(t.attempts) >= maxAttempts {
		return false
	}
	if len(t.attempts) == 0 {
		return true
	}
	if rate, ok := t.LatestRate(); ok && rate < minRate {
		return false
	}
	return true
}

// Summary builds a prose digest of the run so far, intended for re-injection
// into a later generation prompt: attempt count, the top persistent issues
// with occurrence counts, sampled issues from the most recent attempts, and
// the latest and aggregate improvement rates.
func (t *Tracker) Summary(maxAttemptsToInclude int) string {
	if len(t.attempts) == 0 {
		return "No refinement attempts recorded yet."
	}
	if maxAttemptsToInclude <= 0 {
		maxAttemptsToInclude = 2
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Refinement history: %d attempt(s).\n", len(t.attempts))

	persistent := t.PersistentIssues(DefaultMinOccurrences)
	if len(persistent) > 0 {
		b.WriteString("Recurring issues (most frequent first):\n")
		for i, entry := range persistent {
			if i >= 5 {
				break
			}
			fmt.Fprintf(&b, "- [%s/%s] %s (seen %d times)\n",
				entry.Sample.Category, entry.Sample.Severity, entry.Sample.Description, entry.Count)
		}
	}

	start := len(t.attempts) - maxAttemptsToInclude
	if start < 0 {
		start = 0
	}
	for _, record := range t.attempts[start:] {
		fmt.Fprintf(&b, "Attempt %d (%s): %d issue(s)", record.AttemptNumber, record.SectionID, len(record.IssuesSnapshot))
		if len(record.IssuesSnapshot) > 0 {
			sample := record.IssuesSnapshot[0]
			fmt.Fprintf(&b, "; e.g. [%s] %s", sample.Category, sample.Description)
		}
		b.WriteString("\n")
	}

	if rate, ok := t.LatestRate(); ok {
		fmt.Fprintf(&b, "Latest improvement rate: %.1f%%; %d issue(s) resolved in total", rate, t.totalResolved)
		if avg, ok := t.averageRate(); ok {
			fmt.Fprintf(&b, " (average rate %.1f%%)", avg)
		}
		b.WriteString(".\n")
	}

	return b.String()
}

func (t *Tracker) averageRate() (float64, bool) {
	if len(t.rates) == 0 {
		return 0, false
	}
	var sum float64
	for _, r := range t.rates {
		sum += r
	}
	return sum / float64(len(t.rates)), true
}
