package history

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptsmith/pkg/script"
)

func issue(cat script.Category, desc string) script.Issue {
	return script.Issue{
		Category:    cat,
		Severity:    script.SeverityMajor,
		Description: desc,
		Evidence:    "somewhere in the draft",
		Actions:     []string{"rewrite"},
	}
}

func TestAddAttemptCopiesIssues(t *testing.T) {
	tr := NewTracker()
	issues := []script.Issue{issue(script.CategoryCoherence, "tone shifts mid-section")}

	tr.AddAttempt(issues, "draft one", "section-1", nil)

	// Mutating the caller's slice must not be observable in the record.
	issues[0].Description = "mutated"
	issues[0].Actions[0] = "mutated"

	records := tr.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "tone shifts mid-section", records[0].IssuesSnapshot[0].Description)
	assert.Equal(t, "rewrite", records[0].IssuesSnapshot[0].Actions[0])
}

func TestPersistentIssueCountsAreCumulative(t *testing.T) {
	tr := NewTracker()
	recurring := issue(script.CategoryRedundancy, "repeats the storm-surge statistic")
	other := issue(script.CategoryFormat, "missing speaker label")

	tr.AddAttempt([]script.Issue{recurring, other}, "d1", "section-1", nil)
	tr.AddAttempt([]script.Issue{recurring}, "d2", "section-1", nil)
	tr.AddAttempt([]script.Issue{recurring}, "d3", "section-1", nil)

	persistent := tr.PersistentIssues(2)
	require.Len(t, persistent, 1)
	assert.Equal(t, 3, persistent[0].Count)
	assert.Equal(t, 3, persistent[0].LastSeenAttempt)

	// The non-recurring issue keeps its historical count of 1 and stays
	// below the threshold.
	all := tr.PersistentIssues(1)
	assert.Len(t, all, 2)
	for _, entry := range all {
		assert.GreaterOrEqual(t, entry.Count, 1)
	}
}

func TestPersistentIssuesThresholdAndOrdering(t *testing.T) {
	tr := NewTracker()
	a := issue(script.CategoryCoherence, "issue A")
	b := issue(script.CategoryRedundancy, "issue B")
	c := issue(script.CategoryFormat, "issue C")

	tr.AddAttempt([]script.Issue{a, b, c}, "d1", "s", nil)
	tr.AddAttempt([]script.Issue{a, b}, "d2", "s", nil)
	tr.AddAttempt([]script.Issue{a}, "d3", "s", nil)

	got := tr.PersistentIssues(2)
	require.Len(t, got, 2)
	// count desc: A(3) then B(2); no entry below the threshold.
	assert.Equal(t, 3, got[0].Count)
	assert.Equal(t, "issue A", got[0].Sample.Description)
	assert.Equal(t, 2, got[1].Count)
	for _, entry := range got {
		assert.GreaterOrEqual(t, entry.Count, 2)
	}
}

func TestPersistentIssuesTieBreakByRecency(t *testing.T) {
	tr := NewTracker()
	a := issue(script.CategoryCoherence, "issue A")
	b := issue(script.CategoryRedundancy, "issue B")

	tr.AddAttempt([]script.Issue{a, b}, "d1", "s", nil)
	tr.AddAttempt([]script.Issue{a}, "d2", "s", nil)
	tr.AddAttempt([]script.Issue{b}, "d3", "s", nil)

	got := tr.PersistentIssues(2)
	require.Len(t, got, 2)
	// Both have count 2; B was seen more recently (attempt 3).
	assert.Equal(t, "issue B", got[0].Sample.Description)
	assert.Equal(t, "issue A", got[1].Sample.Description)
}

func TestImprovementRatePositive(t *testing.T) {
	tr := NewTracker()
	tr.AddAttempt([]script.Issue{issue("A", "1"), issue("B", "2"), issue("C", "3"), issue("D", "4")}, "d1", "s", nil)
	tr.AddAttempt([]script.Issue{issue("A", "1")}, "d2", "s", nil)

	rate, ok := tr.LatestRate()
	require.True(t, ok)
	assert.InDelta(t, 75.0, rate, 1e-9)
	assert.Equal(t, 3, tr.TotalResolved())
}

func TestImprovementRateRegression(t *testing.T) {
	tr := NewTracker()
	tr.AddAttempt([]script.Issue{issue("A", "1"), issue("B", "2")}, "d1", "s", nil)
	tr.AddAttempt([]script.Issue{issue("A", "1"), issue("B", "2"), issue("C", "3")}, "d2", "s", nil)

	rate, ok := tr.LatestRate()
	require.True(t, ok)
	assert.InDelta(t, -50.0, rate, 1e-9)
	assert.Equal(t, 0, tr.TotalResolved())
}

func TestNoMetricsBeforeSecondAttempt(t *testing.T) {
	tr := NewTracker()
	tr.AddAttempt([]script.Issue{issue("A", "1")}, "d1", "s", nil)

	_, ok := tr.LatestRate()
	assert.False(t, ok)
}

func TestShouldContinue(t *testing.T) {
	tr := NewTracker()
	// No attempts yet: continue.
	assert.True(t, tr.ShouldContinue(3, 10))

	tr.AddAttempt([]script.Issue{issue("A", "1"), issue("B", "2")}, "d1", "s", nil)
	// One attempt, no rate yet: continue.
	assert.True(t, tr.ShouldContinue(3, 10))

	tr.AddAttempt([]script.Issue{issue("A", "1")}, "d2", "s", nil)
	// Rate is 50%, above threshold, attempts below budget: continue.
	assert.True(t, tr.ShouldContinue(3, 10))

	tr.AddAttempt([]script.Issue{issue("A", "1")}, "d3", "s", nil)
	// Attempt budget reached: stop regardless of rate.
	assert.False(t, tr.ShouldContinue(3, 10))
}

func TestShouldContinueStopsOnLowRate(t *testing.T) {
	tr := NewTracker()
	tr.AddAttempt([]script.Issue{issue("A", "1"), issue("B", "2")}, "d1", "s", nil)
	tr.AddAttempt([]script.Issue{issue("A", "1"), issue("B", "2")}, "d2", "s", nil)

	// Rate 0% < 10%: stop even though attempts remain.
	assert.False(t, tr.ShouldContinue(5, 10))
}

func TestSignatureNormalizesWhitespace(t *testing.T) {
	a := issue(script.CategoryCoherence, "tone   shifts\n mid-section")
	b := issue(script.CategoryCoherence, "tone shifts mid-section")
	assert.Equal(t, Signature(&b), Signature(&a))
}

func TestSignatureTruncatesOnRuneBoundaries(t *testing.T) {
	// A description longer than the prefix made of multi-byte runes must not
	// be cut mid-rune.
	long := issue(script.CategoryCoherence, strings.Repeat("приём ", 20))
	sig := Signature(&long)
	assert.True(t, utf8.ValidString(sig))
	assert.Equal(t, Signature(&long), sig)
}

func TestSummaryContents(t *testing.T) {
	tr := NewTracker()
	recurring := issue(script.CategoryDuration, "section runs 200 words short")
	tr.AddAttempt([]script.Issue{recurring, issue("B", "x")}, "d1", "section-2", nil)
	tr.AddAttempt([]script.Issue{recurring}, "d2", "section-2", nil)

	summary := tr.Summary(2)
	assert.Contains(t, summary, "2 attempt(s)")
	assert.Contains(t, summary, "section runs 200 words short")
	assert.Contains(t, summary, "seen 2 times")
	assert.Contains(t, summary, "improvement rate: 50.0%")
	assert.True(t, strings.Contains(summary, "Attempt 2"))
}
