package persistence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptsmith/pkg/script"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.CreateRun("run-1", "mock", 3))

	rec, err := store.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, rec.Status)
	assert.Equal(t, 3, rec.SectionCount)
	assert.Empty(t, rec.FinalText)

	require.NoError(t, store.FinishRun("run-1", RunStatusComplete, "HOST: done."))

	rec, err = store.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusComplete, rec.Status)
	assert.Equal(t, "HOST: done.", rec.FinalText)
}

func TestSaveSectionUpserts(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.CreateRun("run-1", "mock", 1))

	sec := &script.Section{ID: "section-1", Number: "1", Title: "Opening", DurationMinutes: 3}
	require.NoError(t, store.SaveSection("run-1", sec, "draft one", false, 1))
	require.NoError(t, store.SaveSection("run-1", sec, "draft two", true, 2))

	secs, err := store.ListSections("run-1")
	require.NoError(t, err)
	require.Len(t, secs, 1)
	assert.Equal(t, "draft two", secs[0].Text)
	assert.True(t, secs[0].Valid)
	assert.Equal(t, 2, secs[0].Attempts)
}

func TestListSectionsPreservesOrder(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.CreateRun("run-1", "mock", 2))

	for _, sec := range []*script.Section{
		{ID: "section-1", Number: "1", Title: "First"},
		{ID: "section-2", Number: "2", Title: "Second"},
	} {
		require.NoError(t, store.SaveSection("run-1", sec, "text", true, 1))
	}

	secs, err := store.ListSections("run-1")
	require.NoError(t, err)
	require.Len(t, secs, 2)
	assert.Equal(t, "1", secs[0].Number)
	assert.Equal(t, "2", secs[1].Number)
}

func TestSaveAttempt(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.CreateRun("run-1", "mock", 1))

	result := &script.VerificationResult{
		IsValid: false,
		Source:  script.SourceStructured,
		Issues: []script.Issue{{
			Category:    script.CategoryDuration,
			Severity:    script.SeverityCritical,
			Description: "short by 200 words",
		}},
	}
	require.NoError(t, store.SaveAttempt("run-1", "section-1", 1, result, 600))
}

func TestGetRunMissing(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetRun("no-such-run")
	assert.Error(t, err)
}
