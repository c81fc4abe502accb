package improve

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptsmith/pkg/llm"
	"scriptsmith/pkg/llm/llmerrors"
	"scriptsmith/pkg/script"
	"scriptsmith/pkg/templates"
)

func newTestImprover(t *testing.T, client llm.CompletionClient) *Improver {
	t.Helper()
	renderer, err := templates.NewRenderer()
	require.NoError(t, err)
	return NewImprover(client, renderer, 160)
}

func testSection() *script.Section {
	return &script.Section{
		ID:              "section-1",
		Number:          "1",
		Title:           "The Calm Before",
		DurationMinutes: 3,
	}
}

const existingDraft = "HOST: The harbor was quiet that morning.\nGUEST: Too quiet, as it turned out."

func invalidResult() *script.VerificationResult {
	return &script.VerificationResult{
		IsValid:  false,
		Feedback: "pacing sags",
		Issues: []script.Issue{{
			Category:    script.CategoryCoherence,
			Severity:    script.SeverityMajor,
			Description: "the middle loses the thread",
			Evidence:    "paragraph three",
			Fix:         "restate the stakes",
		}},
	}
}

func TestImproveSectionAcceptsRewrite(t *testing.T) {
	client := llm.NewMockClient([]llm.CompletionResponse{{
		Content: "```\nHOST: The harbor was silent that morning.\nGUEST: Silent, and that worried everyone.\n```",
	}}, nil)
	im := newTestImprover(t, client)

	got, changed := im.ImproveSection(context.Background(), testSection(), existingDraft, invalidResult(), "")
	assert.True(t, changed)
	assert.Equal(t, "HOST: The harbor was silent that morning.\nGUEST: Silent, and that worried everyone.", got)
	assert.NotContains(t, got, "```")
}

func TestImproveSectionPromptCarriesFeedback(t *testing.T) {
	client := llm.NewMockClient([]llm.CompletionResponse{{Content: "HOST: Revised."}}, nil)
	im := newTestImprover(t, client)

	im.ImproveSection(context.Background(), testSection(), existingDraft, invalidResult(), "DURATION seen 2 times")

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	prompt := reqs[0].Messages[0].Content
	assert.Contains(t, prompt, "the middle loses the thread")
	assert.Contains(t, prompt, "restate the stakes")
	assert.Contains(t, prompt, "DURATION seen 2 times")
	assert.Contains(t, prompt, "480 words") // 3 minutes at 160 wpm
}

func TestImproveSectionTransportFailureKeepsDraft(t *testing.T) {
	client := llm.NewMockClient(nil, []error{
		llmerrors.NewError(llmerrors.ErrorTypeTransient, "boom"),
	})
	im := newTestImprover(t, client)

	got, changed := im.ImproveSection(context.Background(), testSection(), existingDraft, invalidResult(), "")
	assert.False(t, changed)
	assert.Equal(t, existingDraft, got)
}

func TestImproveSectionUnchangedRewriteSignalsNoProgress(t *testing.T) {
	// The service returns the input draft verbatim, fences and all.
	client := llm.NewMockClient([]llm.CompletionResponse{{
		Content: "```\n" + existingDraft + "\n```",
	}}, nil)
	im := newTestImprover(t, client)

	got, changed := im.ImproveSection(context.Background(), testSection(), existingDraft, invalidResult(), "")
	assert.False(t, changed)
	assert.Equal(t, Normalize(existingDraft), got)
}

func TestImproveSectionEmptyResponseKeepsDraft(t *testing.T) {
	client := llm.NewMockClient([]llm.CompletionResponse{{Content: "```\n```"}}, nil)
	im := newTestImprover(t, client)

	got, changed := im.ImproveSection(context.Background(), testSection(), existingDraft, invalidResult(), "")
	assert.False(t, changed)
	assert.Equal(t, existingDraft, got)
}

func TestImproveDocument(t *testing.T) {
	doc := "HOST: Section one.\nGUEST: Section two."
	client := llm.NewMockClient([]llm.CompletionResponse{{
		Content: "HOST: Section one, tightened.\nGUEST: Section two.",
	}}, nil)
	im := newTestImprover(t, client)

	got, changed := im.ImproveDocument(context.Background(), doc, &script.VerificationResult{
		Feedback: "sections repeat the intro",
	})
	assert.True(t, changed)
	assert.Contains(t, got, "tightened")

	prompt := client.Requests()[0].Messages[0].Content
	assert.Contains(t, prompt, "sections repeat the intro")
}

func TestFormatFeedback(t *testing.T) {
	t.Run("structured issues preferred", func(t *testing.T) {
		got := FormatFeedback(invalidResult())
		assert.True(t, strings.HasPrefix(got, "- [COHERENCE/major]"))
		assert.Contains(t, got, "evidence: paragraph three")
		assert.Contains(t, got, "Fix: restate the stakes")
	})
	t.Run("free text fallback", func(t *testing.T) {
		got := FormatFeedback(&script.VerificationResult{Feedback: "just feels flat"})
		assert.Equal(t, "just feels flat", got)
	})
	t.Run("nothing reported", func(t *testing.T) {
		got := FormatFeedback(&script.VerificationResult{})
		assert.Contains(t, got, "No specific problems reported")
	})
}
