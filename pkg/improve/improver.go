// Package improve implements the rewrite adapter: it asks the completion
// service for a targeted revision of a draft and normalizes the response
// into plain dialogue form. Improvement never aborts the pipeline; on any
// failure the original text comes back unchanged.
package improve

import (
	"context"
	"fmt"
	"strings"

	"scriptsmith/pkg/llm"
	"scriptsmith/pkg/logx"
	"scriptsmith/pkg/script"
	"scriptsmith/pkg/templates"
	"scriptsmith/pkg/textmetrics"
)

// Improver requests targeted rewrites from the completion service.
type Improver struct {
	client   llm.CompletionClient
	renderer *templates.Renderer
	wpm      int
	logger   *logx.Logger
}

// NewImprover creates an improver. A non-positive wpm falls back to the
// default speaking rate.
func NewImprover(client llm.CompletionClient, renderer *templates.Renderer, wpm int) *Improver {
	if wpm <= 0 {
		wpm = textmetrics.DefaultWPM
	}
	return &Improver{
		client:   client,
		renderer: renderer,
		wpm:      wpm,
		logger:   logx.NewLogger("improve"),
	}
}

// ImproveSection requests a rewrite of one section draft. The returned text
// is normalized; changed is false when the rewrite is string-equal to the
// normalized input, which callers must treat as a terminal no-progress
// signal. Service failures are recoverable: the original draft comes back
// with changed == false.
func (im *Improver) ImproveSection(ctx context.Context, section *script.Section, draft string,
	result *script.VerificationResult, historyDigest string) (string, bool) {
	prompt, err := im.renderer.Render(templates.SectionImprovementTemplate, &templates.PromptData{
		SectionNumber: section.Number,
		SectionTitle:  section.Title,
		TargetWords:   textmetrics.TargetWords(section.DurationMinutes, im.wpm),
		DraftText:     draft,
		Feedback:      FormatFeedback(result),
		HistoryDigest: historyDigest,
	})
	if err != nil {
		im.logger.Warn("improvement prompt render failed for %s: %v", section.ID, err)
		return draft, false
	}
	return im.rewrite(ctx, section.ID, prompt, draft)
}

// ImproveDocument requests a cross-section rewrite of the assembled script.
func (im *Improver) ImproveDocument(ctx context.Context, documentText string,
	result *script.VerificationResult) (string, bool) {
	prompt, err := im.renderer.Render(templates.DocumentImprovementTemplate, &templates.PromptData{
		DocumentText: documentText,
		Feedback:     FormatFeedback(result),
	})
	if err != nil {
		im.logger.Warn("document improvement prompt render failed: %v", err)
		return documentText, false
	}
	return im.rewrite(ctx, "document", prompt, documentText)
}

// rewrite performs one service call and normalizes its output. Empty
// responses and transport failures both leave the original untouched.
func (im *Improver) rewrite(ctx context.Context, id, prompt, original string) (string, bool) {
	resp, err := im.client.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.CompletionMessage{llm.NewUserMessage(prompt)},
		MaxTokens:   llm.DefaultMaxTokens,
		Temperature: llm.TemperatureCreative,
	})
	if err != nil {
		im.logger.Warn("%s: improvement transport failure, keeping current text: %v", id, err)
		return original, false
	}

	revised := Normalize(resp.Content)
	if revised == "" {
		im.logger.Warn("%s: empty improvement response, keeping current text", id)
		return original, false
	}

	if revised == Normalize(original) {
		im.logger.Info("%s: rewrite identical to input, no further progress", id)
		return revised, false
	}
	im.logger.Debug("%s: rewrite accepted, %d -> %d words", id,
		textmetrics.WordCount(original), textmetrics.WordCount(revised))
	return revised, true
}

// FormatFeedback flattens a verification result into the prompt's problem
// list. Structured issues are preferred; free-text feedback is the backstop.
func FormatFeedback(result *script.VerificationResult) string {
	if result == nil {
		return "No specific problems reported; tighten the writing generally."
	}
	if len(result.Issues) == 0 {
		if strings.TrimSpace(result.Feedback) != "" {
			return result.Feedback
		}
		return "No specific problems reported; tighten the writing generally."
	}

	var b strings.Builder
	for i := range result.Issues {
		is := &result.Issues[i]
		fmt.Fprintf(&b, "- [%s/%s] %s", is.Category, is.Severity, is.Description)
		if is.Evidence != "" {
			fmt.Fprintf(&b, " (evidence: %s)", is.Evidence)
		}
		if is.Fix != "" {
			fmt.Fprintf(&b, "\n  Fix: %s", is.Fix)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
