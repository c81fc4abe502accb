// Package verify implements the quality-check adapter: it asks the
// completion service to judge a draft, parses or repairs the response, and
// injects authoritative locally measured duration findings. Verification
// never aborts the pipeline; every failure path degrades to a usable result.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"scriptsmith/pkg/llm"
	"scriptsmith/pkg/logx"
	"scriptsmith/pkg/script"
	"scriptsmith/pkg/templates"
	"scriptsmith/pkg/textmetrics"
)

// phase tracks where a verification request is in its lifecycle, for logs.
type phase string

const (
	phaseIdle       phase = "idle"
	phaseRequesting phase = "requesting"
	phaseParsed     phase = "parsed"
	phaseMalformed  phase = "malformed"
	phaseFailed     phase = "failed"
)

// validityKeywords drive the low-confidence heuristic when the service
// response carries no parseable JSON.
//
//nolint:gochecknoglobals // Read-only keyword list
var validityKeywords = []string{"valid", "coherent", "good", "well-structured", "acceptable"}

// Verifier requests quality checks from the completion service.
type Verifier struct {
	client   llm.CompletionClient
	renderer *templates.Renderer
	wpm      int
	logger   *logx.Logger
}

// NewVerifier creates a verifier. A non-positive wpm falls back to the
// default speaking rate.
func NewVerifier(client llm.CompletionClient, renderer *templates.Renderer, wpm int) *Verifier {
	if wpm <= 0 {
		wpm = textmetrics.DefaultWPM
	}
	return &Verifier{
		client:   client,
		renderer: renderer,
		wpm:      wpm,
		logger:   logx.NewLogger("verify"),
	}
}

// wireResult is the JSON shape requested from the service.
type wireResult struct {
	IsValid  bool           `json:"isValid"`
	Feedback string         `json:"feedback"`
	Issues   []script.Issue `json:"issues"`
}

// VerifySection checks one section draft. Word metrics are computed locally
// and are authoritative: out-of-tolerance drafts always carry exactly one
// critical DURATION issue and are never valid, regardless of the service's
// own judgment. Never returns an error.
func (v *Verifier) VerifySection(ctx context.Context, section *script.Section, draft string) *script.VerificationResult {
	actual := textmetrics.WordCount(draft)
	target := textmetrics.TargetWords(section.DurationMinutes, v.wpm)

	prompt, err := v.renderer.Render(templates.SectionVerificationTemplate, &templates.PromptData{
		SectionNumber: section.Number,
		SectionTitle:  section.Title,
		Overview:      section.Overview,
		TargetWords:   target,
		RawContent:    section.RawContent,
		DraftText:     draft,
	})
	if err != nil {
		// A render failure means no service judgment is possible; fall back
		// to local measurement alone.
		v.logger.Warn("prompt render failed for %s: %v", section.ID, err)
		result := v.localFallback(actual, target)
		v.ensureDurationIssue(result, actual, target)
		return result
	}

	result := v.request(ctx, section.ID, prompt, actual, target)
	v.ensureDurationIssue(result, actual, target)
	return result
}

// VerifyDocument runs the cross-section check over the assembled script.
// No duration logic applies here; per-section length was already enforced.
func (v *Verifier) VerifyDocument(ctx context.Context, documentText string) *script.VerificationResult {
	prompt, err := v.renderer.Render(templates.DocumentReviewTemplate, &templates.PromptData{
		DocumentText: documentText,
	})
	if err != nil {
		v.logger.Warn("document review prompt render failed: %v", err)
		return &script.VerificationResult{IsValid: true, Source: script.SourceLocalMetrics,
			Feedback: "document review unavailable; accepting assembled script"}
	}

	result := v.request(ctx, "document", prompt, 0, 0)
	if result.Source == script.SourceLocalMetrics {
		// Transport failure on the document pass: with no word target to
		// fall back on, accept the assembled script as-is.
		result.IsValid = true
	}
	return result
}

// request performs one service call and parses the response, walking the
// Idle -> Requesting -> {Parsed|Malformed|Failed} lifecycle.
func (v *Verifier) request(ctx context.Context, id, prompt string, actual, target int) *script.VerificationResult {
	v.logger.Debug("%s: %s -> %s", id, phaseIdle, phaseRequesting)

	resp, err := v.client.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.CompletionMessage{llm.NewUserMessage(prompt)},
		MaxTokens:   llm.DefaultMaxTokens,
		Temperature: llm.TemperatureJudgment,
	})
	if err != nil {
		v.logger.Warn("%s: verification transport failure (%s): %v", id, phaseFailed, err)
		return v.localFallback(actual, target)
	}

	block, ok := ExtractJSONBlock(resp.Content)
	if !ok {
		v.logger.Warn("%s: no JSON block in verification response (%s)", id, phaseMalformed)
		return v.heuristic(resp.Content)
	}

	var wire wireResult
	if err := json.Unmarshal([]byte(block), &wire); err != nil {
		v.logger.Warn("%s: unparsable verification JSON (%s): %v", id, phaseMalformed, err)
		return v.heuristic(resp.Content)
	}

	var raw map[string]any
	_ = json.Unmarshal([]byte(block), &raw)

	v.logger.Debug("%s: %s, %d issue(s), valid=%t", id, phaseParsed, len(wire.Issues), wire.IsValid)
	return &script.VerificationResult{
		IsValid:  wire.IsValid,
		Feedback: wire.Feedback,
		Issues:   normalizeIssues(wire.Issues),
		Source:   script.SourceStructured,
		Raw:      raw,
	}
}

// localFallback produces the deterministic transport-failure result:
// validity is decided by local word measurement alone.
func (v *Verifier) localFallback(actual, target int) *script.VerificationResult {
	return &script.VerificationResult{
		IsValid:  actual >= target,
		Feedback: fmt.Sprintf("verification service unavailable; local measurement: %d of %d words", actual, target),
		Source:   script.SourceLocalMetrics,
	}
}

// heuristic guesses validity from keywords in a prose response.
// Explicitly lower confidence than a structured result.
func (v *Verifier) heuristic(content string) *script.VerificationResult {
	lower := strings.ToLower(content)
	isValid := false
	for _, kw := range validityKeywords {
		if strings.Contains(lower, kw) {
			isValid = true
			break
		}
	}
	// Negations flip the guess: "not valid", "isn't coherent".
	for _, neg := range []string{"not valid", "invalid", "not coherent", "incoherent", "not good"} {
		if strings.Contains(lower, neg) {
			isValid = false
			break
		}
	}

	feedback := strings.TrimSpace(content)
	if r := []rune(feedback); len(r) > 500 {
		feedback = string(r[:500]) + "..."
	}
	return &script.VerificationResult{
		IsValid:  isValid,
		Feedback: feedback,
		Source:   script.SourceHeuristic,
	}
}

// ensureDurationIssue makes the local measurement authoritative. When the
// draft is within tolerance, service-reported DURATION issues are dropped;
// when it is not, exactly one critical DURATION issue is present and the
// result is invalid, whichever path produced it.
func (v *Verifier) ensureDurationIssue(result *script.VerificationResult, actual, target int) {
	// Service-reported DURATION findings are discarded in both directions:
	// the local measurement alone decides whether one exists.
	if result.HasCategory(script.CategoryDuration) {
		kept := result.Issues[:0]
		for i := range result.Issues {
			if result.Issues[i].Category != script.CategoryDuration {
				kept = append(kept, result.Issues[i])
			}
		}
		result.Issues = kept
	}

	if textmetrics.Compliant(actual, target, v.wpm) {
		return
	}

	delta := textmetrics.DurationDelta(actual, target)
	var description, fix string
	if delta < 0 {
		description = fmt.Sprintf("section is short by %d words (%d of %d)", -delta, actual, target)
		fix = fmt.Sprintf("expand the dialogue with additional substantive exchanges until it reaches approximately %d words; do not pad with filler", target)
	} else {
		description = fmt.Sprintf("section is long by %d words (%d of %d)", delta, actual, target)
		fix = fmt.Sprintf("trim repetition and tangents until the dialogue is approximately %d words", target)
	}
	result.Issues = append(result.Issues, script.Issue{
		Category:    script.CategoryDuration,
		Severity:    script.SeverityCritical,
		Description: description,
		Fix:         fix,
	})
	result.IsValid = false
}

// normalizeIssues canonicalizes service-reported categories and severities.
func normalizeIssues(issues []script.Issue) []script.Issue {
	for i := range issues {
		issues[i].Category = script.Category(strings.ToUpper(strings.TrimSpace(string(issues[i].Category))))
		issues[i].Severity = script.Severity(strings.ToLower(strings.TrimSpace(string(issues[i].Severity))))
	}
	return issues
}
