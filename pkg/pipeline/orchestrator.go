// Package pipeline drives end-to-end script generation: it parses the
// outline, generates and refines each section in strict order while
// threading continuity context forward, then runs one whole-document pass
// over cross-section concerns. All mutable run state (issue history,
// continuity context, progress) is owned by the orchestrator and lives only
// for the duration of one run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"scriptsmith/pkg/contextmgr"
	"scriptsmith/pkg/history"
	"scriptsmith/pkg/improve"
	"scriptsmith/pkg/llm"
	metricsmw "scriptsmith/pkg/llm/middleware/metrics"
	"scriptsmith/pkg/logx"
	"scriptsmith/pkg/outline"
	"scriptsmith/pkg/persistence"
	"scriptsmith/pkg/refine"
	"scriptsmith/pkg/script"
	"scriptsmith/pkg/templates"
	"scriptsmith/pkg/textmetrics"
	"scriptsmith/pkg/verify"
)

// ErrCancelled reports cooperative cancellation. It is a distinct outcome:
// the partial result accompanying it is still usable.
var ErrCancelled = errors.New("generation cancelled")

// Request purposes tagged onto completion calls for metrics.
const (
	purposeGenerate = "generate"
	purposeVerify   = "verify"
	purposeImprove  = "improve"
)

// Checkpointer saves intermediate run state. Checkpoint failures are logged
// and never halt generation. A *persistence.Store satisfies this.
type Checkpointer interface {
	CreateRun(runID, model string, sectionCount int) error
	SaveSection(runID string, section *script.Section, text string, valid bool, attempts int) error
	SaveAttempt(runID, sectionID string, attempt int, result *script.VerificationResult, wordCount int) error
	FinishRun(runID, status, finalText string) error
}

// Config carries the tunable knobs of one run.
type Config struct {
	// RunID identifies the run in logs and checkpoints.
	RunID string
	// WPM is the speaking rate used for word targets.
	WPM int
	// MaxAttempts bounds verify calls per refinement loop.
	MaxAttempts int
	// MinImprovementRate is the percentage below which further improvement
	// attempts are judged not worth their cost.
	MinImprovementRate float64
}

func (c *Config) setDefaults() {
	if c.WPM <= 0 {
		c.WPM = textmetrics.DefaultWPM
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = refine.DefaultMaxAttempts
	}
	if c.MinImprovementRate == 0 {
		c.MinImprovementRate = history.DefaultMinImprovementRate
	}
}

// SectionResult is the terminal state of one section's generation.
type SectionResult struct {
	Section  script.Section
	Text     string
	Valid    bool
	Attempts int
	// Issues are the residual findings from the section's last verification.
	Issues []script.Issue
}

// Result is the outcome of one full run.
type Result struct {
	RunID    string
	Text     string
	Sections []SectionResult
	// DocumentValid reports whether the whole-document pass ended valid.
	DocumentValid bool
}

// Orchestrator generates a complete script from an outline document.
type Orchestrator struct {
	client   llm.CompletionClient
	renderer *templates.Renderer
	verifier *verify.Verifier
	improver *improve.Improver
	store    Checkpointer
	cfg      Config
	logger   *logx.Logger

	// OnProgress, when set, receives monotonic composite progress in [0,100].
	OnProgress ProgressFunc
}

// New creates an orchestrator. store may be nil to disable checkpointing.
func New(client llm.CompletionClient, store Checkpointer, cfg Config) (*Orchestrator, error) {
	cfg.setDefaults()
	renderer, err := templates.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}
	return &Orchestrator{
		client:   client,
		renderer: renderer,
		verifier: verify.NewVerifier(client, renderer, cfg.WPM),
		improver: improve.NewImprover(client, renderer, cfg.WPM),
		store:    store,
		cfg:      cfg,
		logger:   logx.NewLogger("pipeline"),
	}, nil
}

// GenerateDocument runs the full pipeline over an outline document. The only
// fatal input condition is an outline with zero sections. Cancellation is
// polled between service calls; on cancellation the partial result is
// returned alongside ErrCancelled.
func (o *Orchestrator) GenerateDocument(ctx context.Context, document string) (*Result, error) {
	sections, err := outline.Parse(document)
	if err != nil {
		return nil, fmt.Errorf("cannot start generation: %w", err)
	}
	o.logger.Info("run %s: %d section(s), %.1f minutes total",
		o.cfg.RunID, len(sections), outline.TotalDuration(sections))

	o.checkpoint(func() error {
		return o.store.CreateRun(o.cfg.RunID, o.client.ModelName(), len(sections))
	})

	progress := newProgressTracker(o.OnProgress)
	progress.emit(0)

	counter, err := textmetrics.NewTokenCounter(o.client.ModelName())
	if err != nil {
		o.logger.Warn("token counter unavailable, using character estimate: %v", err)
	}
	cm := contextmgr.NewContextManager(counter)

	result := &Result{RunID: o.cfg.RunID}
	for i := range sections {
		sec := &sections[i]
		if ctx.Err() != nil {
			return o.cancelled(result)
		}

		sr := o.runSection(ctx, sec, cm, progress, i, len(sections))
		result.Sections = append(result.Sections, sr)
		o.checkpoint(func() error {
			return o.store.SaveSection(o.cfg.RunID, sec, sr.Text, sr.Valid, sr.Attempts)
		})
		if ctx.Err() != nil {
			return o.cancelled(result)
		}

		cm.AddSection(sectionSummary(sec, sr.Text), sr.Text)
		progress.emit(sectionBase(i+1, len(sections)))
	}

	result.Text = assemble(result.Sections)
	docValid, docText, cancelled := o.runDocumentPass(ctx, result.Text, progress)
	result.Text = docText
	result.DocumentValid = docValid
	if cancelled {
		return o.cancelled(result)
	}

	o.checkpoint(func() error {
		return o.store.FinishRun(o.cfg.RunID, persistence.RunStatusComplete, result.Text)
	})
	progress.finish()
	o.logger.Info("run %s: complete, %d words", o.cfg.RunID, textmetrics.WordCount(result.Text))
	return result, nil
}

// runSection generates and refines one section.
func (o *Orchestrator) runSection(ctx context.Context, sec *script.Section,
	cm *contextmgr.ContextManager, progress *progressTracker, i, n int) SectionResult {
	base := sectionBase(i, n)
	share := sectionShare(n)

	draft := o.generateSection(ctx, sec, cm.Render())
	progress.emit(base + share*genWeight)

	tracker := history.NewTracker()
	loop := refine.NewLoop(o.cfg.MaxAttempts)
	loop.OnAttempt = func(attempt int, text string, result *script.VerificationResult) {
		tracker.AddAttempt(result.Issues, text, sec.ID, nil)
		o.checkpoint(func() error {
			return o.store.SaveAttempt(o.cfg.RunID, sec.ID, attempt, result, textmetrics.WordCount(text))
		})
		progress.emit(base + share*(genWeight+(verifyWeight+refineWeight)*float64(attempt)/float64(o.cfg.MaxAttempts)))
	}

	out := loop.Run(ctx, sec.ID, draft,
		func(ctx context.Context, text string) *script.VerificationResult {
			return o.verifier.VerifySection(metricsmw.WithPurpose(ctx, purposeVerify), sec, text)
		},
		func(ctx context.Context, text string, result *script.VerificationResult) (string, bool) {
			if !tracker.ShouldContinue(o.cfg.MaxAttempts, o.cfg.MinImprovementRate) {
				o.logger.Info("%s: improvement rate below threshold, keeping current draft", sec.ID)
				return text, false
			}
			return o.improver.ImproveSection(metricsmw.WithPurpose(ctx, purposeImprove),
				sec, text, result, tracker.Summary(2))
		})

	return SectionResult{
		Section:  *sec,
		Text:     out.Text,
		Valid:    out.Valid,
		Attempts: out.Attempts,
		Issues:   out.Issues,
	}
}

// generateSection produces the first draft of a section. Generation failure
// is recoverable: an empty draft is returned and the refinement loop writes
// the section from the verification feedback instead.
func (o *Orchestrator) generateSection(ctx context.Context, sec *script.Section, continuity string) string {
	prompt, err := o.renderer.Render(templates.SectionGenerationTemplate, &templates.PromptData{
		SectionNumber:     sec.Number,
		SectionTitle:      sec.Title,
		Overview:          sec.Overview,
		DurationMinutes:   sec.DurationMinutes,
		TargetWords:       textmetrics.TargetWords(sec.DurationMinutes, o.cfg.WPM),
		RawContent:        sec.RawContent,
		ContinuityContext: continuity,
	})
	if err != nil {
		o.logger.Error("%s: generation prompt render failed: %v", sec.ID, err)
		return ""
	}

	resp, err := o.client.Complete(metricsmw.WithPurpose(ctx, purposeGenerate), llm.CompletionRequest{
		Messages:    []llm.CompletionMessage{llm.NewUserMessage(prompt)},
		MaxTokens:   llm.DefaultMaxTokens,
		Temperature: llm.TemperatureCreative,
	})
	if err != nil {
		o.logger.Warn("%s: generation failed, refinement starts from empty draft: %v", sec.ID, err)
		return ""
	}
	return improve.Normalize(resp.Content)
}

// runDocumentPass runs the single whole-document refinement loop, scoped to
// cross-section concerns only. Per-section duration is not re-checked.
func (o *Orchestrator) runDocumentPass(ctx context.Context, text string, progress *progressTracker) (valid bool, final string, cancelled bool) {
	loop := refine.NewLoop(o.cfg.MaxAttempts)
	loop.OnAttempt = func(attempt int, attemptText string, result *script.VerificationResult) {
		o.checkpoint(func() error {
			return o.store.SaveAttempt(o.cfg.RunID, "document", attempt, result, textmetrics.WordCount(attemptText))
		})
		progress.emit(sectionsBand + docVerifyBand + docImproveBand*float64(attempt-1)/float64(o.cfg.MaxAttempts))
	}

	out := loop.Run(ctx, "document", text,
		func(ctx context.Context, text string) *script.VerificationResult {
			return o.verifier.VerifyDocument(metricsmw.WithPurpose(ctx, purposeVerify), text)
		},
		func(ctx context.Context, text string, result *script.VerificationResult) (string, bool) {
			return o.improver.ImproveDocument(metricsmw.WithPurpose(ctx, purposeImprove), text, result)
		})
	return out.Valid, out.Text, out.Cancelled
}

// cancelled finalizes a partially complete run.
func (o *Orchestrator) cancelled(result *Result) (*Result, error) {
	result.Text = assemble(result.Sections)
	o.checkpoint(func() error {
		return o.store.FinishRun(o.cfg.RunID, persistence.RunStatusCancelled, result.Text)
	})
	o.logger.Info("run %s: cancelled after %d section(s)", o.cfg.RunID, len(result.Sections))
	return result, ErrCancelled
}

// checkpoint runs one store operation, degrading to a warning on failure.
func (o *Orchestrator) checkpoint(op func() error) {
	if o.store == nil {
		return
	}
	if err := op(); err != nil {
		o.logger.Warn("run %s: checkpoint failed: %v", o.cfg.RunID, err)
	}
}

// sectionSummary builds the one-line continuity summary of a finished section.
func sectionSummary(sec *script.Section, text string) string {
	summary := fmt.Sprintf("%s. %s", sec.Number, sec.Title)
	if sec.Overview != "" {
		summary += ": " + sec.Overview
	}
	return fmt.Sprintf("%s (%d words)", summary, textmetrics.WordCount(text))
}

// assemble joins finished section texts in outline order.
func assemble(sections []SectionResult) string {
	parts := make([]string, 0, len(sections))
	for i := range sections {
		if strings.TrimSpace(sections[i].Text) != "" {
			parts = append(parts, sections[i].Text)
		}
	}
	return strings.Join(parts, "\n\n")
}
