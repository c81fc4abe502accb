// Package refine runs the bounded verify/improve cycle that polishes one
// piece of text. The same loop drives both single-section drafts and the
// assembled whole-script pass; callers supply the verify and improve steps.
package refine

import (
	"context"

	"scriptsmith/pkg/logx"
	"scriptsmith/pkg/script"
)

// State identifies where the loop is in its lifecycle, for logs and tests.
type State string

const (
	StateGenerated State = "GENERATED"
	StateVerifying State = "VERIFYING"
	StateImproving State = "IMPROVING"
	StateDone      State = "DONE"
)

// DefaultMaxAttempts bounds verify calls per loop run.
const DefaultMaxAttempts = 3

// VerifyFunc judges the current text. Implementations never return nil.
type VerifyFunc func(ctx context.Context, text string) *script.VerificationResult

// ImproveFunc rewrites the current text against a verification result.
// changed reports whether the rewrite materially differs from the input.
type ImproveFunc func(ctx context.Context, text string, result *script.VerificationResult) (string, bool)

// AttemptFunc observes each completed verification, in order.
type AttemptFunc func(attempt int, text string, result *script.VerificationResult)

// Loop is a reusable bounded refinement cycle.
type Loop struct {
	maxAttempts int
	logger      *logx.Logger

	// OnAttempt, when set, fires after every verify call.
	OnAttempt AttemptFunc
}

// NewLoop creates a loop bounded to maxAttempts verify calls; non-positive
// values fall back to the default.
func NewLoop(maxAttempts int) *Loop {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Loop{
		maxAttempts: maxAttempts,
		logger:      logx.NewLogger("refine"),
	}
}

// Outcome is the terminal state of one loop run.
type Outcome struct {
	// Text is the best text produced, valid or not.
	Text string
	// Valid reports whether the final verification passed.
	Valid bool
	// Attempts counts verify calls performed.
	Attempts int
	// Issues are the residual findings from the last verification.
	Issues []script.Issue
	// LastResult is the final verification result in full.
	LastResult *script.VerificationResult
	// NoProgress is true when an unchanged rewrite ended the run early.
	NoProgress bool
	// Cancelled is true when the context ended the run between steps.
	Cancelled bool
}

// Run refines text until it verifies, the attempt budget runs out, or an
// improvement makes no progress. It performs at most maxAttempts verify
// calls. Cancellation is polled between steps; an in-flight call is never
// aborted, its result is simply the last one used.
func (l *Loop) Run(ctx context.Context, id, text string, verify VerifyFunc, improve ImproveFunc) *Outcome {
	out := &Outcome{Text: text}
	state := StateGenerated

	for out.Attempts < l.maxAttempts {
		if ctx.Err() != nil {
			out.Cancelled = true
			break
		}

		l.logger.Debug("%s: %s -> %s (attempt %d/%d)", id, state, StateVerifying, out.Attempts+1, l.maxAttempts)
		state = StateVerifying
		result := verify(ctx, out.Text)
		out.Attempts++
		out.LastResult = result
		out.Issues = script.CloneIssues(result.Issues)
		if l.OnAttempt != nil {
			l.OnAttempt(out.Attempts, out.Text, result)
		}

		if result.IsValid {
			out.Valid = true
			l.logger.Info("%s: valid after %d attempt(s)", id, out.Attempts)
			break
		}
		if out.Attempts >= l.maxAttempts {
			l.logger.Info("%s: attempt budget exhausted with %d residual issue(s)", id, len(out.Issues))
			break
		}
		if ctx.Err() != nil {
			out.Cancelled = true
			break
		}

		l.logger.Debug("%s: %s -> %s", id, state, StateImproving)
		state = StateImproving
		revised, changed := improve(ctx, out.Text, result)
		if !changed {
			out.NoProgress = true
			out.Text = revised
			l.logger.Info("%s: rewrite made no progress, stopping with %d residual issue(s)", id, len(out.Issues))
			break
		}
		out.Text = revised
	}

	l.logger.Debug("%s: %s -> %s", id, state, StateDone)
	return out
}
