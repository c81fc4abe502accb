// Package textmetrics provides word counting and duration/word conversions
// for dialogue scripts, plus tokenizer-based token counting for context
// budgeting.
package textmetrics

import (
	"math"
	"regexp"
	"strings"
)

// DefaultWPM is the assumed speaking rate in words per minute.
const DefaultWPM = 160

//nolint:gochecknoglobals // Compiled once, read-only
var (
	// speakerLabelRe matches a leading speaker label like "HOST:" or "Dr. Chen:".
	speakerLabelRe = regexp.MustCompile(`^[A-Z][\w .\-']{0,40}:\s*`)
	// stageDirectionRe matches bracketed or parenthesized stage directions.
	stageDirectionRe = regexp.MustCompile(`\[[^\[\]]*\]|\([^()]*\)`)
	// separatorLineRe matches lines made only of separator punctuation.
	separatorLineRe = regexp.MustCompile(`^[\s\-=_*~#]+$`)
	// wordTokenRe matches word-like tokens: letters/digits with optional
	// internal apostrophes ("don't", "o'clock").
	wordTokenRe = regexp.MustCompile(`[\p{L}\p{N}]+(?:'[\p{L}\p{N}]+)*`)
	// whitespaceRe collapses runs of whitespace.
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Normalize reduces script text to its spoken content: line endings are
// unified, separator-only lines dropped, speaker labels and stage directions
// stripped, and whitespace collapsed. Idempotent: Normalize(Normalize(t)) ==
// Normalize(t).
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if separatorLineRe.MatchString(line) {
			continue
		}
		line = stripSpeakerLabels(strings.TrimSpace(line))
		line = stageDirectionRe.ReplaceAllString(line, " ")
		line = strings.TrimSpace(whitespaceRe.ReplaceAllString(line, " "))
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// stripSpeakerLabels removes leading colon-terminated speaker labels from a
// line. Stripping runs to a fixed point: when the content behind a label is
// itself label-shaped ("HOST: Warning: ..."), every such prefix is consumed in
// one call, so re-normalizing already-normalized text can never uncover a
// fresh label and shift the word count.
func stripSpeakerLabels(line string) string {
	for {
		m := speakerLabelRe.FindString(line)
		if m == "" {
			return line
		}
		line = line[len(m):]
	}
}

// WordCount counts word-like tokens in the spoken content of text.
// Pure and deterministic; counting normalized text yields the same result.
func WordCount(text string) int {
	return len(wordTokenRe.FindAllString(Normalize(text), -1))
}

// TargetWords converts a duration in minutes to a word target at the given
// speaking rate. A non-positive wpm falls back to DefaultWPM.
func TargetWords(durationMinutes float64, wpm int) int {
	if wpm <= 0 {
		wpm = DefaultWPM
	}
	return int(math.Round(durationMinutes * float64(wpm)))
}

// DurationDelta returns the signed difference between actual and target word
// counts. Positive means the draft runs long.
func DurationDelta(actual, target int) int {
	return actual - target
}

// Tolerance returns the allowed absolute word-count deviation: half a
// minute's worth of words at the given rate.
func Tolerance(wpm int) int {
	if wpm <= 0 {
		wpm = DefaultWPM
	}
	return wpm / 2
}

// Compliant reports whether actual is within tolerance of target.
func Compliant(actual, target, wpm int) bool {
	delta := DurationDelta(actual, target)
	if delta < 0 {
		delta = -delta
	}
	return delta <= Tolerance(wpm)
}
