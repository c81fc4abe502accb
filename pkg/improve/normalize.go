package improve

import (
	"strings"
	"unicode"
)

// labelState tracks the per-line scan over a candidate speaker label.
type labelState int

const (
	stateBeforeLabel labelState = iota // leading whitespace and emphasis markers
	stateInLabel                       // accumulating label runes up to the colon
	stateInDialogue                    // past the colon
)

const maxLabelRunes = 41

// formatArtifacts are language names models sometimes leave on their own
// line after a code fence.
//
//nolint:gochecknoglobals // Read-only lookup set
var formatArtifacts = map[string]struct{}{
	"markdown":  {},
	"md":        {},
	"text":      {},
	"plaintext": {},
}

// Normalize cleans a service-produced rewrite into plain dialogue form:
// code fence lines and their stray language names are dropped, lines that
// are nothing but a bracketed stage direction are dropped, speaker label
// spacing and emphasis are repaired, and blank runs collapse to one blank
// line. Normalize(Normalize(t)) == Normalize(t) for all t.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var out []string
	blankPending := false
	prevWasFence := false
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)

		switch {
		case isFenceLine(line):
			prevWasFence = true
			continue
		case prevWasFence && isFormatArtifact(line):
			prevWasFence = false
			continue
		}
		prevWasFence = false

		if line == "" {
			if len(out) > 0 {
				blankPending = true
			}
			continue
		}
		if isStageDirectionLine(line) {
			continue
		}

		if blankPending {
			out = append(out, "")
			blankPending = false
		}
		out = append(out, normalizeLine(line))
	}
	return strings.Join(out, "\n")
}

// isFenceLine reports whether a trimmed line opens or closes a code fence,
// with or without an attached language name.
func isFenceLine(line string) bool {
	if !strings.HasPrefix(line, "```") {
		return false
	}
	for _, r := range line[3:] {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func isFormatArtifact(line string) bool {
	_, ok := formatArtifacts[strings.ToLower(line)]
	return ok
}

// isStageDirectionLine reports whether a trimmed line is nothing but one
// bracketed or parenthesized direction, like "[intro music]" or "(laughs)".
func isStageDirectionLine(line string) bool {
	if len(line) < 2 {
		return false
	}
	open, shut := line[0], line[len(line)-1]
	if (open != '[' || shut != ']') && (open != '(' || shut != ')') {
		return false
	}
	inner := line[1 : len(line)-1]
	return !strings.ContainsAny(inner, "[]()")
}

// normalizeLine repairs a speaker label at the start of a line: emphasis
// markers around the label are removed and the colon is followed by exactly
// one space. A line with no parseable label is returned as-is.
func normalizeLine(line string) string {
	var label strings.Builder
	state := stateBeforeLabel
	runes := []rune(line)

	i := 0
scan:
	for ; i < len(runes); i++ {
		r := runes[i]
		switch state {
		case stateBeforeLabel:
			if r == '*' || r == '_' || r == ' ' || r == '\t' {
				continue
			}
			if !unicode.IsUpper(r) {
				return line
			}
			state = stateInLabel
			label.WriteRune(r)
		case stateInLabel:
			if r == ':' {
				state = stateInDialogue
				continue
			}
			if label.Len() >= maxLabelRunes {
				return line
			}
			if unicode.IsLetter(r) || unicode.IsDigit(r) ||
				r == ' ' || r == '.' || r == '-' || r == '\'' {
				label.WriteRune(r)
				continue
			}
			return line
		case stateInDialogue:
			if r == '*' || r == '_' || r == ' ' || r == '\t' {
				continue
			}
			break scan
		}
	}
	if state != stateInDialogue {
		return line
	}

	name := strings.TrimRight(label.String(), " ")
	rest := strings.TrimSpace(string(runes[i:]))
	if rest == "" {
		return name + ":"
	}
	return name + ": " + rest
}
