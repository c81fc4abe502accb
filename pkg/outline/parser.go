// Package outline parses a delimited outline document into ordered section
// records. Blocks are separated by a line consisting solely of "---"; each
// block carries a numbered title, a duration, an overview, and optional
// reference blocks that are passed through verbatim.
package outline

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"scriptsmith/pkg/script"
)

// ErrNoSections is returned when the document yields zero sections.
// The pipeline cannot proceed without at least one section.
var ErrNoSections = errors.New("outline contains no sections")

//nolint:gochecknoglobals // Compiled once, read-only
var (
	// separatorRe matches a separator line: only dashes, whitespace-tolerant.
	separatorRe = regexp.MustCompile(`(?m)^\s*---\s*$`)
	// titleRe matches "<number>. <title>" where number is a dotted
	// hierarchical string like "2" or "3.1.4".
	titleRe = regexp.MustCompile(`(?m)^\s*(\d+(?:\.\d+)*)\.\s+(.+?)\s*$`)
	// durationRe matches "Duration: <value> [unit]".
	durationRe = regexp.MustCompile(`(?mi)^\s*Duration:\s*([0-9]+(?:\.[0-9]+)?)\s*([A-Za-z]*)`)
	// overviewRe matches "Overview: <text>".
	overviewRe = regexp.MustCompile(`(?mi)^\s*Overview:\s*(.+?)\s*$`)
)

// Parse splits the document into sections, preserving source order.
// Returns ErrNoSections if no non-empty segment is found.
func Parse(document string) ([]script.Section, error) {
	segments := separatorRe.Split(document, -1)

	sections := make([]script.Section, 0, len(segments))
	for _, segment := range segments {
		if strings.TrimSpace(segment) == "" {
			continue
		}
		n := len(sections) + 1
		sections = append(sections, parseSegment(segment, n))
	}

	if len(sections) == 0 {
		return nil, ErrNoSections
	}
	return sections, nil
}

// parseSegment extracts one section record from a raw block. Missing fields
// degrade instead of failing: a missing title is synthesized, a missing
// duration becomes zero.
func parseSegment(segment string, ordinal int) script.Section {
	sec := script.Section{
		ID:         fmt.Sprintf("section-%d", ordinal),
		RawContent: segment,
	}

	if m := titleRe.FindStringSubmatch(segment); m != nil {
		sec.Number = m[1]
		sec.Title = m[2]
	} else {
		sec.Number = strconv.Itoa(ordinal)
		sec.Title = fmt.Sprintf("Section %d", ordinal)
	}

	if m := durationRe.FindStringSubmatch(segment); m != nil {
		value, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			sec.DurationMinutes = toMinutes(value, m[2])
		}
	}

	if m := overviewRe.FindStringSubmatch(segment); m != nil {
		sec.Overview = m[1]
	}

	return sec
}

// toMinutes converts a duration value to minutes based on its stated unit.
// Absent or minute-like units pass through; second-like units divide by 60;
// unrecognized units are treated as minutes.
func toMinutes(value float64, unit string) float64 {
	switch strings.ToLower(unit) {
	case "", "m", "min", "mins", "minute", "minutes":
		return value
	case "s", "sec", "secs", "second", "seconds":
		return value / 60
	default:
		return value
	}
}

// TotalDuration returns the summed duration of all sections in minutes.
// Reported for observability only; the parser does not enforce any target.
func TotalDuration(sections []script.Section) float64 {
	var total float64
	for i := range sections {
		total += sections[i].DurationMinutes
	}
	return total
}
