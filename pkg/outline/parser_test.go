package outline

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOutline = `1. The Calm Before
Duration: 3 minutes
Overview: Setting the scene on the coast.
KEY FACTS:
- Barometric pressure drops sharply before landfall.
---
2. Landfall
Duration: 5
Overview: The storm arrives.
UNIQUE FOCUS: eyewall dynamics
---
2.1. Aftermath
Duration: 120 seconds
Overview: Counting the cost.
`

func TestParseCountAndOrder(t *testing.T) {
	sections, err := Parse(sampleOutline)
	require.NoError(t, err)
	require.Len(t, sections, 3)

	assert.Equal(t, "1", sections[0].Number)
	assert.Equal(t, "The Calm Before", sections[0].Title)
	assert.Equal(t, "2", sections[1].Number)
	assert.Equal(t, "Landfall", sections[1].Title)
	assert.Equal(t, "2.1", sections[2].Number)
	assert.Equal(t, "Aftermath", sections[2].Title)
}

func TestParseDurationUnits(t *testing.T) {
	sections, err := Parse(sampleOutline)
	require.NoError(t, err)

	assert.InDelta(t, 3.0, sections[0].DurationMinutes, 1e-9)  // explicit minutes
	assert.InDelta(t, 5.0, sections[1].DurationMinutes, 1e-9)  // unit-less defaults to minutes
	assert.InDelta(t, 2.0, sections[2].DurationMinutes, 1e-9)  // seconds divided by 60
}

func TestParseUnrecognizedUnitTreatedAsMinutes(t *testing.T) {
	sections, err := Parse("1. Odd\nDuration: 4 parsecs\nOverview: strange units.")
	require.NoError(t, err)
	assert.InDelta(t, 4.0, sections[0].DurationMinutes, 1e-9)
}

func TestParseOverviewAndRawContent(t *testing.T) {
	sections, err := Parse(sampleOutline)
	require.NoError(t, err)

	assert.Equal(t, "Setting the scene on the coast.", sections[0].Overview)
	assert.Contains(t, sections[0].RawContent, "KEY FACTS:")
	assert.Contains(t, sections[1].RawContent, "UNIQUE FOCUS: eyewall dynamics")
}

func TestParseMissingFields(t *testing.T) {
	sections, err := Parse("just a blob of text without structure")
	require.NoError(t, err)
	require.Len(t, sections, 1)

	assert.Equal(t, "Section 1", sections[0].Title)
	assert.Zero(t, sections[0].DurationMinutes)
	assert.Empty(t, sections[0].Overview)
}

func TestParseEmptyDocumentFatal(t *testing.T) {
	_, err := Parse("")
	assert.ErrorIs(t, err, ErrNoSections)

	_, err = Parse("---\n---\n   \n---")
	assert.ErrorIs(t, err, ErrNoSections)
}

func TestParseKSegments(t *testing.T) {
	for _, k := range []int{1, 2, 7, 25} {
		var b strings.Builder
		for i := 1; i <= k; i++ {
			if i > 1 {
				b.WriteString("\n---\n")
			}
			fmt.Fprintf(&b, "%d. Part %d\nDuration: %d minutes\nOverview: part %d.\n", i, i, i, i)
		}
		sections, err := Parse(b.String())
		require.NoError(t, err)
		require.Len(t, sections, k, "expected %d sections", k)
		for i := range sections {
			assert.Equal(t, fmt.Sprintf("Part %d", i+1), sections[i].Title)
		}
	}
}

func TestSeparatorWhitespaceTolerant(t *testing.T) {
	sections, err := Parse("1. A\nDuration: 1\n  ---  \n2. B\nDuration: 2\n")
	require.NoError(t, err)
	assert.Len(t, sections, 2)
}

func TestTotalDuration(t *testing.T) {
	sections, err := Parse(sampleOutline)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, TotalDuration(sections), 1e-9)
}
