package contextmgr

import (
	"strings"
	"testing"
)

const sectionText = `HOST: The barometer fell all morning.
GUEST: Classic sign of an approaching system.
HOST: And the harbor emptied out by noon.
GUEST: Nobody wanted to be on the water.`

func TestAddSectionAccumulatesSummaries(t *testing.T) {
	cm := NewContextManager(nil)
	cm.AddSection("The calm before the storm.", sectionText)
	cm.AddSection("Landfall at dawn.", "HOST: It hit at six.")

	summaries := cm.Summaries()
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0] != "The calm before the storm." {
		t.Errorf("summaries out of order: %q", summaries[0])
	}
}

func TestTopicDeduplication(t *testing.T) {
	cm := NewContextManager(nil)
	cm.AddSection("s1", "HOST: The barometer fell all morning.")
	before := cm.TopicCount()

	// Same topic with different case and spacing must not add an entry.
	cm.AddSection("s2", "GUEST: the  BAROMETER fell ALL morning.")
	if cm.TopicCount() != before {
		t.Errorf("expected dedup to hold topic count at %d, got %d", before, cm.TopicCount())
	}

	cm.AddSection("s3", "HOST: A completely new topic.")
	if cm.TopicCount() != before+1 {
		t.Errorf("expected a new topic to be recorded")
	}
}

func TestDialogueTailBounded(t *testing.T) {
	cm := NewContextManager(nil)
	cm.SetTailExchanges(2)
	cm.AddSection("s1", sectionText)

	tail := cm.DialogueTail()
	if len(tail) != 2 {
		t.Fatalf("expected tail of 2 lines, got %d", len(tail))
	}
	if !strings.HasPrefix(tail[0], "HOST: And the harbor") {
		t.Errorf("tail should keep the most recent exchanges, got %q", tail[0])
	}
}

func TestTailReplacedPerSection(t *testing.T) {
	cm := NewContextManager(nil)
	cm.AddSection("s1", sectionText)
	cm.AddSection("s2", "HOST: A fresh ending line.")

	tail := cm.DialogueTail()
	if len(tail) != 1 || tail[0] != "HOST: A fresh ending line." {
		t.Errorf("tail should reflect only the latest section, got %v", tail)
	}
}

func TestRenderEmpty(t *testing.T) {
	cm := NewContextManager(nil)
	if cm.Render() != "" {
		t.Error("empty context should render to empty string")
	}
}

func TestRenderContainsAllParts(t *testing.T) {
	cm := NewContextManager(nil)
	cm.AddSection("The calm before the storm.", sectionText)

	rendered := cm.Render()
	for _, want := range []string{
		"Previous sections:",
		"The calm before the storm.",
		"Topics already covered",
		"The script currently ends with:",
		"GUEST: Nobody wanted to be on the water.",
	} {
		if !strings.Contains(rendered, want) {
			t.Errorf("rendered context missing %q", want)
		}
	}
}

func TestRenderRespectsTokenBudget(t *testing.T) {
	cm := NewContextManager(nil)
	cm.SetTokenBudget(20)
	long := strings.Repeat("HOST: Another line about a distinct topic number.\n", 100)
	cm.AddSection("long section", long)

	rendered := cm.Render()
	// Character-based fallback estimates 4 chars per token.
	if len(rendered) > 20*4+3 {
		t.Errorf("rendered context exceeds budget: %d chars", len(rendered))
	}
}
