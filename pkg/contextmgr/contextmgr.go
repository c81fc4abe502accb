// Package contextmgr manages the rolling continuity context threaded from
// each finished section into the next section's generation prompt: a bounded
// tail of recent dialogue, an append-only list of per-section summaries, and
// a deduplicated topic set.
package contextmgr

import (
	"fmt"
	"regexp"
	"strings"

	"scriptsmith/pkg/textmetrics"
)

// DefaultTailExchanges is how many trailing dialogue lines are carried forward.
const DefaultTailExchanges = 6

// DefaultTokenBudget caps the rendered continuity context.
const DefaultTokenBudget = 2000

//nolint:gochecknoglobals // Compiled once, read-only
var speakerLineRe = regexp.MustCompile(`^[A-Z][\w .\-']{0,40}:`)

// ContextManager accumulates continuity context across sections.
// Owned exclusively by the orchestrator; not safe for concurrent use.
type ContextManager struct {
	summaries     []string
	topics        []string
	topicSeen     map[string]bool
	dialogueTail  []string
	tailExchanges int
	tokenBudget   int
	counter       *textmetrics.TokenCounter
}

// NewContextManager creates an empty continuity context.
// counter may be nil, in which case token budgeting falls back to character
// estimation.
func NewContextManager(counter *textmetrics.TokenCounter) *ContextManager {
	return &ContextManager{
		topicSeen:     make(map[string]bool),
		tailExchanges: DefaultTailExchanges,
		tokenBudget:   DefaultTokenBudget,
		counter:       counter,
	}
}

// SetTailExchanges overrides how many trailing dialogue lines are retained.
func (cm *ContextManager) SetTailExchanges(n int) {
	if n > 0 {
		cm.tailExchanges = n
	}
}

// SetTokenBudget overrides the context token budget.
func (cm *ContextManager) SetTokenBudget(n int) {
	if n > 0 {
		cm.tokenBudget = n
	}
}

// AddSection folds a finished section into the context: its summary is
// appended, its topic lines are unioned into the topic set, and the dialogue
// tail is replaced with the section's trailing exchanges.
func (cm *ContextManager) AddSection(summary, sectionText string) {
	if strings.TrimSpace(summary) != "" {
		cm.summaries = append(cm.summaries, strings.TrimSpace(summary))
	}
	cm.addTopicsFrom(sectionText)
	cm.updateTail(sectionText)
}

// addTopicsFrom unions line-level topics from the text. Deduplication is
// case- and whitespace-insensitive; the first spelling seen is kept.
func (cm *ContextManager) addTopicsFrom(text string) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = speakerLineRe.ReplaceAllString(line, "")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key := strings.Join(strings.Fields(strings.ToLower(line)), " ")
		if cm.topicSeen[key] {
			continue
		}
		cm.topicSeen[key] = true
		cm.topics = append(cm.topics, line)
	}
}

// updateTail keeps the last tailExchanges speaker lines of the section.
func (cm *ContextManager) updateTail(text string) {
	var speakerLines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && speakerLineRe.MatchString(line) {
			speakerLines = append(speakerLines, line)
		}
	}
	if len(speakerLines) > cm.tailExchanges {
		speakerLines = speakerLines[len(speakerLines)-cm.tailExchanges:]
	}
	cm.dialogueTail = speakerLines
}

// Summaries returns a copy of the per-section summaries in order.
func (cm *ContextManager) Summaries() []string {
	return append([]string(nil), cm.summaries...)
}

// TopicCount returns the number of distinct topics recorded.
func (cm *ContextManager) TopicCount() int {
	return len(cm.topics)
}

// DialogueTail returns a copy of the retained trailing exchanges.
func (cm *ContextManager) DialogueTail() []string {
	return append([]string(nil), cm.dialogueTail...)
}

// Render builds the continuity block for a generation prompt, truncated to
// the token budget. Summaries come first (oldest to newest), then the topic
// digest, then the dialogue tail that the next section must continue from.
func (cm *ContextManager) Render() string {
	if len(cm.summaries) == 0 && len(cm.dialogueTail) == 0 {
		return ""
	}

	var b strings.Builder
	if len(cm.summaries) > 0 {
		b.WriteString("Previous sections:\n")
		for i, s := range cm.summaries {
			fmt.Fprintf(&b, "%d. %s\n", i+1, s)
		}
	}
	if len(cm.topics) > 0 {
		b.WriteString("\nTopics already covered (do not repeat):\n")
		// The most recent topics matter most; cap the list rather than
		// letting it crowd out the dialogue tail.
		topics := cm.topics
		if len(topics) > 40 {
			topics = topics[len(topics)-40:]
		}
		for _, topic := range topics {
			b.WriteString("- " + topic + "\n")
		}
	}
	if len(cm.dialogueTail) > 0 {
		b.WriteString("\nThe script currently ends with:\n")
		for _, line := range cm.dialogueTail {
			b.WriteString(line + "\n")
		}
	}

	return cm.counter.TruncateToTokenLimit(b.String(), cm.tokenBudget)
}
