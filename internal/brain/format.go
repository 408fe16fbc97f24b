package brain

import (
	"fmt"
	"math"
	"strings"

	"github.com/easeaico/brain-agent/internal/memory"
)

// FormatContext renders a Context for a system prompt. Each block appears
// only when it has items.
func FormatContext(c Context) string {
	var parts []string

	if len(c.Mandatory) > 0 {
		parts = append(parts, "## CORE KNOWLEDGE (always active)")
		for _, m := range c.Mandatory {
			parts = append(parts, fmt.Sprintf("[%s] %s", strings.ToUpper(string(m.Type)), m.Content))
		}
	}

	if len(c.Relevant) > 0 {
		parts = append(parts, "\n## RELEVANT CONTEXT")
		for _, m := range c.Relevant {
			sim := ""
			if m.Similarity != 0 {
				sim = fmt.Sprintf(" (%d%%)", percent(m.Similarity))
			}
			parts = append(parts, fmt.Sprintf("[%s%s] %s", m.Type, sim, m.Content))
		}
	}

	if len(c.Errors) > 0 {
		parts = append(parts, "\n## KNOWN ERRORS & SOLUTIONS")
		for _, e := range c.Errors {
			parts = append(parts,
				fmt.Sprintf("Error: %s - %s", e.ErrorType, e.ErrorMessage),
				"Solution: "+e.Solution,
			)
		}
	}

	return strings.Join(parts, "\n")
}

// FormatRelevantLines renders search hits as a compact bullet list.
func FormatRelevantLines(memories []memory.Memory) string {
	lines := make([]string, 0, len(memories))
	for _, m := range memories {
		lines = append(lines, fmt.Sprintf("- %s (Relevance: %d%%)", m.Content, percent(m.Similarity)))
	}
	return strings.Join(lines, "\n")
}

func percent(similarity float64) int {
	return int(math.Round(similarity * 100))
}
