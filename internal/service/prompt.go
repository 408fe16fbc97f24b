package service

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/easeaico/brain-agent/internal/memory"
	"github.com/easeaico/brain-agent/internal/textutil"
)

// historyContentLimit caps each prior message quoted in the prompt.
const historyContentLimit = 500

// PromptData fills the system prompt template.
type PromptData struct {
	// Context is the formatted brain context, possibly empty.
	Context string
	// History holds earlier messages of the conversation, oldest first.
	History []memory.Message
	// Tools lists tool names the model may mention to the user.
	Tools []string
}

var systemPromptTmpl = template.Must(template.New("systemPrompt").
	Funcs(template.FuncMap{"inc": inc, "clip": clip}).
	Parse(`You are the NeXify AI assistant, a personal assistant with a long-term memory ("the brain").

Memory first: consult the brain context below before every answer and do not rely on the chat transcript alone.
When the user shares new facts, preferences or project details, they should be stored in long-term memory.
{{- if .Context }}

# BRAIN CONTEXT
{{ .Context }}
{{- end }}
{{- if .History }}

# CONVERSATION SO FAR
{{- range $idx, $msg := .History }}
{{ inc $idx }}. [{{ $msg.Role }}] {{ clip $msg.Content }}
{{- end }}
{{- end }}
{{- if .Tools }}

# AVAILABLE TOOLS
{{- range .Tools }}
- {{ . }}
{{- end }}
{{- end }}

When answering:
- Point out faster, simpler or more robust approaches proactively
- Be precise but friendly
- Ask when you are unsure instead of guessing
`))

func inc(i int) int { return i + 1 }

func clip(s string) string { return textutil.Truncate(s, historyContentLimit, "...") }

// BuildSystemPrompt renders the system prompt.
func BuildSystemPrompt(data PromptData) (string, error) {
	var buf bytes.Buffer
	if err := systemPromptTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render system prompt: %w", err)
	}
	return buf.String(), nil
}
