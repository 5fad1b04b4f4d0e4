package llm

import (
	"strings"

	"github.com/PabloGalante/chicha/internal/domain"
)

// SystemContext is the persona and answer style for every reply.
const SystemContext = "You are CHICHA, a helpful AI assistant. Provide concise answers in 10-15 lines maximum. " +
	"If applicable, use numbered points. Avoid special characters and only mention dates/times if specifically asked. " +
	"Focus on the most relevant information."

// Prompt represents the system prompt + the content to send as "user".
type Prompt struct {
	System string
	User   string
}

// BuildPrompt flattens a chat request into a single user turn, for
// backends that take one prompt string and no structured history. The user
// content is the bare prompt when there is no history.
func BuildPrompt(req domain.ChatRequest) Prompt {
	var historyParts []string
	for _, m := range req.History {
		if m.Processing {
			continue
		}
		role := "user"
		if m.IsFromBot() {
			role = "assistant"
		}
		historyParts = append(historyParts, role+": "+m.Text)
	}

	var userContent strings.Builder
	if len(historyParts) > 0 {
		userContent.WriteString("Conversation so far:\n")
		userContent.WriteString(strings.Join(historyParts, "\n"))
		userContent.WriteString("\n\n")
	}
	userContent.WriteString(req.Prompt)

	return Prompt{
		System: SystemContext,
		User:   userContent.String(),
	}
}
