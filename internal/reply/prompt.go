package reply

import (
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/modbot/internal/store"
)

// formatContexts renders active contexts as "**title**\ncontent" blocks.
func formatContexts(contexts []store.GroupContext) string {
	parts := make([]string, 0, len(contexts))
	for _, c := range contexts {
		parts = append(parts, fmt.Sprintf("**%s**\n%s", c.Title, c.Content))
	}
	return strings.Join(parts, "\n\n")
}

// formatHistory renders newest-first messages as an oldest-first transcript.
func formatHistory(messages []store.RecentMessage) string {
	lines := make([]string, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		name := messages[i].Username
		if name == "" {
			name = "User"
		}
		lines = append(lines, name+": "+messages[i].MessageText)
	}
	return strings.Join(lines, "\n")
}

func buildSystemPrompt(botUsername, contexts, history string) string {
	if contexts == "" {
		contexts = "No context configured - ask admin to use /settings@" + botUsername
	}
	if history == "" {
		history = "No recent history"
	}

	var sb strings.Builder
	sb.WriteString("ModFi Bot - AI assistant for this Telegram group. ONLY respond to project-related queries.\n\n")
	sb.WriteString("PROJECT CONTEXT:\n")
	sb.WriteString(contexts)
	sb.WriteString("\n\nRULES: Only answer project questions | Decline unrelated queries | Keep responses concise | Be professional yet conversational\n\n")
	sb.WriteString("RECENT CHAT:\n")
	sb.WriteString(history)
	return sb.String()
}
