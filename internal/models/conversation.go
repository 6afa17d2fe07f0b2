package models

import "strings"

// Chat modes.
const (
	ModeContinuous = "continuous"
	ModeSingle     = "single"
)

// SystemPrompt is a named preset system instruction.
type SystemPrompt struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// DefaultSystemPrompts lists the built-in presets.
var DefaultSystemPrompts = []SystemPrompt{
	{
		ID:      "professional",
		Name:    "Professional Assistant",
		Content: "You are a helpful, professional AI assistant. Provide clear, accurate, and well-structured responses.",
	},
	{
		ID:      "creative",
		Name:    "Creative Writer",
		Content: "You are a creative writing assistant. Help with storytelling, creative projects, and imaginative content with flair and originality.",
	},
}

// LookupSystemPrompt finds a preset by id.
func LookupSystemPrompt(id string) (SystemPrompt, bool) {
	for _, p := range DefaultSystemPrompts {
		if p.ID == id {
			return p, true
		}
	}
	return SystemPrompt{}, false
}

// ApplyMode trims a conversation according to mode. Single mode keeps the
// system messages and the last user message only.
func ApplyMode(mode string, messages []Message) []Message {
	if mode != ModeSingle {
		return messages
	}

	out := make([]Message, 0, 2)
	for _, m := range messages {
		if m.Role == RoleSystem {
			out = append(out, m)
		}
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return append(out, messages[i])
		}
	}
	return out
}

// WithSystemPrompt prepends a system message unless the conversation already
// carries one.
func WithSystemPrompt(prompt string, messages []Message) []Message {
	if strings.TrimSpace(prompt) == "" {
		return messages
	}
	for _, m := range messages {
		if m.Role == RoleSystem {
			return messages
		}
	}
	out := make([]Message, 0, len(messages)+1)
	out = append(out, Message{Role: RoleSystem, Content: prompt})
	return append(out, messages...)
}

// SplitSystem separates system messages from the rest of the conversation.
// Multiple system messages are joined into one instruction.
func SplitSystem(messages []Message) (string, []Message) {
	var systemParts []string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if strings.TrimSpace(m.Content) != "" {
				systemParts = append(systemParts, m.Content)
			}
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(systemParts, "\n\n"), rest
}
