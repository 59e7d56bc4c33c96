package llm

import "strings"

// WithSystem prepends a system instruction to messages
func WithSystem(system string, messages []Message) []Message {
	out := make([]Message, 0, len(messages)+1)
	if strings.TrimSpace(system) != "" {
		out = append(out, Message{Role: "system", Content: system})
	}
	return append(out, messages...)
}

// SplitSystem separates system messages from the conversation for providers
// that take the instruction as a dedicated field. Multiple system messages
// are joined with a blank line.
func SplitSystem(messages []Message) (string, []Message) {
	var (
		system []string
		rest   = make([]Message, 0, len(messages))
	)
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

// MergeConsecutive joins adjacent messages with the same role. Some APIs
// reject two user turns in a row.
func MergeConsecutive(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	return out
}
