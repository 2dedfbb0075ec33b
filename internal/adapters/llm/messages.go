package llm

import "github.com/abhishekraut01/Gen-AI/internal/core/domain"

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// toChatMessages flattens a conversation history into role/content pairs.
// Step messages are sent in their wire form so the model sees its own JSON.
func toChatMessages(history []domain.Message) []chatMessage {
	out := make([]chatMessage, len(history))
	for i, m := range history {
		out[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}
