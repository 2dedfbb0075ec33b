package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ConversationID uniquely identifies a conversation
type ConversationID string

const conversationIDPrefix = "conv-"

var ErrInvalidConversationID = errors.New("invalid conversation id")

// UnmarshalText accepts only IDs of the form minted by NewConversationID.
func (id *ConversationID) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	rest, ok := strings.CutPrefix(s, conversationIDPrefix)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidConversationID, s)
	}
	if _, err := uuid.Parse(rest); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidConversationID, s)
	}
	*id = ConversationID(s)
	return nil
}

// MessageRole defines who authored a message
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message represents a single turn in a conversation.
// Step is set when the content is a structured step payload.
type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Step      *Step       `json:"step,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Conversation is the metadata view of a live conversation.
type Conversation struct {
	ID        ConversationID `json:"id"`
	Title     string         `json:"title"`
	Messages  int            `json:"messages"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrSystemMessage        = errors.New("system message may only open a conversation")
)

// NewConversationID generates a time-ordered conversation ID (conv-<uuidv7>)
func NewConversationID() ConversationID {
	return ConversationID(conversationIDPrefix + uuid.Must(uuid.NewV7()).String())
}

// NewUserMessage builds a plain user turn.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, CreatedAt: time.Now()}
}

// NewStepMessage builds a turn whose content is the wire form of step.
func NewStepMessage(role MessageRole, step Step) Message {
	s := step
	return Message{Role: role, Content: step.Encode(), Step: &s, CreatedAt: time.Now()}
}

// ConversationHistory is the ordered message log of one conversation.
// The optional first element is the only system message and never changes.
// It is not safe for concurrent use; the owning loop serialises access.
type ConversationHistory struct {
	messages []Message
}

// NewConversationHistory starts a history, opening with systemPrompt when non-empty.
func NewConversationHistory(systemPrompt string) *ConversationHistory {
	h := &ConversationHistory{}
	if systemPrompt != "" {
		h.messages = append(h.messages, Message{
			Role:      RoleSystem,
			Content:   systemPrompt,
			CreatedAt: time.Now(),
		})
	}
	return h
}

// Append adds a user or assistant message to the end of the history.
func (h *ConversationHistory) Append(msg Message) error {
	if msg.Role == RoleSystem {
		return ErrSystemMessage
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	h.messages = append(h.messages, msg)
	return nil
}

// Messages returns a copy of the history.
func (h *ConversationHistory) Messages() []Message {
	out := make([]Message, len(h.messages))
	for i, m := range h.messages {
		out[i] = m
		if m.Step != nil {
			s := *m.Step
			out[i].Step = &s
		}
	}
	return out
}

// Len returns the number of messages, including the system prompt.
func (h *ConversationHistory) Len() int {
	return len(h.messages)
}

// SystemPrompt returns the opening system message, if any.
func (h *ConversationHistory) SystemPrompt() (string, bool) {
	if len(h.messages) > 0 && h.messages[0].Role == RoleSystem {
		return h.messages[0].Content, true
	}
	return "", false
}

// Clone returns an independent copy used to stage a turn before committing it.
func (h *ConversationHistory) Clone() *ConversationHistory {
	return &ConversationHistory{messages: h.Messages()}
}
