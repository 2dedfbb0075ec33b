package services

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/abhishekraut01/Gen-AI/internal/core/domain"
)

// ConversationManager owns the live reasoning loops, one per conversation.
// Conversations live in memory only; the least recently used one is dropped
// once maxConversations is exceeded.
type ConversationManager struct {
	logger *slog.Logger
	model  domain.ModelCaller
	tools  *domain.ToolRegistry
	events *EventBus
	cfg    LoopConfig

	mu    sync.Mutex
	loops map[domain.ConversationID]*ReasoningLoop
	order []domain.ConversationID // LRU order, most recent last
	max   int
}

// NewConversationManager creates a manager. The loop system prompt defaults to
// the step protocol prompt built from tools.
func NewConversationManager(
	logger *slog.Logger,
	model domain.ModelCaller,
	tools *domain.ToolRegistry,
	events *EventBus,
	cfg LoopConfig,
	maxConversations int,
) *ConversationManager {
	if maxConversations <= 0 {
		maxConversations = 256
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = BuildSystemPrompt(tools, "")
	}
	return &ConversationManager{
		logger: logger,
		model:  model,
		tools:  tools,
		events: events,
		cfg:    cfg,
		loops:  make(map[domain.ConversationID]*ReasoningLoop),
		max:    maxConversations,
	}
}

// Create starts an empty conversation.
func (m *ConversationManager) Create() domain.Conversation {
	loop := NewReasoningLoop(m.logger, m.model, m.tools, m.events, m.cfg, domain.NewConversationID())

	m.mu.Lock()
	m.loops[loop.ID()] = loop
	m.touchLocked(loop.ID())
	evicted := m.evictLocked()
	m.mu.Unlock()

	for _, id := range evicted {
		m.logger.Info("conversation evicted", "conversation_id", string(id))
		m.closeEvents(id)
	}
	m.logger.Info("conversation created", "conversation_id", string(loop.ID()))
	return loop.Conversation()
}

// Submit runs one user turn on an existing conversation.
func (m *ConversationManager) Submit(ctx context.Context, id domain.ConversationID, text string) (*domain.LoopResult, error) {
	loop, err := m.loop(id)
	if err != nil {
		return nil, err
	}
	return loop.Submit(ctx, text)
}

// Get returns conversation metadata and its committed history.
func (m *ConversationManager) Get(id domain.ConversationID) (domain.Conversation, []domain.Message, error) {
	loop, err := m.loop(id)
	if err != nil {
		return domain.Conversation{}, nil, err
	}
	return loop.Conversation(), loop.History(), nil
}

// List returns all live conversations, most recently updated first.
func (m *ConversationManager) List() []domain.Conversation {
	m.mu.Lock()
	loops := make([]*ReasoningLoop, 0, len(m.loops))
	for _, l := range m.loops {
		loops = append(loops, l)
	}
	m.mu.Unlock()

	convs := make([]domain.Conversation, len(loops))
	for i, l := range loops {
		convs[i] = l.Conversation()
	}
	sort.Slice(convs, func(i, j int) bool { return convs[i].UpdatedAt.After(convs[j].UpdatedAt) })
	return convs
}

// Delete discards a conversation and closes its event streams.
func (m *ConversationManager) Delete(id domain.ConversationID) error {
	m.mu.Lock()
	if _, ok := m.loops[id]; !ok {
		m.mu.Unlock()
		return domain.ErrConversationNotFound
	}
	delete(m.loops, id)
	m.removeLRULocked(id)
	m.mu.Unlock()

	m.closeEvents(id)
	m.logger.Info("conversation deleted", "conversation_id", string(id))
	return nil
}

func (m *ConversationManager) loop(id domain.ConversationID) (*ReasoningLoop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loop, ok := m.loops[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	m.touchLocked(id)
	return loop, nil
}

func (m *ConversationManager) closeEvents(id domain.ConversationID) {
	if m.events != nil {
		m.events.CloseKey(string(id))
	}
}

func (m *ConversationManager) touchLocked(id domain.ConversationID) {
	m.removeLRULocked(id)
	m.order = append(m.order, id)
}

func (m *ConversationManager) removeLRULocked(id domain.ConversationID) {
	for i, cid := range m.order {
		if cid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

func (m *ConversationManager) evictLocked() []domain.ConversationID {
	var evicted []domain.ConversationID
	for len(m.order) > m.max {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.loops, oldest)
		evicted = append(evicted, oldest)
	}
	return evicted
}
