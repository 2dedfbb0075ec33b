package services

import (
	"log/slog"
	"sync"
	"time"
)

type EventType string

const (
	EventTypeStep   EventType = "step"
	EventTypeTool   EventType = "tool"
	EventTypeOutput EventType = "output"
	EventTypeError  EventType = "error"
)

type Event struct {
	Key       string // conversation ID
	Type      EventType
	Data      string // JSON payload
	Timestamp int64
}

type EventBus struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[string][]chan Event
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		logger: logger,
		subs:   make(map[string][]chan Event),
	}
}

// Subscribe returns a channel that receives events for one key
func (b *EventBus) Subscribe(key string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100) // Buffer to prevent blocking publisher
	b.subs[key] = append(b.subs[key], ch)

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			subscribers := b.subs[key]
			for i, sub := range subscribers {
				if sub == ch {
					close(ch)
					b.subs[key] = append(subscribers[:i], subscribers[i+1:]...)
					break
				}
			}
			if len(b.subs[key]) == 0 {
				delete(b.subs, key)
			}
		})
	}

	return ch, unsub
}

// Publish sends an event to all subscribers of its key
func (b *EventBus) Publish(e Event) {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().Unix()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[e.Key] {
		select {
		case ch <- e:
		default:
			// If channel is full, drop event to prevent blocking the loop
			b.logger.Warn("event bus channel full, dropping event", "key", e.Key, "type", e.Type)
		}
	}
}

// CloseKey drops every subscriber of key, closing their channels.
func (b *EventBus) CloseKey(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[key] {
		close(ch)
	}
	delete(b.subs, key)
}
