package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/abhishekraut01/Gen-AI/internal/config"
	"github.com/abhishekraut01/Gen-AI/internal/core/domain"
)

// LoopConfig bounds one reasoning loop.
type LoopConfig struct {
	SystemPrompt string
	// MaxSteps caps the steps read per Submit.
	MaxSteps int
	// MalformedRetries is how many unparseable responses are re-requested
	// before Submit gives up. Zero aborts on the first one.
	MalformedRetries int
	ModelTimeout     time.Duration
	ToolTimeout      time.Duration
}

// DefaultLoopConfig returns the limits used when nothing is configured.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxSteps:         20,
		MalformedRetries: 2,
		ModelTimeout:     60 * time.Second,
		ToolTimeout:      30 * time.Second,
	}
}

// ReasoningLoop drives one conversation through the
// process → think → action → observe → output cycle.
type ReasoningLoop struct {
	logger *slog.Logger
	model  domain.ModelCaller
	tools  *domain.ToolRegistry
	events *EventBus
	cfg    LoopConfig

	id        domain.ConversationID
	createdAt time.Time

	// mu serialises Submit; a conversation never has two model calls in flight.
	mu        sync.Mutex
	history   *domain.ConversationHistory
	title     string
	updatedAt time.Time
}

// NewReasoningLoop creates a loop with a fresh history. events may be nil.
func NewReasoningLoop(
	logger *slog.Logger,
	model domain.ModelCaller,
	tools *domain.ToolRegistry,
	events *EventBus,
	cfg LoopConfig,
	id domain.ConversationID,
) *ReasoningLoop {
	def := DefaultLoopConfig()
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = def.MaxSteps
	}
	if cfg.MalformedRetries < 0 {
		cfg.MalformedRetries = 0
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = def.ModelTimeout
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = def.ToolTimeout
	}
	if id == "" {
		id = domain.NewConversationID()
	}
	now := time.Now()
	return &ReasoningLoop{
		logger:    logger.With("conversation_id", string(id)),
		model:     model,
		tools:     tools,
		events:    events,
		cfg:       cfg,
		id:        id,
		createdAt: now,
		updatedAt: now,
		history:   domain.NewConversationHistory(cfg.SystemPrompt),
	}
}

// ID returns the conversation this loop owns.
func (l *ReasoningLoop) ID() domain.ConversationID { return l.id }

// History returns a copy of the committed history.
func (l *ReasoningLoop) History() []domain.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.history.Messages()
}

// Conversation returns the metadata view of the loop.
func (l *ReasoningLoop) Conversation() domain.Conversation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.Conversation{
		ID:        l.id,
		Title:     l.title,
		Messages:  l.history.Len(),
		CreatedAt: l.createdAt,
		UpdatedAt: l.updatedAt,
	}
}

// Submit appends userText and runs steps until the model emits output.
// The turn is staged on a copy of the history and only committed on success,
// so any error leaves the conversation as it was before the call.
func (l *ReasoningLoop) Submit(ctx context.Context, userText string) (*domain.LoopResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.Info("starting reasoning loop", "message", userText)

	turn := l.history.Clone()
	if err := turn.Append(domain.NewUserMessage(userText)); err != nil {
		return nil, err
	}

	result := &domain.LoopResult{}
	malformed := 0

	for steps := 0; steps < l.cfg.MaxSteps; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := l.generate(ctx, turn.Messages())
		if err != nil {
			l.publishError(err)
			return nil, err
		}

		step, err := domain.ParseStep(raw)
		if err != nil {
			l.logger.Warn("malformed step from model", "error", err, "raw", raw, "attempt", malformed+1)
			if malformed >= l.cfg.MalformedRetries {
				l.publishError(err)
				return nil, err
			}
			malformed++
			result.Retries++
			continue
		}
		malformed = 0
		steps++

		l.logger.Info("reasoning step", "step", steps, "kind", string(step.Kind))
		result.Steps = append(result.Steps, step)
		l.publish(EventTypeStep, step)

		switch step.Kind {
		case domain.StepOutput:
			if err := turn.Append(domain.NewStepMessage(domain.RoleAssistant, step)); err != nil {
				return nil, err
			}
			result.Output = step.Content
			l.commit(turn, userText)
			l.publish(EventTypeOutput, map[string]string{"output": step.Content})
			l.logger.Info("reasoning loop finished", "steps", steps, "tool_calls", len(result.ToolCalls))
			return result, nil

		case domain.StepAction:
			if err := turn.Append(domain.NewStepMessage(domain.RoleAssistant, step)); err != nil {
				return nil, err
			}
			record := l.dispatch(ctx, step)
			result.ToolCalls = append(result.ToolCalls, record)
			l.publish(EventTypeTool, record)

			// A cancelled caller aborts even if the tool swallowed the cancellation.
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := turn.Append(domain.NewStepMessage(domain.RoleUser, domain.ObserveStep(record.Observation))); err != nil {
				return nil, err
			}

		default:
			if err := turn.Append(domain.NewStepMessage(domain.RoleAssistant, step)); err != nil {
				return nil, err
			}
		}
	}

	err := fmt.Errorf("%w (%d)", domain.ErrMaxSteps, l.cfg.MaxSteps)
	l.publishError(err)
	return nil, err
}

type callResult struct {
	text     string
	err      error
	timedOut bool
}

// bounded runs fn under a deadline of d. A call that overruns the deadline
// is abandoned and its late result discarded, whether or not fn honours ctx.
func bounded(ctx context.Context, d time.Duration, fn func(context.Context) (string, error)) callResult {
	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		text, err := fn(callCtx)
		done <- callResult{text: text, err: err}
	}()

	var res callResult
	select {
	case res = <-done:
	case <-callCtx.Done():
		res.err = callCtx.Err()
	}
	if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return callResult{err: res.err, timedOut: true}
	}
	return res
}

// generate performs one bounded model call and classifies its failure.
func (l *ReasoningLoop) generate(ctx context.Context, history []domain.Message) (string, error) {
	start := time.Now()
	res := bounded(ctx, l.cfg.ModelTimeout, func(callCtx context.Context) (string, error) {
		return l.model.Generate(callCtx, history, domain.ResponseFormatJSONObject)
	})
	switch {
	case ctx.Err() != nil:
		return "", ctx.Err()
	case res.timedOut, errors.Is(res.err, context.DeadlineExceeded):
		return "", fmt.Errorf("%w after %s", domain.ErrModelTimeout, l.cfg.ModelTimeout)
	case res.err != nil:
		return "", fmt.Errorf("%w: %w", domain.ErrModelCall, res.err)
	}
	l.logger.Log(ctx, config.LevelTrace, "model response", "raw", res.text, "duration_ms", time.Since(start).Milliseconds())
	return res.text, nil
}

// dispatch runs the tool named by an action step and turns the outcome into
// the observation fed back to the model. Tool failures never abort the loop.
func (l *ReasoningLoop) dispatch(ctx context.Context, step domain.Step) domain.ToolRecord {
	record := domain.ToolRecord{Tool: step.Tool, Input: step.Input}

	l.logger.Info("executing tool", "tool", step.Tool, "input", step.Input)
	res := bounded(ctx, l.cfg.ToolTimeout, func(toolCtx context.Context) (string, error) {
		return l.tools.InvokeText(toolCtx, step.Tool, step.Input)
	})
	switch err := res.err; {
	case res.timedOut:
		l.logger.Warn("tool timed out", "tool", step.Tool, "timeout", l.cfg.ToolTimeout)
		record.Observation = fmt.Sprintf("Error: tool %s timed out after %s", step.Tool, l.cfg.ToolTimeout)
		record.IsError = true
	case err == nil:
		record.Observation = res.text
	case errors.Is(err, domain.ErrToolNotFound):
		l.logger.Warn("model requested unknown tool", "tool", step.Tool)
		record.Observation = domain.ObservationToolNotFound
		record.IsError = true
	default:
		l.logger.Warn("tool failed", "tool", step.Tool, "error", err)
		record.Observation = observationFor(err)
		record.IsError = true
	}
	return record
}

// observationFor renders a tool failure with a single "Error: " prefix.
func observationFor(err error) string {
	text := domain.ToolFailureText(err)
	if strings.HasPrefix(text, "Error:") {
		return text
	}
	return "Error: " + text
}

func (l *ReasoningLoop) commit(turn *domain.ConversationHistory, userText string) {
	l.history = turn
	l.updatedAt = time.Now()
	if l.title == "" {
		l.title = titleFrom(userText)
	}
}

func (l *ReasoningLoop) publish(t EventType, payload any) {
	if l.events == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		l.logger.Warn("failed to encode event", "type", t, "error", err)
		return
	}
	l.events.Publish(Event{Key: string(l.id), Type: t, Data: string(data)})
}

func (l *ReasoningLoop) publishError(err error) {
	l.publish(EventTypeError, map[string]string{"error": err.Error()})
}

// titleFrom uses the first ~50 runes of the opening message.
func titleFrom(msg string) string {
	r := []rune(msg)
	if len(r) > 50 {
		return string(r[:50]) + "..."
	}
	return msg
}
