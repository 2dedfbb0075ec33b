package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// StepKind identifies one phase of the reasoning cycle
type StepKind string

const (
	StepProcess StepKind = "process"
	StepThink   StepKind = "think"
	StepAction  StepKind = "action"
	StepObserve StepKind = "observe"
	StepOutput  StepKind = "output"
)

// Valid reports whether k is one of the five protocol kinds.
func (k StepKind) Valid() bool {
	switch k {
	case StepProcess, StepThink, StepAction, StepObserve, StepOutput:
		return true
	}
	return false
}

// ErrMalformedStep is returned when a model response cannot be read as a Step.
var ErrMalformedStep = errors.New("malformed step response")

// ObservationToolNotFound is fed back when an action names an unregistered tool.
const ObservationToolNotFound = "Tool not found"

// Step is one unit of the model's reasoning trace.
// Tool and Input are set if and only if Kind is StepAction.
type Step struct {
	Kind    StepKind `json:"step"`
	Content string   `json:"content"`
	Tool    string   `json:"tool,omitempty"`
	Input   string   `json:"input,omitempty"`
}

// wireStep uses pointers so a missing field can be told apart from an empty one.
type wireStep struct {
	Kind    *string         `json:"step"`
	Content *string         `json:"content"`
	Tool    *string         `json:"tool"`
	Input   json.RawMessage `json:"input"`
}

// ParseStep decodes a raw model response into a Step and enforces the
// action/tool/input invariant. Every failure wraps ErrMalformedStep.
func ParseStep(raw string) (Step, error) {
	body := stripCodeFence(raw)
	if body == "" {
		return Step{}, fmt.Errorf("%w: empty response", ErrMalformedStep)
	}

	var w wireStep
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		return Step{}, fmt.Errorf("%w: %v", ErrMalformedStep, err)
	}
	if w.Kind == nil {
		return Step{}, fmt.Errorf("%w: missing \"step\" field", ErrMalformedStep)
	}

	step := Step{Kind: StepKind(strings.ToLower(strings.TrimSpace(*w.Kind)))}
	if !step.Kind.Valid() {
		return Step{}, fmt.Errorf("%w: unknown step kind %q", ErrMalformedStep, *w.Kind)
	}
	if w.Content != nil {
		step.Content = *w.Content
	}

	input, hasInput, err := decodeInput(w.Input)
	if err != nil {
		return Step{}, err
	}
	hasTool := w.Tool != nil && strings.TrimSpace(*w.Tool) != ""

	if step.Kind == StepAction {
		if !hasTool || !hasInput {
			return Step{}, fmt.Errorf("%w: action step requires both tool and input", ErrMalformedStep)
		}
		step.Tool = strings.TrimSpace(*w.Tool)
		step.Input = input
		return step, nil
	}

	if hasTool || hasInput {
		return Step{}, fmt.Errorf("%w: %s step must not carry tool or input", ErrMalformedStep, step.Kind)
	}
	if w.Content == nil {
		return Step{}, fmt.Errorf("%w: %s step requires content", ErrMalformedStep, step.Kind)
	}
	return step, nil
}

// decodeInput accepts the protocol's string input. Models sometimes send an
// object instead of a JSON-encoded string; the object text is kept verbatim.
func decodeInput(raw json.RawMessage) (string, bool, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true, nil
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return trimmed, true, nil
	}
	return "", false, fmt.Errorf("%w: input must be a string", ErrMalformedStep)
}

func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Encode renders the step in its wire form.
func (s Step) Encode() string {
	b, err := json.Marshal(s)
	if err != nil {
		// Step holds only strings; Marshal cannot fail.
		return fmt.Sprintf(`{"step":%q,"content":%q}`, s.Kind, s.Content)
	}
	return string(b)
}

// ObserveStep builds the observation fed back to the model after an action.
func ObserveStep(content string) Step {
	return Step{Kind: StepObserve, Content: content}
}

// LoopResult is the outcome of one Submit on a reasoning loop.
type LoopResult struct {
	Output    string       `json:"output"`
	Steps     []Step       `json:"steps"`
	ToolCalls []ToolRecord `json:"tool_calls,omitempty"`
	Retries   int          `json:"retries,omitempty"`
}

// ToolRecord logs one tool dispatch made during a Submit.
type ToolRecord struct {
	Tool        string `json:"tool"`
	Input       string `json:"input"`
	Observation string `json:"observation"`
	IsError     bool   `json:"is_error"`
}
