package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

// ExecType identifies how a tool is executed.
type ExecType string

const (
	// ExecNative runs in the kernel process (default for built-in tools).
	ExecNative ExecType = "native"
	// ExecDocker runs inside a throwaway Docker container.
	ExecDocker ExecType = "docker"
	// ExecRemote is forwarded to a tool server over a protocol session.
	ExecRemote ExecType = "remote"
)

var (
	ErrToolNotFound          = errors.New("tool not found")
	ErrToolAlreadyRegistered = errors.New("tool already registered")
	ErrEmptyToolName         = errors.New("tool name cannot be empty")
	ErrInvalidToolInput      = errors.New("invalid tool input")
)

// ToolExecutionError wraps a failure raised by the tool itself.
type ToolExecutionError struct {
	Tool  string
	Cause error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s execution failed: %v", e.Tool, e.Cause)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Cause
}

// ToolFailureText is the text reported for a failed invocation. A failure
// raised by the tool itself is reported by its cause alone.
func ToolFailureText(err error) string {
	var execErr *ToolExecutionError
	if errors.As(err, &execErr) && execErr.Cause != nil {
		return execErr.Cause.Error()
	}
	return err.Error()
}

// ToolExecutor is the function signature for tool execution.
// input is the JSON-decoded value that passed the tool's schema.
type ToolExecutor func(ctx context.Context, input any) (string, error)

// Tool represents an executable capability available to the agent
type Tool struct {
	Name          string
	Description   string
	InputSchema   *openapi3.Schema // nil accepts any input
	Execute       ToolExecutor
	ExecutionType ExecType
	// RetrySafe marks tools without side effects, which callers may re-run freely.
	RetrySafe bool
}

// ToolInfo is the listing form of a tool.
type ToolInfo struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	InputSchema *openapi3.Schema `json:"inputSchema,omitempty"`
	RetrySafe   bool             `json:"retrySafe"`
}

// NewTool builds a tool whose validated input is decoded into In before fn runs.
func NewTool[In any](name, description string, schema *openapi3.Schema, fn func(ctx context.Context, in In) (string, error)) *Tool {
	return &Tool{
		Name:          name,
		Description:   description,
		InputSchema:   schema,
		ExecutionType: ExecNative,
		Execute: func(ctx context.Context, input any) (string, error) {
			if v, ok := input.(In); ok {
				return fn(ctx, v)
			}
			var in In
			b, err := json.Marshal(input)
			if err != nil {
				return "", fmt.Errorf("%w: %v", ErrInvalidToolInput, err)
			}
			if err := json.Unmarshal(b, &in); err != nil {
				return "", fmt.Errorf("%w: %v", ErrInvalidToolInput, err)
			}
			return fn(ctx, in)
		},
	}
}

// acceptsText reports whether the step input is handed over verbatim.
func (t *Tool) acceptsText() bool {
	return t.InputSchema == nil || isType(t.InputSchema, openapi3.TypeString)
}

func (t *Tool) validate(value any) error {
	if t.InputSchema == nil {
		return nil
	}
	if err := t.InputSchema.VisitJSON(value); err != nil {
		return fmt.Errorf("%w for %s: %w", ErrInvalidToolInput, t.Name, err)
	}
	return nil
}

// ToolRegistry manages available tools. Tools are registered at startup and
// never change afterwards.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewToolRegistry creates a new empty registry
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]*Tool),
	}
}

// Register adds a tool to the registry. Registering a name twice is a
// configuration error.
func (r *ToolRegistry) Register(tool *Tool) error {
	if tool == nil || strings.TrimSpace(tool.Name) == "" {
		return ErrEmptyToolName
	}
	if tool.Execute == nil {
		return fmt.Errorf("tool %s has no executor", tool.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	if tool.ExecutionType == "" {
		tool.ExecutionType = ExecNative
	}
	r.tools[tool.Name] = tool
	return nil
}

// GetTool returns a tool by name
func (r *ToolRegistry) GetTool(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Invoke validates a JSON-encoded input against the tool schema and runs it.
// An empty input is treated as an empty object.
func (r *ToolRegistry) Invoke(ctx context.Context, name string, raw json.RawMessage) (string, error) {
	tool, ok := r.GetTool(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	var value any
	if len(strings.TrimSpace(string(raw))) == 0 {
		value = map[string]any{}
	} else if err := json.Unmarshal(raw, &value); err != nil {
		return "", fmt.Errorf("%w for %s: %w", ErrInvalidToolInput, name, err)
	}
	return r.run(ctx, tool, value)
}

// InvokeText runs a tool with the free-text input of an action step.
// String-schema tools receive the text as is; other tools receive it decoded as JSON.
func (r *ToolRegistry) InvokeText(ctx context.Context, name string, text string) (string, error) {
	tool, ok := r.GetTool(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	if tool.acceptsText() {
		return r.run(ctx, tool, text)
	}

	if strings.TrimSpace(text) == "" {
		return r.run(ctx, tool, map[string]any{})
	}
	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return "", fmt.Errorf("%w for %s: input is not JSON: %w", ErrInvalidToolInput, name, err)
	}
	return r.run(ctx, tool, value)
}

func (r *ToolRegistry) run(ctx context.Context, tool *Tool, value any) (string, error) {
	if err := tool.validate(value); err != nil {
		return "", err
	}
	out, err := tool.Execute(ctx, value)
	if err != nil {
		return "", &ToolExecutionError{Tool: tool.Name, Cause: err}
	}
	return out, nil
}

// ListTools returns all registered tools sorted by name
func (r *ToolRegistry) ListTools() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// Describe returns the listing form of every tool.
func (r *ToolRegistry) Describe() []ToolInfo {
	tools := r.ListTools()
	infos := make([]ToolInfo, 0, len(tools))
	for _, t := range tools {
		infos = append(infos, ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
			RetrySafe:   t.RetrySafe,
		})
	}
	return infos
}

// FormatToolsForPrompt renders the tool list for the system prompt.
// Compact format: name(input): description [| required: ...].
func (r *ToolRegistry) FormatToolsForPrompt() string {
	var b strings.Builder
	for _, tool := range r.ListTools() {
		b.WriteString("- `")
		b.WriteString(tool.Name)
		b.WriteString("(")
		b.WriteString(describeInput(tool.InputSchema))
		b.WriteString(")`: ")
		b.WriteString(tool.Description)
		if tool.InputSchema != nil && len(tool.InputSchema.Required) > 0 {
			b.WriteString(" | required: ")
			b.WriteString(strings.Join(tool.InputSchema.Required, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func describeInput(s *openapi3.Schema) string {
	if s == nil || isType(s, openapi3.TypeString) {
		return "input: string"
	}
	if !isType(s, openapi3.TypeObject) {
		return "input: " + schemaType(s)
	}

	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		t := "any"
		if ref := s.Properties[name]; ref != nil && ref.Value != nil {
			t = schemaType(ref.Value)
		}
		parts = append(parts, name+": "+t)
	}
	return "input: JSON {" + strings.Join(parts, ", ") + "}"
}

func schemaType(s *openapi3.Schema) string {
	for _, t := range []string{
		openapi3.TypeString, openapi3.TypeObject, openapi3.TypeArray,
		openapi3.TypeBoolean, openapi3.TypeInteger, openapi3.TypeNumber,
	} {
		if isType(s, t) {
			return t
		}
	}
	return "any"
}

func isType(s *openapi3.Schema, t string) bool {
	return s != nil && s.Type != nil && s.Type.Is(t)
}

// FilterByNames returns a new ToolRegistry containing only the named tools.
// The new registry shares Tool pointers with the original.
func (r *ToolRegistry) FilterByNames(names []string) *ToolRegistry {
	allowed := make(map[string]struct{}, len(names))
	for _, n := range names {
		allowed[n] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	filtered := NewToolRegistry()
	for name, tool := range r.tools {
		if _, ok := allowed[name]; ok {
			filtered.tools[name] = tool
		}
	}
	return filtered
}
