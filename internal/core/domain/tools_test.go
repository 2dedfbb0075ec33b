package domain

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cityInput struct {
	City string `json:"city"`
}

func cityTool() *Tool {
	schema := openapi3.NewObjectSchema().WithProperty("city", openapi3.NewStringSchema())
	schema.Required = []string{"city"}
	return NewTool("weather", "Current weather for a city", schema, func(_ context.Context, in cityInput) (string, error) {
		return "sunny in " + in.City, nil
	})
}

func echoTool() *Tool {
	return &Tool{
		Name:        "echo",
		Description: "Echo text",
		InputSchema: openapi3.NewStringSchema(),
		Execute: func(_ context.Context, input any) (string, error) {
			s, _ := input.(string)
			if s == "boom" {
				return "", errors.New("exploded")
			}
			return s, nil
		},
	}
}

// ── registration ───────────────────────────────────────────────────────────

func TestRegister(t *testing.T) {
	reg := NewToolRegistry()
	require.NoError(t, reg.Register(cityTool()))

	err := reg.Register(cityTool())
	assert.ErrorIs(t, err, ErrToolAlreadyRegistered)

	assert.ErrorIs(t, reg.Register(&Tool{Name: "  "}), ErrEmptyToolName)
	assert.ErrorIs(t, reg.Register(nil), ErrEmptyToolName)
	assert.Error(t, reg.Register(&Tool{Name: "noop"}), "tool without executor")

	tool, ok := reg.GetTool("weather")
	require.True(t, ok)
	assert.Equal(t, ExecNative, tool.ExecutionType)
}

// ── invocation ─────────────────────────────────────────────────────────────

func TestInvoke(t *testing.T) {
	reg := NewToolRegistry()
	require.NoError(t, reg.Register(cityTool()))

	out, err := reg.Invoke(t.Context(), "weather", []byte(`{"city":"Pune"}`))
	require.NoError(t, err)
	assert.Equal(t, "sunny in Pune", out)

	_, err = reg.Invoke(t.Context(), "missing", []byte(`{}`))
	assert.ErrorIs(t, err, ErrToolNotFound)

	_, err = reg.Invoke(t.Context(), "weather", []byte(`{"city":7}`))
	assert.ErrorIs(t, err, ErrInvalidToolInput)

	// Empty input is an empty object, which lacks the required field.
	_, err = reg.Invoke(t.Context(), "weather", nil)
	assert.ErrorIs(t, err, ErrInvalidToolInput)

	_, err = reg.Invoke(t.Context(), "weather", []byte(`{"city":`))
	assert.ErrorIs(t, err, ErrInvalidToolInput)
}

func TestInvokeText(t *testing.T) {
	reg := NewToolRegistry()
	require.NoError(t, reg.Register(cityTool()))
	require.NoError(t, reg.Register(echoTool()))

	out, err := reg.InvokeText(t.Context(), "echo", `{"not":"decoded"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"not":"decoded"}`, out)

	out, err = reg.InvokeText(t.Context(), "weather", `{"city":"Nagpur"}`)
	require.NoError(t, err)
	assert.Equal(t, "sunny in Nagpur", out)

	_, err = reg.InvokeText(t.Context(), "weather", "Nagpur")
	assert.ErrorIs(t, err, ErrInvalidToolInput)

	_, err = reg.InvokeText(t.Context(), "nope", "x")
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestInvoke_ToolFailureKeepsCause(t *testing.T) {
	reg := NewToolRegistry()
	require.NoError(t, reg.Register(echoTool()))

	_, err := reg.InvokeText(t.Context(), "echo", "boom")
	require.Error(t, err)

	var execErr *ToolExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "echo", execErr.Tool)
	assert.EqualError(t, execErr.Cause, "exploded")
	assert.NotErrorIs(t, err, ErrInvalidToolInput)
	assert.Equal(t, "exploded", ToolFailureText(err))
	assert.Equal(t, "tool not found", ToolFailureText(ErrToolNotFound))
}

// ── listing ────────────────────────────────────────────────────────────────

func TestListAndDescribe(t *testing.T) {
	reg := NewToolRegistry()
	require.NoError(t, reg.Register(cityTool()))
	require.NoError(t, reg.Register(echoTool()))

	tools := reg.ListTools()
	require.Len(t, tools, 2)
	assert.Equal(t, "echo", tools[0].Name)
	assert.Equal(t, "weather", tools[1].Name)

	infos := reg.Describe()
	require.Len(t, infos, 2)
	assert.Equal(t, "Current weather for a city", infos[1].Description)
	assert.NotNil(t, infos[1].InputSchema)
}

func TestFormatToolsForPrompt(t *testing.T) {
	reg := NewToolRegistry()
	require.NoError(t, reg.Register(cityTool()))
	require.NoError(t, reg.Register(echoTool()))

	prompt := reg.FormatToolsForPrompt()
	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "- `echo(input: string)`: Echo text", lines[0])
	assert.Equal(t, "- `weather(input: JSON {city: string})`: Current weather for a city | required: city", lines[1])
}

func TestFilterByNames(t *testing.T) {
	reg := NewToolRegistry()
	require.NoError(t, reg.Register(cityTool()))
	require.NoError(t, reg.Register(echoTool()))

	filtered := reg.FilterByNames([]string{"echo", "unknown"})
	require.Len(t, filtered.ListTools(), 1)

	orig, _ := reg.GetTool("echo")
	got, ok := filtered.GetTool("echo")
	require.True(t, ok)
	assert.Same(t, orig, got)
}
