package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/abhishekraut01/Gen-AI/internal/core/domain"
)

// ServerOption configures the protocol server of a session.
type ServerOption func(*mcp.ServerOptions)

// WithInstructions sets the instructions returned from initialize.
func WithInstructions(text string) ServerOption {
	return func(o *mcp.ServerOptions) { o.Instructions = text }
}

// NewServer builds the protocol server of one session. Every tool of the
// registry is exposed; tools whose input is not an object take a single
// "input" property. The registry may be shared between sessions.
func NewServer(logger *slog.Logger, info *mcp.Implementation, tools *domain.ToolRegistry, opts ...ServerOption) *mcp.Server {
	options := &mcp.ServerOptions{Logger: logger}
	for _, opt := range opts {
		opt(options)
	}
	srv := mcp.NewServer(info, options)

	exposed := make(map[string]bool)
	for _, tool := range tools.ListTools() {
		desc, err := descriptor(tool)
		if err != nil {
			logger.Warn("skipping tool with unencodable schema", "tool", tool.Name, "error", err)
			continue
		}
		srv.AddTool(desc, toolHandler(logger, tools, tool))
		exposed[tool.Name] = true
	}
	srv.AddReceivingMiddleware(unknownTool(exposed))
	return srv
}

func descriptor(tool *domain.Tool) (*mcp.Tool, error) {
	schema, err := json.Marshal(objectSchema(tool.InputSchema))
	if err != nil {
		return nil, err
	}
	return &mcp.Tool{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: json.RawMessage(schema),
		Annotations: &mcp.ToolAnnotations{IdempotentHint: tool.RetrySafe},
	}, nil
}

func toolHandler(logger *slog.Logger, tools *domain.ToolRegistry, tool *domain.Tool) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, err := invoke(ctx, tools, tool, req.Params.Arguments)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("tool call failed", "tool", tool.Name, "error", err)
			return textResult(domain.ToolFailureText(err), true), nil
		}

		logger.Info("tool call", "tool", tool.Name, "session_id", req.Session.ID())
		if err := req.Session.Log(ctx, &mcp.LoggingMessageParams{
			Level:  "info",
			Logger: "tools",
			Data:   map[string]string{"tool": tool.Name, "status": "completed"},
		}); err != nil {
			logger.Debug("tool log notification not sent", "tool", tool.Name, "error", err)
		}
		return textResult(out, false), nil
	}
}

// unknownTool answers calls to tools the session does not expose with a tool
// error result instead of a protocol error, so the caller can recover.
func unknownTool(exposed map[string]bool) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			if call, ok := req.(*mcp.CallToolRequest); ok && call.Params != nil {
				if name := call.Params.Name; name != "" && !exposed[name] {
					return textResult("Unknown tool: "+name, true), nil
				}
			}
			return next(ctx, method, req)
		}
	}
}

// invoke routes arguments to the registry, unwrapping the "input" property of
// non-object tools.
func invoke(ctx context.Context, tools *domain.ToolRegistry, tool *domain.Tool, args json.RawMessage) (string, error) {
	if isObjectSchema(tool.InputSchema) {
		return tools.Invoke(ctx, tool.Name, args)
	}

	var wrapper struct {
		Input json.RawMessage `json:"input"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &wrapper); err != nil {
			return "", errors.Join(domain.ErrInvalidToolInput, err)
		}
	}
	var text string
	if err := json.Unmarshal(wrapper.Input, &text); err == nil {
		return tools.InvokeText(ctx, tool.Name, text)
	}
	return tools.Invoke(ctx, tool.Name, wrapper.Input)
}

func textResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: isError,
	}
}

// resultText joins the text blocks of a tool result.
func resultText(res *mcp.CallToolResult) string {
	var text string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			text += tc.Text
		}
	}
	return text
}

func objectSchema(s *openapi3.Schema) *openapi3.Schema {
	if isObjectSchema(s) {
		return s
	}
	input := s
	if input == nil {
		input = openapi3.NewStringSchema()
	}
	wrapped := openapi3.NewObjectSchema().WithProperty("input", input)
	wrapped.Required = []string{"input"}
	return wrapped
}

func isObjectSchema(s *openapi3.Schema) bool {
	return s != nil && s.Type != nil && s.Type.Is(openapi3.TypeObject)
}

// schemaFrom converts a JSON Schema received from a remote server.
func schemaFrom(v any) (*openapi3.Schema, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	schema := openapi3.NewSchema()
	if err := json.Unmarshal(raw, schema); err != nil {
		return nil, fmt.Errorf("decode input schema: %w", err)
	}
	return schema, nil
}
