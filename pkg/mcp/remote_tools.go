package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/abhishekraut01/Gen-AI/internal/core/domain"
)

// RegisterRemoteTools lists the tools of an initialized client and registers
// each one in reg as an ExecRemote tool forwarding to tools/call. It returns
// the registered names.
func RegisterRemoteTools(ctx context.Context, reg *domain.ToolRegistry, client *Client) ([]string, error) {
	descriptors, err := client.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		tool, err := remoteTool(client, d)
		if err != nil {
			return names, fmt.Errorf("remote tool %s: %w", d.Name, err)
		}
		if err := reg.Register(tool); err != nil {
			return names, fmt.Errorf("register remote tool %s: %w", d.Name, err)
		}
		names = append(names, d.Name)
	}
	return names, nil
}

func remoteTool(client *Client, d *mcp.Tool) (*domain.Tool, error) {
	schema, err := schemaFrom(d.InputSchema)
	if err != nil {
		return nil, err
	}
	retrySafe := d.Annotations != nil && (d.Annotations.ReadOnlyHint || d.Annotations.IdempotentHint)

	name := d.Name
	return &domain.Tool{
		Name:          name,
		Description:   d.Description,
		InputSchema:   schema,
		ExecutionType: domain.ExecRemote,
		RetrySafe:     retrySafe,
		Execute: func(ctx context.Context, input any) (string, error) {
			result, err := client.CallTool(ctx, name, input)
			if err != nil {
				return "", err
			}
			if result.IsError {
				return "", errors.New(resultText(result))
			}
			return resultText(result), nil
		},
	}, nil
}
