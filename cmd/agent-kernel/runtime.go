package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abhishekraut01/Gen-AI/internal/adapters/docker"
	"github.com/abhishekraut01/Gen-AI/internal/adapters/duckdb"
	"github.com/abhishekraut01/Gen-AI/internal/adapters/providers"
	"github.com/abhishekraut01/Gen-AI/internal/config"
	"github.com/abhishekraut01/Gen-AI/internal/core/domain"
	"github.com/abhishekraut01/Gen-AI/internal/core/ports"
	"github.com/abhishekraut01/Gen-AI/internal/core/services"
	"github.com/abhishekraut01/Gen-AI/pkg/mcp"
)

// app is the wired object graph shared by the subcommands.
type app struct {
	logger        *slog.Logger
	tools         *domain.ToolRegistry
	events        *services.EventBus
	conversations *services.ConversationManager

	closers []func() error
}

// buildApp wires adapters, tools and the conversation manager from cfg.
// withModel is false for commands that only need the tool registry.
func buildApp(ctx context.Context, logger *slog.Logger, cfg *config.Config, withModel bool) (*app, error) {
	k := &app{
		logger: logger,
		tools:  domain.NewToolRegistry(),
		events: services.NewEventBus(logger),
	}

	posts, err := k.buildPostRepository(ctx, cfg.Posts)
	if err != nil {
		return nil, k.fail(err)
	}

	if err := k.tools.Register(services.NewWeatherTool(services.WeatherConfig{
		APIKey:  cfg.Weather.APIKey,
		BaseURL: cfg.Weather.BaseURL,
	})); err != nil {
		return nil, k.fail(err)
	}
	if err := services.RegisterPostTools(k.tools, posts); err != nil {
		return nil, k.fail(err)
	}
	if cfg.ShellExec.Enabled {
		if err := k.registerExecTool(ctx, cfg.ShellExec); err != nil {
			return nil, k.fail(err)
		}
	}
	for _, endpoint := range cfg.Agent.RemoteToolServers {
		if err := k.importRemoteTools(ctx, endpoint); err != nil {
			return nil, k.fail(err)
		}
	}
	logger.Info("tools registered", "count", len(k.tools.ListTools()))

	if !withModel {
		return k, nil
	}

	model, err := providers.BuildModelCaller(cfg.Model)
	if err != nil {
		return nil, k.fail(err)
	}
	loopCfg := services.LoopConfig{
		MaxSteps:         cfg.Agent.MaxSteps,
		MalformedRetries: cfg.Agent.MalformedRetries,
		ModelTimeout:     cfg.Agent.ModelTimeout(),
		ToolTimeout:      cfg.Agent.ToolTimeout(),
	}
	loopCfg.SystemPrompt = services.BuildSystemPrompt(k.tools, cfg.Agent.SystemPrompt)
	k.conversations = services.NewConversationManager(logger, model, k.tools, k.events, loopCfg, 0)

	logger.Info("model caller ready", "provider", cfg.Model.Provider, "model", cfg.Model.Name)
	return k, nil
}

func (k *app) buildPostRepository(ctx context.Context, cfg config.PostsConfig) (ports.PostRepository, error) {
	if cfg.Backend != "duckdb" {
		return services.NewMemoryPostStore(), nil
	}
	repo, err := duckdb.NewPostRepository(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open post repository: %w", err)
	}
	k.closers = append(k.closers, repo.Close)
	k.logger.Info("post repository ready", "backend", "duckdb", "persistent", cfg.DSN != "")
	return repo, nil
}

func (k *app) registerExecTool(ctx context.Context, cfg config.ShellExecConfig) error {
	execCfg := services.ExecConfig{
		DeniedPatterns: cfg.DeniedPatterns,
		Timeout:        time.Duration(cfg.DefaultTimeoutSec) * time.Second,
		MaxOutputBytes: cfg.MaxOutputBytes,
		MaxConcurrent:  int64(cfg.MaxConcurrent),
		ExecutionType:  domain.ExecNative,
	}

	var runner ports.CommandRunner
	switch cfg.Backend {
	case "docker":
		sandbox, err := docker.NewSandbox(k.logger, cfg.Image)
		if err != nil {
			return err
		}
		// Containers left behind by a previous crash.
		if n, err := sandbox.Prune(ctx); err != nil {
			k.logger.Warn("failed to prune sandbox containers", "error", err)
		} else if n > 0 {
			k.logger.Info("pruned stale sandbox containers", "count", n)
		}
		runner = sandbox
		execCfg.ExecutionType = domain.ExecDocker
	default:
		runner = services.NewLocalRunner(cfg.WorkingDir)
	}

	k.logger.Info("shell execution enabled", "backend", cfg.Backend)
	return k.tools.Register(services.NewExecTool(runner, execCfg))
}

func (k *app) importRemoteTools(ctx context.Context, endpoint string) error {
	client := mcp.NewClient(endpoint, mcp.Implementation{Name: "agent-kernel", Version: version},
		mcp.WithClientLogger(k.logger.With("remote", endpoint)))
	if _, err := client.Initialize(ctx); err != nil {
		return fmt.Errorf("remote tool server %s: %w", endpoint, err)
	}
	k.closers = append(k.closers, client.Close)

	names, err := mcp.RegisterRemoteTools(ctx, k.tools, client)
	if err != nil {
		return err
	}
	k.logger.Info("remote tools imported", "endpoint", endpoint, "session_id", client.SessionID(), "tools", names)
	return nil
}

// Close releases adapters in reverse order of creation.
func (k *app) Close() error {
	var errs []error
	for i := len(k.closers) - 1; i >= 0; i-- {
		errs = append(errs, k.closers[i]())
	}
	k.closers = nil
	return errors.Join(errs...)
}

func (k *app) fail(err error) error {
	if cerr := k.Close(); cerr != nil {
		k.logger.Warn("cleanup after failed startup", "error", cerr)
	}
	return err
}
