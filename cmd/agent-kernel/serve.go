package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/abhishekraut01/Gen-AI/pkg/kernel"
	"github.com/abhishekraut01/Gen-AI/pkg/mcp"
)

func newServeCmd(c *cli) *cobra.Command {
	var origins []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the tool session endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context(), origins)
		},
	}
	cmd.Flags().StringSliceVar(&origins, "cors-origin", []string{"http://localhost:5173"}, "allowed CORS origins")
	return cmd
}

func (c *cli) serve(ctx context.Context, origins []string) error {
	logger := c.logger
	logger.Info("starting agent kernel", "version", version)

	k, err := buildApp(ctx, logger, c.cfg, true)
	if err != nil {
		return fmt.Errorf("kernel startup failed: %w", err)
	}
	defer func() {
		if err := k.Close(); err != nil {
			logger.Warn("failed to release adapters", "error", err)
		}
	}()

	apiServer := kernel.NewServer(logger, k.conversations, k.events, k.tools, version)

	var router *mcp.SessionRouter
	if c.cfg.MCP.Enabled {
		info := &mcp.Implementation{Name: "agent-kernel", Version: version}
		instructions := mcp.WithInstructions(c.cfg.MCP.Instructions)
		router = mcp.NewSessionRouter(logger, func() *mcp.Server {
			return mcp.NewServer(logger, info, k.tools, instructions)
		}, mcp.WithNotificationBuffer(c.cfg.MCP.NotificationBuffer))
		apiServer.MountSessions(c.cfg.MCP.Path, router)
		logger.Info("tool session endpoint enabled", "path", c.cfg.MCP.Path)
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{mcp.HeaderSessionID},
		AllowCredentials: true,
	})

	httpServer := &http.Server{
		Addr:              c.cfg.Listen.Addr(),
		Handler:           corsHandler.Handler(apiServer.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting api server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down api server")
		// Ending the sessions first closes their long-lived streams.
		if router != nil {
			router.Shutdown()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
