package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/abhishekraut01/Gen-AI/internal/config"
)

// cli carries what the persistent pre-run resolved for the subcommands.
type cli struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "agent-kernel",
		Short: "Step-protocol agent kernel with a session-multiplexed tool endpoint",
		Long: `agent-kernel drives a language model through the
process → think → action → observe → output cycle, dispatching actions to
registered tools, and serves the same tools to remote clients over
session-scoped JSON-RPC.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Only the server logs to stdout; one-shot commands keep it for results.
			logOut := cmd.ErrOrStderr()
			if cmd.Name() == "serve" {
				logOut = os.Stdout
			}
			return c.init(logOut)
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: search ./config.yaml, ~/.config/genai, /etc/genai)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level override (trace, debug, info, warn, error)")

	root.AddCommand(newServeCmd(c), newAskCmd(c), newToolsCmd(c))
	return root
}

func (c *cli) init(logOut io.Writer) error {
	path, err := config.FindConfig(c.configPath)
	if err != nil {
		if c.configPath != "" {
			return err
		}
		// No file anywhere: run on defaults plus environment.
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}

	logger, err := config.NewLogger(logOut, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if path != "" {
		logger.Info("loaded config", "path", path)
	}

	c.cfg = cfg
	c.logger = logger
	return nil
}
