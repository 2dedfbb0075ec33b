package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhishekraut01/Gen-AI/internal/core/domain"
)

func newAskCmd(c *cli) *cobra.Command {
	var trace bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Run one question through the reasoning loop and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := buildApp(cmd.Context(), c.logger, c.cfg, true)
			if err != nil {
				return err
			}
			defer k.Close()

			conv := k.conversations.Create()
			result, err := k.conversations.Submit(cmd.Context(), conv.ID, strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if trace {
				printTrace(out, result)
			}
			fmt.Fprintln(out, result.Output)
			return nil
		},
	}
	cmd.Flags().BoolVar(&trace, "trace", false, "print every step before the answer")
	return cmd
}

func printTrace(w io.Writer, result *domain.LoopResult) {
	tool := 0
	for _, step := range result.Steps {
		if step.Kind == domain.StepOutput {
			continue
		}
		fmt.Fprintf(w, "[%s] %s\n", step.Kind, step.Content)
		if step.Kind == domain.StepAction && tool < len(result.ToolCalls) {
			call := result.ToolCalls[tool]
			fmt.Fprintf(w, "  → %s(%s)\n  ← %s\n", call.Tool, call.Input, call.Observation)
			tool++
		}
	}
	if result.Retries > 0 {
		fmt.Fprintf(w, "(%d malformed responses retried)\n", result.Retries)
	}
	fmt.Fprintln(w)
}
