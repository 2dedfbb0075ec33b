package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newToolsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the registered tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := buildApp(cmd.Context(), c.logger, c.cfg, false)
			if err != nil {
				return err
			}
			defer k.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tEXEC\tRETRY-SAFE\tDESCRIPTION")
			for _, t := range k.tools.ListTools() {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", t.Name, t.ExecutionType, t.RetrySafe, t.Description)
			}
			return tw.Flush()
		},
	}
}
