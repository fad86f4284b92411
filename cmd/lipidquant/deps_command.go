package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lipidquant/internal/deps"
	"lipidquant/internal/preflight"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check external tools and directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			statuses := preflight.CheckSystemDeps(cfg)
			rows := make([][]string, 0, len(statuses))
			for _, status := range statuses {
				detail := status.Command
				if !status.Available {
					detail = status.Detail
				}
				rows = append(rows, []string{status.Name, yesNo(status.Available), yesNo(!status.Optional), detail})
			}
			fmt.Fprint(out, renderTable([]column{
				{header: "Tool"},
				{header: "Available"},
				{header: "Required"},
				{header: "Detail", max: 60},
			}, rows))

			checks := preflight.RunAll(cmd.Context(), cfg)
			checkRows := make([][]string, 0, len(checks))
			for _, check := range checks {
				checkRows = append(checkRows, []string{check.Name, yesNo(check.Passed), check.Detail})
			}
			fmt.Fprint(out, renderTable([]column{
				{header: "Check"},
				{header: "Passed"},
				{header: "Detail", max: 60},
			}, checkRows))

			missing := deps.MissingRequired(statuses)
			failed := preflight.Failures(checks)
			if len(missing) > 0 || len(failed) > 0 {
				return fmt.Errorf("%d required tool(s) missing, %d check(s) failed", len(missing), len(failed))
			}
			return nil
		},
	}
}
