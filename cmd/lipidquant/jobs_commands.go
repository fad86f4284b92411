package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"lipidquant/internal/queue"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the batch table of the last run",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsStatusCommand(ctx))
	jobsCmd.AddCommand(newJobsClearCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(listStatuses)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				jobs, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, jobs)
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]column{
					{header: "ID", right: true},
					{header: "Pass", right: true},
					{header: "Input", max: 40},
					{header: "Definition", max: 30},
					{header: "Status"},
					{header: "Progress", right: true},
					{header: "Message", max: 60},
				}, buildJobRows(jobs)))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print jobs as JSON")
	return cmd
}

func newJobsStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Count jobs by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(stats))
				for _, status := range queue.AllStatuses() {
					if count := stats[status]; count > 0 {
						rows = append(rows, []string{string(status), fmt.Sprintf("%d", count)})
					}
				}
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]column{
					{header: "Status"},
					{header: "Count", right: true},
				}, rows))
				return nil
			})
		},
	}
}

func newJobsClearCommand(ctx *commandContext) *cobra.Command {
	var clearStatuses []string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove jobs from the batch table",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(clearStatuses)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				removed, err := store.Clear(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d job(s)\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&clearStatuses, "status", "s", nil, "Only clear jobs with this status (repeatable)")
	return cmd
}

func parseStatuses(values []string) ([]queue.Status, error) {
	statuses := make([]queue.Status, 0, len(values))
	for _, value := range values {
		status, ok := queue.ParseStatus(value)
		if !ok {
			valid := make([]string, 0, len(queue.AllStatuses()))
			for _, s := range queue.AllStatuses() {
				valid = append(valid, string(s))
			}
			return nil, fmt.Errorf("unknown status %q (valid: %s)", value, strings.Join(valid, ", "))
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func buildJobRows(jobs []*queue.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		message := job.ProgressMessage
		if job.Status == queue.StatusError {
			message = job.ErrorMessage
		}
		input := filepath.Base(job.SourcePath)
		if job.Derived {
			input += " (derived)"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", job.ID),
			fmt.Sprintf("%d", job.Pass),
			input,
			filepath.Base(job.DefinitionPath),
			string(job.Status),
			fmt.Sprintf("%.0f%%", job.ProgressPercent),
			message,
		})
	}
	return rows
}
