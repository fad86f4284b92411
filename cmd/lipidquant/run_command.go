package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"lipidquant/internal/config"
	"lipidquant/internal/queue"
	"lipidquant/internal/workflow"
)

const progressRefresh = 200 * time.Millisecond

func newRunCommand(ctx *commandContext) *cobra.Command {
	var definition string
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "run [flags] <input>[=<definition>]...",
		Short: "Convert and quantify a batch of acquisitions",
		Long: `Convert and quantify a batch of acquisitions in order.

Every input is quantified against --definition unless it carries its own
definition file after an equals sign, for example sample.raw=neg_panel.yaml.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			sources, err := parseSources(args, definition)
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}

			return ctx.withStore(func(store *queue.Store) error {
				coordinator := workflow.New(cfg, store, logger)
				var summary *workflow.Summary
				runErr := withProgress(cmd.Context(), cmd.ErrOrStderr(), !noProgress, coordinator, func(runCtx context.Context) error {
					var err error
					summary, err = coordinator.Run(runCtx, sources)
					return err
				})
				if summary != nil {
					fmt.Fprint(cmd.OutOrStdout(), renderSummary(cfg, summary))
				}
				if runErr != nil {
					return runErr
				}
				if summary.Failed > 0 {
					return fmt.Errorf("%d of %d jobs failed; see `lipidquant jobs list`", summary.Failed, len(summary.Jobs))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&definition, "definition", "d", "", "Analyte definition file for inputs without their own")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	return cmd
}

// parseSources splits "input=definition" arguments. The split is at the last
// equals sign so inputs may contain one.
func parseSources(args []string, fallback string) ([]workflow.Source, error) {
	fallback = strings.TrimSpace(fallback)
	sources := make([]workflow.Source, 0, len(args))
	for _, arg := range args {
		input, def := arg, fallback
		if idx := strings.LastIndex(arg, "="); idx > 0 {
			input, def = arg[:idx], arg[idx+1:]
		}
		input, err := absPath(input)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(def) == "" {
			return nil, fmt.Errorf("no analyte definition for %s; pass --definition or %s=<file>", input, filepath.Base(input))
		}
		def, err = absPath(def)
		if err != nil {
			return nil, err
		}
		sources = append(sources, workflow.Source{Path: input, Definition: def})
	}
	return sources, nil
}

func absPath(value string) (string, error) {
	expanded, err := config.ExpandPath(strings.TrimSpace(value))
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", value, err)
	}
	return filepath.Abs(expanded)
}

// withProgress runs fn and, when w is a terminal, renders the coordinator's
// progress as a bar until fn returns.
func withProgress(ctx context.Context, w io.Writer, enabled bool, c *workflow.Coordinator, fn func(context.Context) error) error {
	if !enabled || !isTerminal(w) {
		return fn(ctx)
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
	)
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	ticker := time.NewTicker(progressRefresh)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			_ = bar.Finish()
			return err
		case <-ticker.C:
			p := c.Progress()
			if p.JobCount == 0 {
				continue
			}
			bar.Describe(describeProgress(p))
			_ = bar.Set(int(batchPercent(p)))
		}
	}
}

func describeProgress(p workflow.Progress) string {
	label := fmt.Sprintf("pass %d, %d/%d %s", p.Pass, p.JobIndex+1, p.JobCount, filepath.Base(p.Source))
	if p.Stage != "" {
		label += " [" + p.Stage + "]"
	}
	return label
}

// batchPercent spreads the current job's percentage over its share of the
// pass.
func batchPercent(p workflow.Progress) float64 {
	if p.JobCount == 0 {
		return 0
	}
	return (float64(p.JobIndex)*100 + p.Percent) / float64(p.JobCount)
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func renderSummary(cfg *config.Config, summary *workflow.Summary) string {
	rows := make([][]string, 0, len(summary.Jobs))
	for _, job := range summary.Jobs {
		outcome := job.ProgressMessage
		if job.Status == queue.StatusError {
			outcome = job.ErrorMessage
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", job.Pass),
			filepath.Base(job.SourcePath),
			string(job.Status),
			relativeTo(cfg.Paths.ResultsDir, job.ResultPath),
			outcome,
		})
	}
	table := renderTable([]column{
		{header: "Pass", right: true},
		{header: "Input", max: 40},
		{header: "Status"},
		{header: "Result", max: 40},
		{header: "Outcome", max: 60},
	}, rows)
	return table + fmt.Sprintf("%d done, %d failed, %d split over %d pass(es)\n",
		summary.Done, summary.Failed, summary.Split, summary.Passes)
}

func relativeTo(dir, path string) string {
	if path == "" {
		return "-"
	}
	if rel, err := filepath.Rel(dir, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
