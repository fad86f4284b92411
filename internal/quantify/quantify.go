package quantify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"lipidquant/internal/chrom"
	"lipidquant/internal/config"
	"lipidquant/internal/deps"
	"lipidquant/internal/logging"
	"lipidquant/internal/masslist"
	"lipidquant/internal/quant"
	"lipidquant/internal/reconcile"
	"lipidquant/internal/results"
	"lipidquant/internal/rules"
	"lipidquant/internal/services"
	"lipidquant/internal/stage"
)

// Request names the inputs of one run.
type Request struct {
	Source     string
	Chrom      string
	Definition string
	// Name is the artifact base name; empty uses the source stem.
	Name string
}

// Result describes a finished run.
type Result struct {
	RunID        string
	ArtifactPath string
	Items        int
	Hits         int
	Stats        quant.Stats
	Skipped      []reconcile.Skipped
}

// Option customizes a Runner.
type Option func(*Runner)

// WithOpener replaces the process-backed analyzer.
func WithOpener(opener chrom.Opener) Option {
	return func(r *Runner) {
		if opener != nil {
			r.opener = opener
		}
	}
}

// Runner builds and executes quantification runs.
type Runner struct {
	cfg       *config.Config
	logger    *slog.Logger
	opener    chrom.Opener
	assembler *results.Assembler
}

// New constructs a runner.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "quantify"),
		assembler: results.New(cfg.Paths.ResultsDir, logger),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadDefinition expands an analyte-definition file with the configured
// isobar tolerance. Failures are configuration errors.
func (r *Runner) LoadDefinition(path string) (*masslist.Definition, error) {
	return masslist.Load(path, masslist.Options{IsobarTolerancePPM: r.cfg.Quantification.IsobarTolerancePPM})
}

// HealthCheck reports whether the analyzer can be started.
func (r *Runner) HealthCheck(context.Context) stage.Health {
	const name = "quantification"
	if _, err := r.analyzer(); err != nil {
		return stage.Unhealthy(name, err.Error())
	}
	return stage.Healthy(name)
}

// Run is a quantification in progress.
type Run struct {
	task      *stage.Task[Result]
	scheduler *quant.Scheduler
}

// Finished reports whether the run has returned.
func (r *Run) Finished() bool { return r.task.Finished() }

// Result blocks until the run returns.
func (r *Run) Result() (Result, error) { return r.task.Result() }

// Cancel stops the run; Finished turns true once slots are released.
func (r *Run) Cancel() { r.task.Cancel() }

// Progress returns the scheduler snapshot without blocking.
func (r *Run) Progress() quant.Progress { return r.scheduler.Progress() }

// Start launches a run in the background.
func (r *Runner) Start(ctx context.Context, req Request) *Run {
	book := rules.NewBook(r.cfg.Paths.RulesDir)
	opener, openErr := r.analyzer()
	run := &Run{scheduler: quant.New(quant.OptionsFromConfig(r.cfg), opener, book, r.logger)}
	run.task = stage.Go(ctx, func(ctx context.Context) (Result, error) {
		if openErr != nil {
			return Result{}, openErr
		}
		return r.execute(ctx, req, run.scheduler, book)
	})
	return run
}

func (r *Runner) analyzer() (chrom.Opener, error) {
	if r.opener != nil {
		return r.opener, nil
	}
	status := deps.Check(deps.Requirement{Name: "analyzer", Command: r.cfg.AnalyzerBinary()})
	if !status.Available {
		return nil, services.Wrap(services.ErrConfiguration, "quantification", "resolve tool",
			"analyzer unavailable: "+status.Detail, nil)
	}
	opener, err := chrom.NewProcessOpener(status.Command, r.logger)
	if err != nil {
		return nil, err
	}
	return opener, nil
}

// Execute runs synchronously.
func (r *Runner) Execute(ctx context.Context, req Request) (Result, error) {
	return r.Start(ctx, req).Result()
}

func (r *Runner) execute(ctx context.Context, req Request, scheduler *quant.Scheduler, book *rules.Book) (Result, error) {
	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, r.logger)

	if strings.TrimSpace(req.Chrom) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "quantification", "start", "chromatogram path is empty", nil)
	}
	def, err := r.LoadDefinition(req.Definition)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	outcome, err := scheduler.Run(ctx, req.Chrom, def.Items())
	if err != nil {
		return Result{}, err
	}

	processor := reconcile.New(reconcile.OptionsFromConfig(r.cfg), book, r.logger)
	final, skipped := processor.Apply(reconcile.State{
		Items:     outcome.Items,
		Hits:      outcome.State.Accepted(),
		Snapshots: outcome.State.Snapshots(),
		BasePeak:  outcome.State.BasePeak(),
	})
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("quantification cancelled: %w", err)
	}

	path, err := r.assembler.Write(ctx, results.Input{
		RunID:          runID,
		Name:           req.Name,
		Source:         req.Source,
		Chrom:          req.Chrom,
		Definition:     def.Path,
		DefinitionName: def.Name,
		Settings:       results.SettingsFromConfig(r.cfg),
		RuleVersions:   book.Versions(),
		Items:          len(outcome.Items),
		Rejected:       outcome.State.RejectedCount(),
		Stats:          outcome.Stats,
		State:          final,
		Skipped:        skipped,
	})
	if err != nil {
		return Result{}, err
	}

	logger.Info("quantification run finished",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("artifact", path),
		logging.Int("hits", final.Count()),
		logging.Int("skipped_classes", len(skipped)),
		logging.Duration("duration", time.Since(start)),
	)
	return Result{
		RunID:        runID,
		ArtifactPath: path,
		Items:        len(outcome.Items),
		Hits:         final.Count(),
		Stats:        outcome.Stats,
		Skipped:      skipped,
	}, nil
}
