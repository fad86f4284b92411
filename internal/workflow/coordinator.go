package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"lipidquant/internal/config"
	"lipidquant/internal/convert"
	"lipidquant/internal/logging"
	"lipidquant/internal/quantify"
	"lipidquant/internal/queue"
	"lipidquant/internal/stage"
)

// Source is one input file and the analyte definition it is quantified
// against.
type Source struct {
	Path       string
	Definition string
}

// Option configures optional Coordinator behavior.
type Option func(*Coordinator)

// WithConverter replaces the converter built from configuration.
func WithConverter(converter *convert.Converter) Option {
	return func(c *Coordinator) {
		if converter != nil {
			c.converter = converter
		}
	}
}

// WithRunner replaces the quantification runner built from configuration.
func WithRunner(runner *quantify.Runner) Option {
	return func(c *Coordinator) {
		if runner != nil {
			c.runner = runner
		}
	}
}

// Coordinator runs batches of conversion jobs.
type Coordinator struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	pollInterval time.Duration
	converter    *convert.Converter
	runner       *quantify.Runner
	lock         *flock.Flock
	artifacts    map[string]struct{}

	mu       sync.RWMutex
	running  bool
	lastErr  error
	progress Progress
	lastJob  *queue.Job
}

// New constructs a coordinator.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...Option) *Coordinator {
	logger = logging.NewComponentLogger(logger, "workflow")
	c := &Coordinator{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		pollInterval: cfg.WorkflowPollInterval(),
		converter:    convert.New(cfg, logger),
		runner:       quantify.New(cfg, logger),
		lock:         flock.New(cfg.RunLockPath()),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pollInterval <= 0 {
		c.pollInterval = time.Second
	}
	return c
}

// Progress is the coarse state of the job currently being processed.
type Progress struct {
	Pass     int
	JobIndex int
	JobCount int
	JobID    int64
	Source   string
	Stage    string
	Percent  float64
	Message  string
}

// Progress returns the latest snapshot without blocking on the batch.
func (c *Coordinator) Progress() Progress {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.progress
}

// StatusSummary represents lightweight batch diagnostics.
type StatusSummary struct {
	Running     bool
	LastError   string
	LastJob     *queue.Job
	Progress    Progress
	JobStats    map[queue.Status]int
	StageHealth map[string]stage.Health
}

// Status returns the latest batch information.
func (c *Coordinator) Status(ctx context.Context) StatusSummary {
	c.mu.RLock()
	summary := StatusSummary{
		Running:  c.running,
		LastJob:  c.lastJob.Clone(),
		Progress: c.progress,
	}
	if c.lastErr != nil {
		summary.LastError = c.lastErr.Error()
	}
	c.mu.RUnlock()

	stats, err := c.store.Stats(ctx)
	if err != nil {
		c.logger.Warn("failed to read job stats", logging.Error(err))
	}
	summary.JobStats = stats

	summary.StageHealth = make(map[string]stage.Health, 2)
	for _, checker := range []stage.HealthChecker{c.converter, c.runner} {
		health := checker.HealthCheck(ctx)
		summary.StageHealth[health.Name] = health
	}
	return summary
}

func (c *Coordinator) setRunning(running bool) {
	c.mu.Lock()
	c.running = running
	if !running {
		c.progress.Stage = ""
	}
	c.mu.Unlock()
}

func (c *Coordinator) setLastError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

func (c *Coordinator) setLastJob(job *queue.Job) {
	c.mu.Lock()
	c.lastJob = job.Clone()
	c.mu.Unlock()
}

func (c *Coordinator) publish(p Progress) {
	c.mu.Lock()
	c.progress = p
	c.mu.Unlock()
}
