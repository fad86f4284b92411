package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lipidquant/internal/convert"
	"lipidquant/internal/logging"
	"lipidquant/internal/preflight"
	"lipidquant/internal/queue"
	"lipidquant/internal/rules"
	"lipidquant/internal/services"
)

// Summary is the in-memory record of a finished batch. The batch table only
// holds the last pass; Summary keeps every job of every pass.
type Summary struct {
	Passes int
	Jobs   []*queue.Job
	Done   int
	Failed int
	Split  int
}

func (s *Summary) record(job *queue.Job) {
	s.Jobs = append(s.Jobs, job.Clone())
	switch job.Status {
	case queue.StatusDone:
		s.Done++
	case queue.StatusError:
		s.Failed++
	}
}

// Run processes sources in order and returns once every job of every pass is
// done or failed. It refuses to start when another batch holds the work
// directory or when any analyte definition is unusable.
func (c *Coordinator) Run(ctx context.Context, sources []Source) (*Summary, error) {
	if len(sources) == 0 {
		return nil, services.Wrap(services.ErrValidation, "workflow", "start", "no input files", nil)
	}
	if err := c.cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "start", "prepare directories", err)
	}
	ok, err := c.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "workflow", "start",
			"another batch is running in "+c.cfg.Paths.WorkDir, nil)
	}
	defer func() {
		if err := c.lock.Unlock(); err != nil {
			c.logger.Warn("failed to release run lock", logging.Error(err))
		}
	}()

	c.setRunning(true)
	defer c.setRunning(false)

	if err := c.preflight(ctx, sources); err != nil {
		c.setLastError(err)
		logging.ErrorWithContext(c.logger, "batch refused", "batch_refused",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the configuration and rerun"),
		)
		return nil, err
	}

	c.artifacts = make(map[string]struct{})
	jobs := c.initialJobs(sources)
	if err := c.store.Replace(ctx, jobs); err != nil {
		return nil, fmt.Errorf("store batch table: %w", err)
	}

	start := time.Now()
	summary := &Summary{}
	c.logger.Info("batch started",
		logging.String(logging.FieldEventType, "batch_start"),
		logging.Int("jobs", len(jobs)),
	)
	for pass := 1; len(jobs) > 0; pass++ {
		summary.Passes = pass
		derived, err := c.runPass(ctx, pass, jobs, summary)
		if err != nil {
			return summary, err
		}
		if len(derived) == 0 {
			break
		}
		for i, job := range derived {
			job.Position = i
		}
		c.logger.Info("starting pass over derived jobs",
			logging.String(logging.FieldEventType, "second_pass"),
			logging.Int("pass", pass+1),
			logging.Int("jobs", len(derived)),
		)
		if err := c.store.Replace(ctx, derived); err != nil {
			return summary, fmt.Errorf("store derived jobs: %w", err)
		}
		jobs = derived
	}

	c.logger.Info("batch completed",
		logging.String(logging.FieldEventType, "batch_complete"),
		logging.Int("passes", summary.Passes),
		logging.Int("done", summary.Done),
		logging.Int("failed", summary.Failed),
		logging.Int("split", summary.Split),
		logging.Duration("duration", time.Since(start)),
	)
	return summary, nil
}

// preflight checks the directories and loads every distinct definition once.
// Broken rule files only warn: reconciliation skips the affected class.
func (c *Coordinator) preflight(ctx context.Context, sources []Source) error {
	if failed := preflight.Failures(preflight.RunAll(ctx, c.cfg)); len(failed) > 0 {
		details := make([]string, 0, len(failed))
		for _, f := range failed {
			details = append(details, f.Name+": "+f.Detail)
		}
		return services.Wrap(services.ErrConfiguration, "workflow", "preflight", strings.Join(details, "; "), nil)
	}

	book := rules.NewBook(c.cfg.Paths.RulesDir)
	seen := make(map[string]struct{})
	for _, src := range sources {
		if strings.TrimSpace(src.Definition) == "" {
			return services.Wrap(services.ErrConfiguration, "workflow", "validate definition",
				"no analyte definition for "+src.Path, nil)
		}
		if _, ok := seen[src.Definition]; ok {
			continue
		}
		seen[src.Definition] = struct{}{}
		def, err := c.runner.LoadDefinition(src.Definition)
		if err != nil {
			return err
		}
		if err := book.Check(def.Classes); err != nil {
			logging.WarnWithContext(c.logger, "rule file unusable", "rule_check",
				logging.String("definition", src.Definition),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "fix the class rule file in paths.rules_dir"),
				logging.String(logging.FieldImpact, "the class is left out of every result"),
			)
		}
	}
	return nil
}

func (c *Coordinator) initialJobs(sources []Source) []*queue.Job {
	jobs := make([]*queue.Job, 0, len(sources))
	for i, src := range sources {
		job := &queue.Job{
			Pass:           1,
			Position:       i,
			SourcePath:     src.Path,
			DefinitionPath: src.Definition,
		}
		if status, err := initialStatus(src.Path); err != nil {
			job.SetFailed(err.Error())
		} else {
			job.Status = status
		}
		jobs = append(jobs, job)
	}
	return jobs
}

// initialStatus maps the input format to the first stage it needs.
func initialStatus(path string) (queue.Status, error) {
	format, err := convert.Detect(path)
	if err != nil {
		return queue.StatusError, err
	}
	switch {
	case format.IsVendor():
		return queue.StatusNeedsVendorConversion, nil
	case format.IsSpectra():
		return queue.StatusNeedsChromConversion, nil
	case format == convert.FormatChrom:
		return queue.StatusNeedsQuantification, nil
	default:
		return queue.StatusError, fmt.Errorf("unsupported input %s", path)
	}
}

func (c *Coordinator) runPass(ctx context.Context, pass int, jobs []*queue.Job, summary *Summary) ([]*queue.Job, error) {
	var derived []*queue.Job
	for i, job := range jobs {
		if job.IsTerminal() {
			if job.Status == queue.StatusError {
				logging.WarnWithContext(c.logger, "job rejected before processing", "job_rejected",
					logging.String("source", job.SourcePath),
					logging.String("reason", job.ErrorMessage),
					logging.String(logging.FieldImpact, "no result for this file"),
				)
			}
			summary.record(job)
			c.setLastJob(job)
			continue
		}
		out, err := c.drive(ctx, pass, i, len(jobs), job)
		summary.record(job)
		c.setLastJob(job)
		if err != nil {
			return nil, err
		}
		if len(out) > 0 {
			summary.Split++
			derived = append(derived, out...)
		}
	}
	return derived, nil
}
