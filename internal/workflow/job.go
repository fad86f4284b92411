package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"lipidquant/internal/convert"
	"lipidquant/internal/fileutil"
	"lipidquant/internal/logging"
	"lipidquant/internal/quantify"
	"lipidquant/internal/queue"
	"lipidquant/internal/services"
	"lipidquant/internal/stage"
)

const bandWidth = 100.0 / 3

// activeJob holds the in-flight stage task of the job being driven. At most
// one of convert and quant is set.
type activeJob struct {
	job     *queue.Job
	pass    int
	index   int
	count   int
	step    string
	started time.Time
	convert *stage.Task[[]string]
	quant   *quantify.Run
	derived []*queue.Job
	logger  *slog.Logger
}

func (a *activeJob) cancel() {
	if a.convert != nil {
		a.convert.Cancel()
		_, _ = a.convert.Result()
		a.convert = nil
	}
	if a.quant != nil {
		a.quant.Cancel()
		_, _ = a.quant.Result()
		a.quant = nil
	}
}

// drive polls one job until it is done or failed. It returns the derived jobs
// of a fan-out and only returns an error on cancellation.
func (c *Coordinator) drive(ctx context.Context, pass, index, count int, job *queue.Job) ([]*queue.Job, error) {
	ctx = services.WithJobID(ctx, job.ID)
	a := &activeJob{job: job, pass: pass, index: index, count: count}
	a.logger = logging.WithContext(ctx, c.logger).With(logging.String("source", filepath.Base(job.SourcePath)))

	for {
		if err := ctx.Err(); err != nil {
			a.cancel()
			job.SetFailed("cancelled")
			c.persist(context.WithoutCancel(ctx), a.logger, job)
			return nil, fmt.Errorf("batch cancelled: %w", err)
		}
		finished := c.tick(ctx, a)
		c.publish(c.progressFor(a))
		if finished {
			return a.derived, nil
		}
		select {
		case <-ctx.Done():
		case <-time.After(c.pollInterval):
		}
	}
}

// tick advances the job by at most one transition and never blocks on a
// running stage.
func (c *Coordinator) tick(ctx context.Context, a *activeJob) bool {
	job := a.job
	switch job.Status {
	case queue.StatusNeedsVendorConversion:
		if a.convert == nil {
			a.convert = c.converter.Start(c.stageContext(ctx, a, convert.StepVendor.String()), convert.StepVendor, job.SourcePath, c.jobDir(job))
			return false
		}
		if !a.convert.Finished() {
			return false
		}
		outputs, err := a.convert.Result()
		a.convert = nil
		if err != nil {
			c.handleJobFailure(ctx, a, err)
			return true
		}
		if len(outputs) > 1 {
			a.derived = c.split(ctx, a, outputs)
			return true
		}
		job.IntermediatePath = outputs[0]
		c.advance(ctx, a, queue.StatusNeedsChromConversion, "Converted to "+filepath.Base(outputs[0]))
		return false

	case queue.StatusNeedsChromConversion:
		if a.convert == nil {
			input := firstNonEmpty(job.IntermediatePath, job.SourcePath)
			a.convert = c.converter.Start(c.stageContext(ctx, a, convert.StepChrom.String()), convert.StepChrom, input, c.jobDir(job))
			return false
		}
		if !a.convert.Finished() {
			return false
		}
		outputs, err := a.convert.Result()
		a.convert = nil
		if err != nil {
			c.handleJobFailure(ctx, a, err)
			return true
		}
		job.ChromPath = outputs[0]
		c.advance(ctx, a, queue.StatusNeedsQuantification, "Built "+filepath.Base(outputs[0]))
		return false

	case queue.StatusNeedsQuantification:
		if a.quant == nil {
			a.quant = c.runner.Start(c.stageContext(ctx, a, "quantification"), quantify.Request{
				Source:     job.SourcePath,
				Chrom:      firstNonEmpty(job.ChromPath, job.SourcePath),
				Definition: job.DefinitionPath,
				Name:       c.artifactName(job),
			})
			return false
		}
		if !a.quant.Finished() {
			return false
		}
		res, err := a.quant.Result()
		a.quant = nil
		if err != nil {
			c.handleJobFailure(ctx, a, err)
			return true
		}
		job.ResultPath = res.ArtifactPath
		c.complete(ctx, a, fmt.Sprintf("%d hits from %d work items", res.Hits, res.Items))
		return true

	default:
		return true
	}
}

// jobDir is the directory that receives a job's conversion outputs. Every
// job of a batch owns its own, so stale-output cleanup and fan-out discovery
// never see files of another job.
func (c *Coordinator) jobDir(job *queue.Job) string {
	return filepath.Join(c.cfg.Paths.WorkDir, "jobs", fmt.Sprintf("pass%d-%03d", job.Pass, job.Position))
}

// artifactName reserves a result name for job that no earlier job of the
// batch holds. Inputs sharing a stem get a numeric suffix.
func (c *Coordinator) artifactName(job *queue.Job) string {
	stem := fileutil.Stem(job.SourcePath)
	name := stem
	for n := 2; ; n++ {
		if _, taken := c.artifacts[name]; !taken {
			break
		}
		name = fmt.Sprintf("%s_%d", stem, n)
	}
	c.artifacts[name] = struct{}{}
	return name
}

func (c *Coordinator) stageContext(ctx context.Context, a *activeJob, step string) context.Context {
	ctx = services.WithStage(ctx, step)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	a.step = step
	a.started = time.Now()
	a.job.ProgressStage = step
	a.job.ProgressMessage = ""
	a.job.ProgressPercent = bandStart(a.job.Status)
	c.persist(ctx, a.logger, a.job)
	logging.WithContext(ctx, a.logger).Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("pass", a.pass),
	)
	return ctx
}

func (c *Coordinator) advance(ctx context.Context, a *activeJob, next queue.Status, message string) {
	a.logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String(logging.FieldStage, a.step),
		logging.String("next_status", string(next)),
		logging.Duration("duration", time.Since(a.started)),
	)
	a.job.Status = next
	a.job.ProgressPercent = bandStart(next)
	a.job.ProgressMessage = message
	c.persist(ctx, a.logger, a.job)
}

func (c *Coordinator) complete(ctx context.Context, a *activeJob, message string) {
	a.job.SetDone(message)
	a.logger.Info("job completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String(logging.FieldStage, a.step),
		logging.String("result", a.job.ResultPath),
		logging.Duration("duration", time.Since(a.started)),
	)
	c.persist(ctx, a.logger, a.job)
}

// split finishes a job whose vendor conversion fanned out and returns one
// derived job per output, each against the same analyte definition.
func (c *Coordinator) split(ctx context.Context, a *activeJob, outputs []string) []*queue.Job {
	derived := make([]*queue.Job, 0, len(outputs))
	names := make([]string, 0, len(outputs))
	for _, out := range outputs {
		derived = append(derived, &queue.Job{
			Pass:           a.pass + 1,
			SourcePath:     out,
			DefinitionPath: a.job.DefinitionPath,
			Derived:        true,
			Status:         queue.StatusNeedsChromConversion,
		})
		names = append(names, filepath.Base(out))
	}
	a.job.IntermediatePath = strings.Join(outputs, string(filepath.ListSeparator))
	a.job.SetDone(fmt.Sprintf("split into %d derived jobs", len(outputs)))
	a.logger.Info("conversion fanned out",
		logging.String(logging.FieldEventType, "job_split"),
		logging.Int("outputs", len(outputs)),
		logging.String("derived", strings.Join(names, ", ")),
	)
	c.persist(ctx, a.logger, a.job)
	return derived
}

// persist writes the job row. Store failures are logged but do not stop the
// batch: the in-memory summary stays authoritative.
func (c *Coordinator) persist(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	if err := c.store.Update(ctx, job); err != nil {
		logging.WarnWithContext(logger, "failed to persist job state", "job_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the jobs database in paths.work_dir"),
			logging.String(logging.FieldImpact, "jobs list may show stale state"),
		)
	}
}

func (c *Coordinator) progressFor(a *activeJob) Progress {
	job := a.job
	percent := job.ProgressPercent
	message := job.ProgressMessage
	if a.quant != nil {
		qp := a.quant.Progress()
		percent = bandStart(queue.StatusNeedsQuantification) + qp.Percent()*bandWidth/100
		message = fmt.Sprintf("%d/%d work items", qp.Finished, qp.Total)
		if qp.Current != "" {
			message += " (" + qp.Current + ")"
		}
	}
	return Progress{
		Pass:     a.pass,
		JobIndex: a.index,
		JobCount: a.count,
		JobID:    job.ID,
		Source:   job.SourcePath,
		Stage:    job.ProgressStage,
		Percent:  percent,
		Message:  message,
	}
}

// bandStart is the job percentage at which a status begins. Each of the
// three stages owns one equal band; skipped stages count as complete.
func bandStart(status queue.Status) float64 {
	switch status {
	case queue.StatusNeedsVendorConversion:
		return 0
	case queue.StatusNeedsChromConversion:
		return bandWidth
	case queue.StatusNeedsQuantification:
		return 2 * bandWidth
	default:
		return 100
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
