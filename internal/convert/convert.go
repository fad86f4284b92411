package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lipidquant/internal/config"
	"lipidquant/internal/deps"
	"lipidquant/internal/fileutil"
	"lipidquant/internal/logging"
	"lipidquant/internal/services"
	"lipidquant/internal/stage"
)

// Step identifies one of the two conversion stages.
type Step int

const (
	StepVendor Step = iota + 1
	StepChrom
)

func (s Step) String() string {
	switch s {
	case StepVendor:
		return "vendor_conversion"
	case StepChrom:
		return "chrom_conversion"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

const outputTailLines = 5

// Option configures the converter.
type Option func(*Converter)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Converter) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Converter runs the conversion tools configured for a batch.
type Converter struct {
	msconvert     string
	translator    string
	workDir       string
	format        string
	splitPolarity bool
	timeout       time.Duration
	retries       int
	backoff       time.Duration
	exec          Executor
	logger        *slog.Logger
}

// New constructs a converter from configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Converter {
	c := &Converter{
		msconvert:     cfg.MSConvertBinary(),
		translator:    cfg.ChromTranslatorBinary(),
		workDir:       cfg.Paths.WorkDir,
		format:        cfg.Conversion.IntermediateFormat,
		splitPolarity: cfg.Conversion.SplitPolarity,
		timeout:       cfg.ConversionTimeout(),
		retries:       cfg.Conversion.RetryAttempts,
		backoff:       cfg.RetryBackoff(),
		exec:          commandExecutor{},
		logger:        logging.NewComponentLogger(logger, "convert"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start runs step for source in the background, writing into outDir. The
// task yields the produced paths: one or more intermediate files for
// StepVendor, exactly one chromatogram for StepChrom.
func (c *Converter) Start(ctx context.Context, step Step, source, outDir string) *stage.Task[[]string] {
	return stage.Go(ctx, func(ctx context.Context) ([]string, error) {
		switch step {
		case StepVendor:
			return c.ToIntermediate(ctx, source, outDir)
		case StepChrom:
			out, err := c.ToChrom(ctx, source, outDir)
			if err != nil {
				return nil, err
			}
			return []string{out}, nil
		default:
			return nil, fmt.Errorf("unknown conversion step %d", int(step))
		}
	})
}

// ToIntermediate converts a vendor acquisition into outDir and returns every
// produced intermediate file, sorted by name. An empty outDir means the work
// directory. Only outputs of this source's stem in outDir are replaced, so
// each job should own its directory.
func (c *Converter) ToIntermediate(ctx context.Context, source, outDir string) ([]string, error) {
	step := StepVendor.String()
	format, err := Detect(source)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, step, "detect format", source, err)
	}
	if !format.IsVendor() {
		return nil, services.Wrap(services.ErrValidation, step, "detect format",
			fmt.Sprintf("%s is not a vendor format", filepath.Base(source)), nil)
	}
	if c.msconvert == "" {
		return nil, services.Wrap(services.ErrConfiguration, step, "resolve tool",
			fmt.Sprintf("no converter configured for %s input; set tools.msconvert", format), nil)
	}
	binary, err := c.resolve("msconvert", c.msconvert, step)
	if err != nil {
		return nil, err
	}

	dir, err := c.outputDir(outDir)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, step, "prepare output dir", outDir, err)
	}
	ext := IntermediateExt(c.format)
	stem := fileutil.Stem(source)
	if err := fileutil.RemoveByStem(dir, stem, ext); err != nil {
		return nil, services.Wrap(services.ErrTransient, step, "prepare output dir", dir, err)
	}

	polarities := []string{""}
	if c.splitPolarity {
		polarities = []string{"positive", "negative"}
	}
	for _, polarity := range polarities {
		args := msconvertArgs(source, dir, stem, ext, polarity)
		if err := c.runWithRetry(ctx, step, binary, args); err != nil {
			return nil, err
		}
	}

	outputs, err := fileutil.ListByStem(dir, stem, ext)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, step, "discover outputs", dir, err)
	}
	if len(outputs) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, step, "discover outputs",
			fmt.Sprintf("msconvert produced no %s output for %s", ext, stem), nil)
	}
	return outputs, nil
}

// ToChrom builds the chromatogram for an intermediate spectra file in outDir.
// An empty outDir means the work directory.
func (c *Converter) ToChrom(ctx context.Context, spectra, outDir string) (string, error) {
	step := StepChrom.String()
	format, err := Detect(spectra)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, step, "detect format", spectra, err)
	}
	if !format.IsSpectra() {
		return "", services.Wrap(services.ErrValidation, step, "detect format",
			fmt.Sprintf("%s is not an mzML or mzXML file", filepath.Base(spectra)), nil)
	}
	binary, err := c.resolve("chromatogram translator", c.translator, step)
	if err != nil {
		return "", err
	}

	dir, err := c.outputDir(outDir)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, step, "prepare output dir", outDir, err)
	}
	out := filepath.Join(dir, fileutil.Stem(spectra)+ChromExt)
	if err := os.RemoveAll(out); err != nil {
		return "", services.Wrap(services.ErrTransient, step, "prepare output dir", out, err)
	}
	if err := c.runWithRetry(ctx, step, binary, []string{"--input", spectra, "--output", out}); err != nil {
		return "", err
	}
	if _, err := os.Stat(out); err != nil {
		return "", services.Wrap(services.ErrExternalTool, step, "verify output",
			"chromatogram translator produced no output", err)
	}
	return out, nil
}

func (c *Converter) outputDir(outDir string) (string, error) {
	dir := strings.TrimSpace(outDir)
	if dir == "" {
		dir = c.workDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func msconvertArgs(source, dir, stem, ext, polarity string) []string {
	name := stem + ext
	if polarity != "" {
		name = stem + "_" + polarity + ext
	}
	args := []string{source, "--" + strings.TrimPrefix(ext, "."), "-o", dir, "--outfile", name}
	if polarity != "" {
		args = append(args, "--filter", "polarity "+polarity)
	}
	return args
}

func (c *Converter) resolve(name, command, step string) (string, error) {
	status := deps.Check(deps.Requirement{Name: name, Command: command})
	if !status.Available {
		return "", services.Wrap(services.ErrConfiguration, step, "resolve tool",
			fmt.Sprintf("%s unavailable: %s", name, status.Detail), nil)
	}
	return status.Command, nil
}

func (c *Converter) runWithRetry(ctx context.Context, step, binary string, args []string) error {
	logger := logging.WithContext(ctx, c.logger)
	attempts := c.retries + 1
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		start := time.Now()
		logger.Debug("conversion tool started",
			logging.String("tool", filepath.Base(binary)),
			logging.String("args", strings.Join(args, " ")),
			logging.Int("attempt", attempt),
		)
		err := c.runOnce(ctx, step, binary, args)
		if err == nil {
			logger.Debug("conversion tool finished",
				logging.String("tool", filepath.Base(binary)),
				logging.Duration("duration", time.Since(start)),
			)
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s cancelled: %w", step, ctx.Err())
		}
		if !services.IsRetryable(err) || attempt >= attempts {
			return err
		}
		logging.WarnWithContext(logger, "conversion attempt failed; retrying", "conversion_retry",
			logging.Error(err),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", attempts),
			logging.Duration("backoff", c.backoff),
			logging.String(logging.FieldErrorHint, "raise conversion.timeout_seconds for large acquisitions"),
			logging.String(logging.FieldImpact, "conversion will be attempted again"),
		)
		if c.backoff > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s cancelled: %w", step, ctx.Err())
			case <-time.After(c.backoff):
			}
		}
	}
}

func (c *Converter) runOnce(ctx context.Context, step, binary string, args []string) error {
	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var tail []string
	err := c.exec.Run(runCtx, binary, args, func(line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		c.logger.Debug("tool output", logging.String("line", line))
		tail = append(tail, line)
		if len(tail) > outputTailLines {
			tail = tail[1:]
		}
	})
	if err == nil {
		return nil
	}
	tool := filepath.Base(binary)
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return services.Wrap(services.ErrTimeout, step, "run "+tool,
			fmt.Sprintf("exceeded %s", c.timeout), err)
	}
	message := tool + " failed"
	if len(tail) > 0 {
		message += "; last output: " + strings.Join(tail, " | ")
	}
	return services.Wrap(services.ErrExternalTool, step, "run "+tool, message, err)
}

// HealthCheck reports whether the conversion tools resolve. A missing vendor
// converter only degrades the stage: open formats still convert.
func (c *Converter) HealthCheck(context.Context) stage.Health {
	const name = "conversion"
	translator := deps.Check(deps.Requirement{Name: "chromatogram translator", Command: c.translator})
	if !translator.Available {
		return stage.Unhealthy(name, translator.Detail)
	}
	vendor := deps.Check(deps.Requirement{Name: "msconvert", Command: c.msconvert})
	if !vendor.Available {
		return stage.Health{Name: name, Ready: true, Detail: "vendor formats unavailable: " + vendor.Detail}
	}
	return stage.Healthy(name)
}
