package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"lipidquant/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Poll intervals are shortened so scheduler and coordinator tests run quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.ResultsDir = filepath.Join(base, "results")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.RulesDir = filepath.Join(base, "rules")
	cfgVal.Quantification.PollIntervalMS = 5
	cfgVal.Workflow.PollIntervalMS = 5
	cfgVal.Conversion.RetryBackoffMS = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	if err := os.MkdirAll(builder.cfg.Paths.RulesDir, 0o755); err != nil {
		t.Fatalf("mkdir rules dir: %v", err)
	}
	return builder.cfg
}

// WithParallelism overrides the analyzer slot count.
func WithParallelism(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Quantification.Parallelism = n
	}
}

// WithSplitPolarity toggles per-polarity vendor conversion.
func WithSplitPolarity(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Conversion.SplitPolarity = enabled
	}
}

// WithStubbedTools writes stub executables for every configured tool and
// points the config at them by absolute path.
func WithStubbedTools() ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		b.cfg.Tools.MSConvert = WriteExecutable(b.t, filepath.Join(binDir, "msconvert"), "exit 0")
		b.cfg.Tools.ChromTranslator = WriteExecutable(b.t, filepath.Join(binDir, "lipidquant-chrom"), "exit 0")
		b.cfg.Tools.Analyzer = WriteExecutable(b.t, filepath.Join(binDir, "lipidquant-analyzer"), "exit 0")
	}
}

// msconvertStub writes the file named by --outfile into the -o directory.
const msconvertStub = `out=""
name=""
while [ $# -gt 0 ]; do
  case "$1" in
    -o) out="$2"; shift ;;
    --outfile) name="$2"; shift ;;
  esac
  shift
done
echo spectra > "$out/$name"`

// translatorStub writes the file named by --output.
const translatorStub = `out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output) out="$2"; shift ;;
  esac
  shift
done
echo chrom > "$out"`

// WithConversionStubs installs converter stubs that produce their outputs,
// so batch tests run both conversion stages for real.
func WithConversionStubs() ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		b.cfg.Tools.MSConvert = WriteExecutable(b.t, filepath.Join(binDir, "msconvert"), msconvertStub)
		b.cfg.Tools.ChromTranslator = WriteExecutable(b.t, filepath.Join(binDir, "lipidquant-chrom"), translatorStub)
	}
}

// WithoutMSConvert clears the vendor converter path.
func WithoutMSConvert() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Tools.MSConvert = ""
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
