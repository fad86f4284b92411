package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir    string `toml:"work_dir"`
	ResultsDir string `toml:"results_dir"`
	LogDir     string `toml:"log_dir"`
	RulesDir   string `toml:"rules_dir"`
}

// Tools names the external executables the pipeline drives.
type Tools struct {
	MSConvert       string `toml:"msconvert"`
	ChromTranslator string `toml:"chrom_translator"`
	Analyzer        string `toml:"analyzer"`
}

// Conversion contains settings for the vendor and chromatogram conversion steps.
type Conversion struct {
	IntermediateFormat string `toml:"intermediate_format"`
	SplitPolarity      bool   `toml:"split_polarity"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
	RetryAttempts      int    `toml:"retry_attempts"`
	RetryBackoffMS     int    `toml:"retry_backoff_ms"`
}

// Quantification contains scheduler and search settings.
type Quantification struct {
	Parallelism           int     `toml:"parallelism"`
	PollIntervalMS        int     `toml:"poll_interval_ms"`
	Isotopes              int     `toml:"isotopes"`
	MzTolerancePPM        float64 `toml:"mz_tolerance_ppm"`
	IsobarTolerancePPM    float64 `toml:"isobar_tolerance_ppm"`
	RTPredictionTolerance float64 `toml:"rt_prediction_tolerance"`
	MinPredictionSiblings int     `toml:"min_prediction_siblings"`
}

// Reconciliation contains post-processing thresholds.
type Reconciliation struct {
	BasePeakCutoffPermille float64 `toml:"base_peak_cutoff_permille"`
	SamePeakRTTolerance    float64 `toml:"same_peak_rt_tolerance"`
}

// Workflow contains batch coordinator timing.
type Workflow struct {
	PollIntervalMS int `toml:"poll_interval_ms"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for lipidquant.
//
// Configuration sections by subsystem:
//   - Paths: work, results, log, and rule directories
//   - Tools: external converter and analyzer executables
//   - Conversion: intermediate format, polarity splitting, timeouts and retry
//   - Quantification: slot count, poll cadence, search tolerances, RT prediction
//   - Reconciliation: base-peak cutoff and same-peak tolerance
//   - Workflow: batch coordinator poll cadence
//   - Logging: log format and level
type Config struct {
	Paths          Paths          `toml:"paths"`
	Tools          Tools          `toml:"tools"`
	Conversion     Conversion     `toml:"conversion"`
	Quantification Quantification `toml:"quantification"`
	Reconciliation Reconciliation `toml:"reconciliation"`
	Workflow       Workflow       `toml:"workflow"`
	Logging        Logging        `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/lipidquant/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/lipidquant/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("lipidquant.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for a batch run. The rules
// directory is only read, so it is not created here.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.ResultsDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// MSConvertBinary returns the vendor conversion executable. An empty value
// means vendor formats cannot be converted on this host.
func (c *Config) MSConvertBinary() string {
	return strings.TrimSpace(c.Tools.MSConvert)
}

// ChromTranslatorBinary returns the intermediate-to-chromatogram executable.
func (c *Config) ChromTranslatorBinary() string {
	return binaryOrDefault(c.Tools.ChromTranslator, defaultChromTranslator)
}

// AnalyzerBinary returns the chromatogram search executable.
func (c *Config) AnalyzerBinary() string {
	return binaryOrDefault(c.Tools.Analyzer, defaultAnalyzer)
}

// ConversionTimeout returns the per-invocation timeout for conversion tools.
func (c *Config) ConversionTimeout() time.Duration {
	return time.Duration(c.Conversion.TimeoutSeconds) * time.Second
}

// RetryBackoff returns the delay between conversion retry attempts.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Conversion.RetryBackoffMS) * time.Millisecond
}

// QuantPollInterval returns the scheduler tick cadence.
func (c *Config) QuantPollInterval() time.Duration {
	return time.Duration(c.Quantification.PollIntervalMS) * time.Millisecond
}

// WorkflowPollInterval returns the batch coordinator tick cadence.
func (c *Config) WorkflowPollInterval() time.Duration {
	return time.Duration(c.Workflow.PollIntervalMS) * time.Millisecond
}

// JobsDBPath returns the location of the batch table database.
func (c *Config) JobsDBPath() string {
	return filepath.Join(c.Paths.WorkDir, "jobs.db")
}

// RunLockPath returns the lock file guarding the work directory.
func (c *Config) RunLockPath() string {
	return filepath.Join(c.Paths.WorkDir, "lipidquant.lock")
}

func binaryOrDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
