package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeConversion()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ResultsDir) == "" {
		c.Paths.ResultsDir = defaultResultsDir
	}
	if c.Paths.ResultsDir, err = expandPath(c.Paths.ResultsDir); err != nil {
		return fmt.Errorf("paths.results_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.RulesDir) == "" {
		c.Paths.RulesDir = defaultRulesDir
	}
	if c.Paths.RulesDir, err = expandPath(c.Paths.RulesDir); err != nil {
		return fmt.Errorf("paths.rules_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTools() {
	if value, ok := os.LookupEnv("LIPIDQUANT_MSCONVERT"); ok && strings.TrimSpace(value) != "" {
		c.Tools.MSConvert = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("LIPIDQUANT_ANALYZER"); ok && strings.TrimSpace(value) != "" {
		c.Tools.Analyzer = strings.TrimSpace(value)
	}
	c.Tools.MSConvert = strings.TrimSpace(c.Tools.MSConvert)
	c.Tools.ChromTranslator = strings.TrimSpace(c.Tools.ChromTranslator)
	if c.Tools.ChromTranslator == "" {
		c.Tools.ChromTranslator = defaultChromTranslator
	}
	c.Tools.Analyzer = strings.TrimSpace(c.Tools.Analyzer)
	if c.Tools.Analyzer == "" {
		c.Tools.Analyzer = defaultAnalyzer
	}
}

func (c *Config) normalizeConversion() {
	switch strings.ToLower(strings.TrimSpace(c.Conversion.IntermediateFormat)) {
	case "mzxml":
		c.Conversion.IntermediateFormat = "mzXML"
	case "mzml", "":
		c.Conversion.IntermediateFormat = "mzML"
	}
	if c.Conversion.RetryAttempts < 0 {
		c.Conversion.RetryAttempts = 0
	}
	if c.Conversion.RetryBackoffMS < 0 {
		c.Conversion.RetryBackoffMS = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
