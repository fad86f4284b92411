package config

import (
	"errors"
	"fmt"
	"sort"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateConversion(); err != nil {
		return err
	}
	if err := c.validateQuantification(); err != nil {
		return err
	}
	if err := c.validateReconciliation(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must be set")
	}
	if c.Paths.ResultsDir == "" {
		return errors.New("paths.results_dir must be set")
	}
	return nil
}

func (c *Config) validateConversion() error {
	switch c.Conversion.IntermediateFormat {
	case "mzML", "mzXML":
	default:
		return fmt.Errorf("conversion.intermediate_format must be mzML or mzXML, got %q", c.Conversion.IntermediateFormat)
	}
	return ensurePositiveMap(map[string]int{
		"conversion.timeout_seconds": c.Conversion.TimeoutSeconds,
		"workflow.poll_interval_ms":  c.Workflow.PollIntervalMS,
	})
}

func (c *Config) validateQuantification() error {
	if err := ensurePositiveMap(map[string]int{
		"quantification.parallelism":             c.Quantification.Parallelism,
		"quantification.poll_interval_ms":        c.Quantification.PollIntervalMS,
		"quantification.isotopes":                c.Quantification.Isotopes,
		"quantification.min_prediction_siblings": c.Quantification.MinPredictionSiblings,
	}); err != nil {
		return err
	}
	if c.Quantification.MzTolerancePPM <= 0 {
		return errors.New("quantification.mz_tolerance_ppm must be positive")
	}
	if c.Quantification.IsobarTolerancePPM < 0 {
		return errors.New("quantification.isobar_tolerance_ppm must be >= 0")
	}
	if c.Quantification.RTPredictionTolerance <= 0 {
		return errors.New("quantification.rt_prediction_tolerance must be positive")
	}
	if c.Quantification.MinPredictionSiblings < 2 {
		return errors.New("quantification.min_prediction_siblings must be at least 2")
	}
	return nil
}

func (c *Config) validateReconciliation() error {
	if c.Reconciliation.BasePeakCutoffPermille < 0 || c.Reconciliation.BasePeakCutoffPermille > 1000 {
		return errors.New("reconciliation.base_peak_cutoff_permille must be between 0 and 1000")
	}
	if c.Reconciliation.SamePeakRTTolerance < 0 {
		return errors.New("reconciliation.same_peak_rt_tolerance must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
