package config

const (
	defaultWorkDir                = "~/.local/share/lipidquant/work"
	defaultResultsDir             = "~/lipidquant/results"
	defaultLogDir                 = "~/.local/share/lipidquant/logs"
	defaultRulesDir               = "~/.config/lipidquant/rules"
	defaultMSConvert              = "msconvert"
	defaultChromTranslator        = "lipidquant-chrom"
	defaultAnalyzer               = "lipidquant-analyzer"
	defaultIntermediateFormat     = "mzML"
	defaultConversionTimeout      = 1800
	defaultRetryAttempts          = 2
	defaultRetryBackoffMS         = 2000
	defaultParallelism            = 4
	defaultQuantPollIntervalMS    = 250
	defaultIsotopes               = 2
	defaultMzTolerancePPM         = 10
	defaultIsobarTolerancePPM     = 5
	defaultRTPredictionTolerance  = 0.25
	defaultMinPredictionSiblings  = 3
	defaultBasePeakCutoffPermille = 1
	defaultSamePeakRTTolerance    = 0.05
	defaultWorkflowPollIntervalMS = 1000
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:    defaultWorkDir,
			ResultsDir: defaultResultsDir,
			LogDir:     defaultLogDir,
			RulesDir:   defaultRulesDir,
		},
		Tools: Tools{
			MSConvert:       defaultMSConvert,
			ChromTranslator: defaultChromTranslator,
			Analyzer:        defaultAnalyzer,
		},
		Conversion: Conversion{
			IntermediateFormat: defaultIntermediateFormat,
			TimeoutSeconds:     defaultConversionTimeout,
			RetryAttempts:      defaultRetryAttempts,
			RetryBackoffMS:     defaultRetryBackoffMS,
		},
		Quantification: Quantification{
			Parallelism:           defaultParallelism,
			PollIntervalMS:        defaultQuantPollIntervalMS,
			Isotopes:              defaultIsotopes,
			MzTolerancePPM:        defaultMzTolerancePPM,
			IsobarTolerancePPM:    defaultIsobarTolerancePPM,
			RTPredictionTolerance: defaultRTPredictionTolerance,
			MinPredictionSiblings: defaultMinPredictionSiblings,
		},
		Reconciliation: Reconciliation{
			BasePeakCutoffPermille: defaultBasePeakCutoffPermille,
			SamePeakRTTolerance:    defaultSamePeakRTTolerance,
		},
		Workflow: Workflow{
			PollIntervalMS: defaultWorkflowPollIntervalMS,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
