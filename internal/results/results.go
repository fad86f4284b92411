package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lipidquant/internal/config"
	"lipidquant/internal/fileutil"
	"lipidquant/internal/logging"
	"lipidquant/internal/quant"
	"lipidquant/internal/reconcile"
	"lipidquant/internal/services"
)

const (
	artifactVersion = 1
	// Ext is the suffix of every result artifact.
	Ext = ".lipids.json"
)

// Settings records the search and reconciliation parameters of a run.
type Settings struct {
	Parallelism           int     `json:"parallelism"`
	Isotopes              int     `json:"isotopes"`
	MzTolerancePPM        float64 `json:"mz_tolerance_ppm"`
	IsobarTolerancePPM    float64 `json:"isobar_tolerance_ppm"`
	RTPredictionTolerance float64 `json:"rt_prediction_tolerance"`
	CutoffPermille        float64 `json:"base_peak_cutoff_permille"`
	SamePeakRTTolerance   float64 `json:"same_peak_rt_tolerance"`
}

// SettingsFromConfig captures the settings that influence results.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Parallelism:           cfg.Quantification.Parallelism,
		Isotopes:              cfg.Quantification.Isotopes,
		MzTolerancePPM:        cfg.Quantification.MzTolerancePPM,
		IsobarTolerancePPM:    cfg.Quantification.IsobarTolerancePPM,
		RTPredictionTolerance: cfg.Quantification.RTPredictionTolerance,
		CutoffPermille:        cfg.Reconciliation.BasePeakCutoffPermille,
		SamePeakRTTolerance:   cfg.Reconciliation.SamePeakRTTolerance,
	}
}

// Statistics summarizes how the hits were obtained.
type Statistics struct {
	Items    int `json:"items"`
	Passes   int `json:"passes"`
	Deferred int `json:"deferred"`
	Reopened int `json:"reopened"`
	FellBack int `json:"fell_back"`
	Rejected int `json:"rejected"`
	Hits     int `json:"hits"`
	Skipped  int `json:"skipped_classes"`
}

// Artifact is the persisted result of one input file.
type Artifact struct {
	Version        int                   `json:"version"`
	RunID          string                `json:"run_id"`
	GeneratedAt    time.Time             `json:"generated_at"`
	Source         string                `json:"source"`
	Chrom          string                `json:"chrom"`
	Definition     string                `json:"definition"`
	DefinitionName string                `json:"definition_name,omitempty"`
	Settings       Settings              `json:"settings"`
	RuleVersions   map[string]string     `json:"rule_versions"`
	Statistics     Statistics            `json:"statistics"`
	BasePeak       float64               `json:"base_peak"`
	Classes        []reconcile.ClassHits `json:"classes"`
	SkippedClasses []reconcile.Skipped   `json:"skipped_classes,omitempty"`
}

// Input is everything the assembler needs for one file.
type Input struct {
	RunID          string
	Source         string
	Chrom          string
	Definition     string
	DefinitionName string
	Settings       Settings
	RuleVersions   map[string]string
	Items          int
	Rejected       int
	Stats          quant.Stats
	State          reconcile.State
	Skipped        []reconcile.Skipped

	// Name is the artifact base name. Empty means the stem of Source.
	Name string
}

// Assembler writes artifacts into a results directory.
type Assembler struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// New constructs an assembler for dir.
func New(dir string, logger *slog.Logger) *Assembler {
	return &Assembler{
		dir:    strings.TrimSpace(dir),
		logger: logging.NewComponentLogger(logger, "results"),
		now:    time.Now,
	}
}

// Path returns the artifact location for an artifact base name.
func (a *Assembler) Path(name string) string {
	return filepath.Join(a.dir, name+Ext)
}

// Build converts the input into an artifact without touching disk.
func (a *Assembler) Build(in Input) Artifact {
	versions := make(map[string]string, len(in.RuleVersions))
	for class, version := range in.RuleVersions {
		versions[class] = version
	}
	classes := in.State.Classes()
	if classes == nil {
		classes = []reconcile.ClassHits{}
	}
	return Artifact{
		Version:        artifactVersion,
		RunID:          in.RunID,
		GeneratedAt:    a.now().UTC(),
		Source:         in.Source,
		Chrom:          in.Chrom,
		Definition:     in.Definition,
		DefinitionName: in.DefinitionName,
		Settings:       in.Settings,
		RuleVersions:   versions,
		Statistics: Statistics{
			Items:    in.Items,
			Passes:   in.Stats.Passes,
			Deferred: in.Stats.Deferred,
			Reopened: in.Stats.Reopened,
			FellBack: in.Stats.FellBack,
			Rejected: in.Rejected,
			Hits:     in.State.Count(),
			Skipped:  len(in.Skipped),
		},
		BasePeak:       in.State.BasePeak,
		Classes:        classes,
		SkippedClasses: in.Skipped,
	}
}

// Write builds and persists the artifact, replacing any previous artifact of
// the same name. It returns the artifact path.
func (a *Assembler) Write(ctx context.Context, in Input) (string, error) {
	if a.dir == "" {
		return "", services.Wrap(services.ErrConfiguration, "results", "write", "results directory is not configured", nil)
	}
	if strings.TrimSpace(in.Source) == "" {
		return "", services.Wrap(services.ErrValidation, "results", "write", "source path is empty", nil)
	}
	artifact := a.Build(in)
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode result artifact: %w", err)
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure results dir: %w", err)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = fileutil.Stem(in.Source)
	}
	path := a.Path(name)
	digest, err := fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644)
	if err != nil {
		return "", fmt.Errorf("write result artifact: %w", err)
	}
	logging.WithContext(ctx, a.logger).Info("result artifact written",
		logging.String(logging.FieldEventType, "artifact_written"),
		logging.String("path", path),
		logging.String("sha256", digest),
		logging.Int("classes", len(artifact.Classes)),
		logging.Int("hits", artifact.Statistics.Hits),
	)
	return path, nil
}

// Read loads an artifact written by Write.
func Read(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "results", "read", path, err)
		}
		return nil, fmt.Errorf("read result artifact: %w", err)
	}
	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("parse result artifact %s: %w", path, err)
	}
	if artifact.Version != artifactVersion {
		return nil, fmt.Errorf("result artifact %s: unsupported version %d", path, artifact.Version)
	}
	return &artifact, nil
}
