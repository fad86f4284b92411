package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"lipidquant/internal/config"
)

// Requirement defines an external dependency lipidquant relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the executables the configured pipeline drives. The
// vendor converter is optional because open formats skip that stage.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "msconvert",
			Command:     cfg.MSConvertBinary(),
			Description: "Converts vendor raw files to " + cfg.Conversion.IntermediateFormat,
			Optional:    true,
		},
		{
			Name:        "Chromatogram translator",
			Command:     cfg.ChromTranslatorBinary(),
			Description: "Builds chromatogram files from spectra",
		},
		{
			Name:        "Analyzer",
			Command:     cfg.AnalyzerBinary(),
			Description: "Searches chromatograms for lipid analytes",
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, Check(req))
	}
	return results
}

// Check evaluates a single requirement.
func Check(req Requirement) Status {
	cmd := strings.TrimSpace(req.Command)
	status := Status{
		Name:        req.Name,
		Command:     cmd,
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if cmd == "" {
		status.Detail = "command not configured"
		return status
	}
	resolved, err := exec.LookPath(cmd)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", cmd)
		return status
	}
	status.Command = resolved
	status.Available = true
	return status
}

// MissingRequired returns the statuses of required dependencies that are unavailable.
func MissingRequired(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}
