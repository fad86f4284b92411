// Package convert drives the external format-conversion tools.
//
// Stage one turns a vendor acquisition (Thermo, Waters, Sciex, Agilent or
// Bruker) into the configured intermediate spectra format with msconvert.
// Stage two builds the binary chromatogram the analyzer searches. Each stage
// runs as a stage.Task so the batch coordinator can poll it without blocking.
//
// A single acquisition may yield several intermediate files, for example one
// per polarity. The produced files are discovered by listing the job's output
// directory for "<stem>.<ext>" and "<stem>_*.<ext>", never by trusting the
// tool's own report.
package convert
