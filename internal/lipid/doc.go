// Package lipid defines the value types shared by every quantification stage:
// work item keys and statuses, candidate hits with their per-isotope probes,
// fragment evidence, split markers, and double-bond position annotations.
//
// Hits come in two variants. A plain hit carries only MS1 probes. An
// evidence-backed hit additionally carries fragment evidence; the Evidence
// field is nil for plain hits and the evidence-dependent accessors return
// zero values for them.
package lipid
