// Package quantify runs one complete quantification of a chromatogram: it
// expands the analyte definition into work items, drives the scheduler over
// the analyzer slot pool, reconciles the raw hits, and writes the result
// artifact. Runs execute as pollable background tasks so the batch
// coordinator can report sub-progress without blocking on them.
package quantify
