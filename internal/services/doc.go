// Package services defines shared utilities consumed by the conversion stages,
// the quantification scheduler, and the batch coordinator.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and run identifiers for
//     logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into the error taxonomy the coordinator acts on (per job, per file, per
//     class, or fatal configuration errors).
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
