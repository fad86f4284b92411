// Package workflow drives a batch of input files through conversion and
// quantification.
//
// The Coordinator brings one job at a time through the states
// needs_vendor_conversion, needs_chrom_conversion and needs_quantification
// to done or error. Every stage runs as a background task; the coordinator
// only polls it on a fixed interval, so status and progress stay queryable
// while conversions or searches are in flight.
//
// A vendor conversion that yields several outputs (for example one file per
// polarity) finishes its job and appends one derived job per output to a side
// buffer. When the main sequence is exhausted the batch table is replaced by
// that buffer and a second pass starts.
//
// Failures are scoped to the job that hit them. Only an unusable analyte
// definition or an unusable work directory stops the batch before it starts.
package workflow
