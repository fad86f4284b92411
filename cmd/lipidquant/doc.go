// Command lipidquant converts LC-MS acquisitions and quantifies the lipid
// analytes of an analyte definition in each of them.
//
// The run command drives a batch in the foreground and writes one
// <stem>.lipids.json artifact per input into paths.results_dir; inputs
// sharing a stem get a numeric suffix. The jobs
// command inspects the batch table of the last run, deps reports which
// external tools are reachable, and config manages the TOML configuration.
package main
