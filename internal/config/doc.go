// Package config loads, normalizes, and validates lipidquant configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// LIPIDQUANT_MSCONVERT. The Config type centralizes every knob the batch
// coordinator, the quantification scheduler, and the CLI need, allowing work,
// results, and rule directories plus external tool locations to be discovered
// in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
