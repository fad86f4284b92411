// Package fileutil holds filesystem helpers shared by conversion and result
// writing: stem matching for fan-out discovery and atomic file replacement.
package fileutil
