// Package textutil normalizes the free-form labels that appear in analyte
// definition and rule files.
//
// Lipid class and modification names arrive from hand-edited YAML, so the
// same class may be spelled "PC", "pc " or with composed and decomposed
// Unicode forms. Labels are canonicalized to NFC with collapsed whitespace
// for display, and case-folded for lookups.
package textutil
