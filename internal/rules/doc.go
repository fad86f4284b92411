// Package rules answers rule-metadata lookups for (class, modification) pairs.
//
// Rules live in a directory with one YAML file per lipid class, named after
// the sanitized class label (for example pc.yaml or lpc_o.yaml). A file sets
// the class-wide identification order, chain count, version, and tie-break
// preference, and may override the order per modification. Classes without a
// file use built-in defaults. Files are parsed lazily and cached; a malformed
// file yields an error only for lookups of that class.
package rules
