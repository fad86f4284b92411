// Package procgroup starts external tools in their own process group so that
// cancelling a conversion or search terminates every child the tool spawned,
// not only the direct process.
package procgroup
