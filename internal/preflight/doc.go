// Package preflight provides readiness checks for the filesystem paths and
// external tools lipidquant depends on.
//
// These checks run in two contexts:
//   - The batch coordinator calls RunAll before the first job starts. If any
//     directory check fails the batch is refused, since every job would fail
//     the same way.
//   - The CLI "lipidquant deps" command uses CheckSystemDeps to display tool
//     availability.
package preflight
