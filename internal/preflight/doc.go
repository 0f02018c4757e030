// Package preflight provides readiness checks for the paths and external
// binaries a sync run depends on.
//
// These checks run in two contexts:
//   - The sync command calls RunAll before touching the catalog. If any
//     required check fails, the run stops before anything is written.
//   - The CLI "musicsync check" command prints every result, including the
//     binary inventory from CheckSystemDeps.
package preflight
