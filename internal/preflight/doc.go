// Package preflight provides readiness checks for the filesystem paths and
// the upload endpoint that snapsync depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup. Failed directory or disk checks
//     abort the start; a failed connectivity check does not, since queueing
//     while offline is the normal operating mode.
//   - The CLI "snapsync status" command uses individual check functions
//     (CheckConnectivity, CheckDirectoryAccess) to display health.
package preflight
