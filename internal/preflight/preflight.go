package preflight

import (
	"context"

	"snapsync/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Advisory bool
	Detail   string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Data directory (always checked)
	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Blob directory", cfg.BlobDir()))
	results = append(results, CheckFreeSpace("Disk space", cfg.Paths.DataDir))

	if cfg.Inbox.Enabled {
		results = append(results, CheckDirectoryAccess("Inbox directory", cfg.Paths.InboxDir))
	}

	results = append(results, CheckEndpointURL("Upload endpoint", cfg.Upload.EndpointURL))
	results = append(results, CheckConnectivity(ctx, cfg))

	return results
}

// Fatal reports whether any non-advisory check failed.
func Fatal(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Advisory {
			return true
		}
	}
	return false
}
