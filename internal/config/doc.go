// Package config loads, normalizes, and validates snapsync configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SNAPSYNC_CANDIDATE. The Config type centralizes every knob the daemon and
// CLI need: data/inbox/log directories, the upload endpoint, retry policy,
// and connectivity probing.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
