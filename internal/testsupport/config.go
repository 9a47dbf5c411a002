// Package testsupport provides shared fixtures for snapsync tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"snapsync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.InboxDir = filepath.Join(base, "inbox")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Upload.CandidateName = "test-candidate"
	cfg.Upload.EndpointURL = "http://127.0.0.1:0/upload"
	cfg.Upload.RetryDelaySeconds = 1
	cfg.Connectivity.ProbeAddress = "127.0.0.1:1"
	cfg.Inbox.SettleSeconds = 0

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithEndpoint points the upload endpoint at the given URL.
func WithEndpoint(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Upload.EndpointURL = url
	}
}

// WithMaxRetries overrides the retry bound.
func WithMaxRetries(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Upload.MaxRetries = n
	}
}
