package testsupport

import (
	"testing"

	"snapsync/internal/artifact"
	"snapsync/internal/config"
	"snapsync/internal/ledger"
)

// MustOpenLedger opens a ledger.Store for tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenBlobs opens an artifact.Store for tests.
func MustOpenBlobs(t testing.TB, cfg *config.Config) *artifact.Store {
	t.Helper()

	store, err := artifact.Open(cfg)
	if err != nil {
		t.Fatalf("artifact.Open: %v", err)
	}
	return store
}
