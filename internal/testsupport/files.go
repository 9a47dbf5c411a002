package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// jpegStub is a minimal JPEG header followed by filler, enough to look like an
// image file to the ingest path without shipping a real photo fixture.
var jpegStub = append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("snapsync-test-image")...)

// JPEGPayload returns a small stand-in image payload.
func JPEGPayload() []byte {
	cp := make([]byte, len(jpegStub))
	copy(cp, jpegStub)
	return cp
}

// WriteInboxFile drops a file into the configured inbox directory.
func WriteInboxFile(t testing.TB, dir, name string, payload []byte) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir inbox: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write inbox file: %v", err)
	}
	return path
}
