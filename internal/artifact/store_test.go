package artifact_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"snapsync/internal/artifact"
	"snapsync/internal/testsupport"
)

func TestPutGetRoundTrip(t *testing.T) {
	store := testsupport.MustOpenBlobs(t, testsupport.NewConfig(t))

	payload := []byte("jpeg-bytes")
	id, err := store.Put(payload)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !strings.HasSuffix(id, artifact.Extension) {
		t.Fatalf("expected id with %s extension, got %q", artifact.Extension, id)
	}
	if !store.Exists(id) {
		t.Fatalf("expected blob to exist for %s", id)
	}

	got, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: got %q", got)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store := testsupport.MustOpenBlobs(t, testsupport.NewConfig(t))

	_, err := store.Get("missing.jpg")
	if !errors.Is(err, artifact.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := testsupport.MustOpenBlobs(t, testsupport.NewConfig(t))

	id, err := store.Put([]byte("x"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Delete(id); err != nil {
		t.Fatalf("first Delete failed: %v", err)
	}
	if store.Exists(id) {
		t.Fatal("expected blob gone after delete")
	}
	if err := store.Delete(id); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
}

func TestPutWithIDRejectsPathSeparators(t *testing.T) {
	store := testsupport.MustOpenBlobs(t, testsupport.NewConfig(t))

	if err := store.PutWithID("../escape.jpg", []byte("x")); err == nil {
		t.Fatal("expected error for id with path separators")
	}
	if err := store.PutWithID("", []byte("x")); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestPutUniqueIDs(t *testing.T) {
	store := testsupport.MustOpenBlobs(t, testsupport.NewConfig(t))

	seen := make(map[string]struct{})
	for i := 0; i < 16; i++ {
		id, err := store.Put([]byte("p"))
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = struct{}{}
	}
}
