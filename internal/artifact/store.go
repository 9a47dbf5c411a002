package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"snapsync/internal/config"
)

// Extension is appended to every generated artifact identifier.
const Extension = ".jpg"

// ErrNotFound indicates the requested blob does not exist.
var ErrNotFound = errors.New("artifact not found")

// Store persists image payloads under a single blob directory.
type Store struct {
	dir string
}

// Open ensures the blob directory exists and returns a store for it.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("artifact store requires config")
	}
	dir := cfg.BlobDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory %q: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the blob directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Put writes payload under a freshly generated identifier and returns the id.
// The write is atomic: a temp file in the same directory is synced and then
// renamed into place. On failure nothing is left behind for the id.
func (s *Store) Put(payload []byte) (string, error) {
	id := uuid.NewString() + Extension
	if err := s.writeBlob(id, payload); err != nil {
		return "", err
	}
	return id, nil
}

// PutWithID writes payload under a caller-supplied identifier. Used when the
// id must match an externally assigned filename.
func (s *Store) PutWithID(id string, payload []byte) error {
	if err := validateID(id); err != nil {
		return err
	}
	return s.writeBlob(id, payload)
}

func (s *Store) writeBlob(id string, payload []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".put-*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(payload)
	if writeErr == nil {
		writeErr = tmp.Sync()
	}
	closeErr := tmp.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write blob %s: %w", id, writeErr)
	}

	if err := os.Rename(tmpPath, s.Path(id)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("finalize blob %s: %w", id, err)
	}
	return nil
}

// Get returns the payload stored under id, or ErrNotFound.
func (s *Store) Get(id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("read blob %s: %w", id, err)
	}
	return data, nil
}

// Delete removes the blob for id. Deleting an absent blob is not an error.
func (s *Store) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := os.Remove(s.Path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", id, err)
	}
	return nil
}

// Exists reports whether a blob is present for id.
func (s *Store) Exists(id string) bool {
	if validateID(id) != nil {
		return false
	}
	info, err := os.Stat(s.Path(id))
	return err == nil && !info.IsDir()
}

// Path returns the on-disk location for id.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id)
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("artifact id is empty")
	}
	if filepath.Base(id) != id || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("artifact id %q contains path separators", id)
	}
	return nil
}
