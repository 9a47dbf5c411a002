package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"snapsync/internal/config"
	"snapsync/internal/logging"
	"snapsync/internal/uploader"
)

// inboxWatcher feeds dropped-in photo files to the delivery engine. A file is
// picked up once it has settled (no writes for the configured delay) so a
// slow copy never gets enqueued half-written.
type inboxWatcher struct {
	cfg    *config.Config
	engine *uploader.Engine
	logger *slog.Logger

	watcher *fsnotify.Watcher
	settle  time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// sidecarLocation is the optional <name>.json companion carrying a
// capture-time coordinate fix.
type sidecarLocation struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

func newInboxWatcher(cfg *config.Config, engine *uploader.Engine, logger *slog.Logger) *inboxWatcher {
	settle := time.Duration(cfg.Inbox.SettleSeconds) * time.Second
	if settle <= 0 {
		settle = 2 * time.Second
	}
	return &inboxWatcher{
		cfg:     cfg,
		engine:  engine,
		logger:  logger.With(logging.String(logging.FieldComponent, "inbox")),
		settle:  settle,
		pending: make(map[string]*time.Timer),
	}
}

func (w *inboxWatcher) start(ctx context.Context) error {
	dir := w.cfg.Paths.InboxDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}
	w.watcher = watcher
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.loop()

	// Files already sitting in the inbox predate the watch.
	if err := w.scanExisting(dir); err != nil {
		w.logger.Warn("inbox scan failed", logging.Error(err))
	}

	w.logger.Info("inbox watcher started", logging.String("directory", dir))
	return nil
}

func (w *inboxWatcher) stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
	w.mu.Lock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *inboxWatcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isPhotoFile(event.Name) {
				continue
			}
			w.schedule(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("inbox watch error", logging.Error(err))
		}
	}
}

func (w *inboxWatcher) scanExisting(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if isPhotoFile(path) {
			w.schedule(path)
		}
	}
	return nil
}

// schedule arms (or re-arms) the settle timer for path. Each write event
// pushes ingestion back by the settle delay.
func (w *inboxWatcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		if w.ctx.Err() != nil {
			return
		}
		w.ingest(path)
	})
}

func (w *inboxWatcher) ingest(path string) {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		w.logger.Warn("failed to read inbox file",
			logging.String("path", path),
			logging.Error(err),
		)
		return
	}
	if len(payload) == 0 {
		w.logger.Warn("skipping empty inbox file", logging.String("path", path))
		return
	}

	loc := w.readSidecar(path)
	id, err := w.engine.Enqueue(w.ctx, payload, loc)
	if err != nil {
		// Leave the file in place; the next daemon start rescans the inbox.
		w.logger.Error("failed to enqueue inbox file",
			logging.String("path", path),
			logging.Error(err),
		)
		return
	}

	w.logger.Info("inbox file queued",
		logging.String("path", path),
		logging.String(logging.FieldArtifactID, id),
		logging.String(logging.FieldEventType, "inbox_ingested"),
	)

	if w.cfg.Inbox.RemoveSource {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("failed to remove ingested file",
				logging.String("path", path),
				logging.Error(err),
			)
		}
		_ = os.Remove(sidecarPath(path))
	}
}

func (w *inboxWatcher) readSidecar(path string) *uploader.Location {
	data, err := os.ReadFile(sidecarPath(path))
	if err != nil {
		return nil
	}
	var sc sidecarLocation
	if err := json.Unmarshal(data, &sc); err != nil {
		w.logger.Warn("ignoring malformed sidecar",
			logging.String("path", sidecarPath(path)),
			logging.Error(err),
		)
		return nil
	}
	if sc.Lat == nil || sc.Lon == nil {
		return nil
	}
	return &uploader.Location{Lat: *sc.Lat, Lon: *sc.Lon}
}

func isPhotoFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return true
	default:
		return false
	}
}

func sidecarPath(photoPath string) string {
	ext := filepath.Ext(photoPath)
	return strings.TrimSuffix(photoPath, ext) + ".json"
}
