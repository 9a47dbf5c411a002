package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"snapsync/internal/artifact"
	"snapsync/internal/config"
	"snapsync/internal/ledger"
	"snapsync/internal/logging"
	"snapsync/internal/netmon"
	"snapsync/internal/uploader"
)

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *ledger.Store
	blobs   *artifact.Store
	engine  *uploader.Engine
	monitor *netmon.Monitor
	inbox   *inboxWatcher
	api     *apiServer
	logPath string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Reachable    bool
	Draining     bool
	QueueLength  int
	Totals       ledger.Totals
	Endpoint     string
	QueueDBPath  string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *ledger.Store, blobs *artifact.Store, engine *uploader.Engine, monitor *netmon.Monitor, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || blobs == nil || engine == nil || monitor == nil || logger == nil {
		return nil, errors.New("daemon requires config, stores, engine, monitor, and logger")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "snapsyncd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		blobs:    blobs,
		engine:   engine,
		monitor:  monitor,
		logPath:  filepath.Join(cfg.Paths.LogDir, "snapsync.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	if cfg.Inbox.Enabled {
		d.inbox = newInboxWatcher(cfg, engine, logger)
	}
	server, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = server
	return d, nil
}

// Start launches the background services and acquires the daemon lock.
//
// The ledger is reconciled against the blob directory first so a crash
// between blob write and ledger insert (or the reverse) never leaves a
// queue entry with nothing to send.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another snapsync daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	dropped, err := d.store.Reconcile(d.ctx, d.blobs.Exists)
	if err != nil {
		d.releaseOnStartFailure()
		return fmt.Errorf("reconcile ledger: %w", err)
	}
	if dropped > 0 {
		d.logger.Warn("dropped ledger entries with missing blobs",
			logging.Int("dropped", dropped),
			logging.String(logging.FieldEventType, "ledger_reconciled"),
		)
	}

	d.monitor.Start(d.ctx)
	go d.drainOnEdges(d.ctx)

	if d.inbox != nil {
		if err := d.inbox.start(d.ctx); err != nil {
			d.monitor.Stop()
			d.releaseOnStartFailure()
			return fmt.Errorf("start inbox watcher: %w", err)
		}
	}
	if d.api != nil {
		if err := d.api.start(d.ctx); err != nil {
			if d.inbox != nil {
				d.inbox.stop()
			}
			d.monitor.Stop()
			d.releaseOnStartFailure()
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("snapsync daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("queued", d.queueLength(d.ctx)),
	)
	return nil
}

func (d *Daemon) releaseOnStartFailure() {
	_ = d.lock.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
	d.ctx = nil
	d.cancel = nil
}

// drainOnEdges runs drain cycles whenever connectivity returns. The monitor
// emits one edge per offline-to-online transition, including the first
// observation after startup, so a non-empty queue drains as soon as the
// network is there.
func (d *Daemon) drainOnEdges(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.monitor.Edges():
			d.engine.Drain(ctx)
		}
	}
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.api != nil {
		d.api.stop()
	}
	if d.inbox != nil {
		d.inbox.stop()
	}
	d.monitor.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("snapsync daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Enqueue accepts a payload through the daemon, durably queueing it and
// kicking off immediate delivery when the network is reachable.
func (d *Daemon) Enqueue(ctx context.Context, payload []byte, loc *uploader.Location) (string, error) {
	return d.engine.Enqueue(ctx, payload, loc)
}

// Drain starts a drain cycle unless one is already running.
func (d *Daemon) Drain(ctx context.Context) {
	d.engine.Drain(ctx)
}

// ListQueue returns pending items in delivery order.
func (d *Daemon) ListQueue(ctx context.Context) ([]ledger.Item, error) {
	return d.store.List(ctx)
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// APIAddress returns the bound control API address, or empty when the API is
// disabled. Useful when the configured bind was port 0.
func (d *Daemon) APIAddress() string {
	if d.api == nil {
		return ""
	}
	return d.api.address()
}

func (d *Daemon) queueLength(ctx context.Context) int {
	count, err := d.store.Len(ctx)
	if err != nil {
		return 0
	}
	return count
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	totals, err := d.store.Totals(ctx)
	if err != nil {
		d.logger.Warn("failed to read progress totals", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Reachable:    d.monitor.Reachable(),
		Draining:     d.engine.Draining(),
		QueueLength:  d.queueLength(ctx),
		Totals:       totals,
		Endpoint:     d.cfg.Upload.EndpointURL,
		QueueDBPath:  d.cfg.QueueDBPath(),
		LockFilePath: d.lockPath,
	}
}
