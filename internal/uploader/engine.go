package uploader

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"snapsync/internal/artifact"
	"snapsync/internal/config"
	"snapsync/internal/ledger"
	"snapsync/internal/logging"
)

// Location is an optional capture-time coordinate fix.
type Location struct {
	Lat float64
	Lon float64
}

// deliveryResult is the terminal state of one per-item delivery protocol run.
type deliveryResult int

const (
	resultDelivered deliveryResult = iota
	resultSkipped                  // item already in flight on another path
	resultDropped                  // blob missing; stale ledger entry removed
	resultExhausted                // retries spent; item stays queued
	resultCanceled
)

// Engine coordinates durable enqueue and queue draining.
type Engine struct {
	cfg       *config.Config
	store     *ledger.Store
	blobs     *artifact.Store
	transport Transport
	reachable func() bool
	logger    *slog.Logger

	maxRetries int
	retryDelay time.Duration

	progress Progress
	draining atomic.Bool

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// Option configures optional Engine behavior.
type Option func(*Engine)

// WithTransport replaces the HTTP transport. Used in tests.
func WithTransport(t Transport) Option {
	return func(e *Engine) {
		e.transport = t
	}
}

// WithReachability supplies the connectivity check used on enqueue.
func WithReachability(fn func() bool) Option {
	return func(e *Engine) {
		e.reachable = fn
	}
}

// WithRetryDelay overrides the backoff between failed attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.retryDelay = d
		}
	}
}

// NewEngine constructs the delivery engine.
func NewEngine(cfg *config.Config, store *ledger.Store, blobs *artifact.Store, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		store:      store,
		blobs:      blobs,
		logger:     logging.NewComponentLogger(logger, "uploader"),
		maxRetries: cfg.Upload.MaxRetries,
		retryDelay: time.Duration(cfg.Upload.RetryDelaySeconds) * time.Second,
		reachable:  func() bool { return false },
		inFlight:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.transport == nil {
		e.transport = NewClient(cfg)
	}
	return e
}

// Progress returns the engine's counter subscription surface.
func (e *Engine) Progress() *Progress {
	return &e.progress
}

// Draining reports whether a drain loop is currently active.
func (e *Engine) Draining() bool {
	return e.draining.Load()
}

// Enqueue persists the payload, records the queue entry, and bumps the
// produced counter. When the network is currently reachable, a drain is
// triggered in the background; the single-drain guard drops the trigger if a
// drain is already active, and that drain's ledger re-check picks up the new
// item in queue order.
//
// Failure is atomic: if the blob write fails nothing is enqueued, and if the
// ledger insert fails the blob is removed again.
func (e *Engine) Enqueue(ctx context.Context, payload []byte, loc *Location) (string, error) {
	if len(payload) == 0 {
		return "", errors.New("payload is empty")
	}

	id, err := e.blobs.Put(payload)
	if err != nil {
		return "", err
	}

	item := ledger.Item{ID: id}
	if loc != nil {
		lat, lon := loc.Lat, loc.Lon
		item.LocationLat = &lat
		item.LocationLon = &lon
	}

	if _, err := e.store.Insert(ctx, item); err != nil {
		// Leave no ledger-less blob behind; reconcile would never see it.
		_ = e.blobs.Delete(id)
		return "", err
	}

	totals, totalsErr := e.store.Totals(ctx)
	if totalsErr == nil {
		e.progress.publish(totals)
	}

	e.logger.Info("artifact queued",
		logging.String(logging.FieldArtifactID, id),
		logging.Bool("has_location", item.HasLocation()),
		logging.String(logging.FieldEventType, "artifact_queued"),
	)

	if e.reachable() {
		go e.Drain(context.WithoutCancel(ctx))
	}
	return id, nil
}

// Drain processes the queue head-first until it empties. At most one drain
// loop runs process-wide; a trigger arriving while one is active is dropped,
// relying on the active loop's ledger re-check to pick up new items.
func (e *Engine) Drain(ctx context.Context) {
	if !e.draining.CompareAndSwap(false, true) {
		return
	}
	defer e.draining.Store(false)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, err := e.store.Next(ctx)
		if err != nil {
			e.logger.Error("failed to fetch queue head",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_fetch_failed"),
			)
			return
		}
		if item == nil {
			return
		}

		switch e.deliverOne(ctx, *item) {
		case resultDelivered, resultDropped:
			continue
		case resultSkipped, resultExhausted, resultCanceled:
			// The head is out of attempts for this cycle or still claimed
			// in flight. A fresh trigger starts the next drain.
			return
		}
	}
}

// deliverOne runs the per-item delivery protocol: in-flight guard, payload
// load, bounded retry loop, and the success cleanup sequence.
func (e *Engine) deliverOne(ctx context.Context, item ledger.Item) deliveryResult {
	if !e.markInFlight(item.ID) {
		return resultSkipped
	}
	defer e.clearInFlight(item.ID)

	payload, err := e.blobs.Get(item.ID)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			// Nothing to send; drop the stale entry so the queue can advance.
			if removeErr := e.store.Remove(ctx, item.ID); removeErr != nil {
				e.logger.Error("failed to drop stale queue entry",
					logging.String(logging.FieldArtifactID, item.ID),
					logging.Error(removeErr),
					logging.String(logging.FieldEventType, "stale_entry_remove_failed"),
				)
				return resultExhausted
			}
			e.logger.Warn("blob missing for queued item, entry dropped",
				logging.String(logging.FieldArtifactID, item.ID),
				logging.String(logging.FieldEventType, "blob_missing"),
			)
			return resultDropped
		}
		e.logger.Error("failed to load payload",
			logging.String(logging.FieldArtifactID, item.ID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "payload_load_failed"),
		)
		return resultExhausted
	}

	for attempt := 0; ; attempt++ {
		err := e.transport.Upload(ctx, item.ID, payload)
		if err == nil {
			return e.finishDelivery(ctx, item.ID)
		}

		e.logger.Warn("delivery attempt failed",
			logging.String(logging.FieldArtifactID, item.ID),
			logging.Int(logging.FieldAttempt, attempt),
			logging.Error(err),
			logging.String(logging.FieldEventType, "delivery_attempt_failed"),
		)

		if attempt >= e.maxRetries {
			e.logger.Warn("retries exhausted, item stays queued for a future drain",
				logging.String(logging.FieldArtifactID, item.ID),
				logging.Int("attempts", attempt+1),
				logging.String(logging.FieldEventType, "retries_exhausted"),
			)
			return resultExhausted
		}

		select {
		case <-ctx.Done():
			return resultCanceled
		case <-time.After(e.retryDelay):
		}
	}
}

// finishDelivery runs the post-acknowledgment cleanup. Ledger removal and the
// delivered counter commit together before the blob is deleted; a crash in
// between leaves an orphan blob, which is recoverable garbage, never a
// resurrected queue entry.
func (e *Engine) finishDelivery(ctx context.Context, id string) deliveryResult {
	removed, err := e.store.MarkDelivered(ctx, id)
	if err != nil {
		e.logger.Error("failed to record delivery",
			logging.String(logging.FieldArtifactID, id),
			logging.Error(err),
			logging.String(logging.FieldEventType, "delivery_record_failed"),
		)
		return resultExhausted
	}

	if err := e.blobs.Delete(id); err != nil {
		e.logger.Warn("failed to delete delivered blob",
			logging.String(logging.FieldArtifactID, id),
			logging.Error(err),
			logging.String(logging.FieldEventType, "blob_delete_failed"),
		)
	}

	if removed {
		if totals, err := e.store.Totals(ctx); err == nil {
			e.progress.publish(totals)
		}
	}

	e.logger.Info("artifact delivered",
		logging.String(logging.FieldArtifactID, id),
		logging.String(logging.FieldEventType, "artifact_delivered"),
	)
	return resultDelivered
}

func (e *Engine) markInFlight(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[id]; busy {
		return false
	}
	e.inFlight[id] = struct{}{}
	return true
}

func (e *Engine) clearInFlight(id string) {
	e.mu.Lock()
	delete(e.inFlight, id)
	e.mu.Unlock()
}
