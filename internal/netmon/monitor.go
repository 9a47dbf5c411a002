package netmon

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"snapsync/internal/config"
	"snapsync/internal/logging"
)

// ProbeFunc reports whether the network is currently reachable.
type ProbeFunc func(ctx context.Context) bool

// Monitor polls a reachability probe and emits positive-edge signals.
type Monitor struct {
	logger   *slog.Logger
	probe    ProbeFunc
	interval time.Duration

	mu        sync.Mutex
	reachable bool
	edges     chan struct{}
	quit      chan struct{}
	running   bool
}

// Option configures optional Monitor behavior.
type Option func(*Monitor)

// WithProbe replaces the default TCP dial probe. Used in tests.
func WithProbe(probe ProbeFunc) Option {
	return func(m *Monitor) {
		m.probe = probe
	}
}

// WithInterval overrides the probe cadence.
func WithInterval(interval time.Duration) Option {
	return func(m *Monitor) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// New constructs a monitor probing the configured address.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		logger:   logging.NewComponentLogger(logger, "netmon"),
		interval: 10 * time.Second,
		edges:    make(chan struct{}, 1),
		quit:     nil,
	}
	if cfg != nil {
		m.interval = time.Duration(cfg.Connectivity.ProbeInterval) * time.Second
		timeout := time.Duration(cfg.Connectivity.ProbeTimeout) * time.Second
		address := cfg.Connectivity.ProbeAddress
		m.probe = dialProbe(address, timeout)
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.probe == nil {
		// No probe source configured; report unreachable until one is set.
		m.probe = func(context.Context) bool { return false }
	}
	return m
}

func dialProbe(address string, timeout time.Duration) ProbeFunc {
	dialer := &net.Dialer{Timeout: timeout}
	return func(ctx context.Context) bool {
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}
}

// Start launches the probe loop. The first probe runs immediately so
// Reachable reflects reality before the first interval elapses.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.quit = make(chan struct{})
	m.running = true
	quit := m.quit
	m.mu.Unlock()

	go m.loop(ctx, quit)

	m.logger.Info("connectivity monitor started",
		logging.String(logging.FieldEventType, "netmon_started"),
		logging.Duration("interval", m.interval),
	)
}

// Stop shuts down the probe loop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.quit)
	m.quit = nil
	m.running = false
	m.logger.Info("connectivity monitor stopped",
		logging.String(logging.FieldEventType, "netmon_stopped"),
	)
}

// Running reports whether the monitor loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Reachable reports the most recently observed reachability state.
func (m *Monitor) Reachable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reachable
}

// Edges returns the channel that receives one signal per
// unreachable-to-reachable transition. Signals are coalesced.
func (m *Monitor) Edges() <-chan struct{} {
	return m.edges
}

func (m *Monitor) loop(ctx context.Context, quit <-chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.observe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case <-ticker.C:
			m.observe(ctx)
		}
	}
}

func (m *Monitor) observe(ctx context.Context) {
	up := m.probe(ctx)

	m.mu.Lock()
	wasUp := m.reachable
	m.reachable = up
	m.mu.Unlock()

	if up && !wasUp {
		m.logger.Info("network became reachable",
			logging.String(logging.FieldEventType, "netmon_positive_edge"),
		)
		select {
		case m.edges <- struct{}{}:
		default:
		}
	}
	if !up && wasUp {
		m.logger.Warn("network became unreachable",
			logging.String(logging.FieldEventType, "netmon_lost"),
		)
	}
}
