package netmon_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"snapsync/internal/logging"
	"snapsync/internal/netmon"
)

func waitForEdge(t *testing.T, edges <-chan struct{}, timeout time.Duration) bool {
	t.Helper()
	select {
	case <-edges:
		return true
	case <-time.After(timeout):
		return false
	}
}

func TestPositiveEdgeFiresOncePerTransition(t *testing.T) {
	var up atomic.Bool
	monitor := netmon.New(nil, logging.NewNop(),
		netmon.WithProbe(func(context.Context) bool { return up.Load() }),
		netmon.WithInterval(5*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	monitor.Start(ctx)
	defer monitor.Stop()

	if waitForEdge(t, monitor.Edges(), 50*time.Millisecond) {
		t.Fatal("unexpected edge while unreachable")
	}
	if monitor.Reachable() {
		t.Fatal("expected unreachable state")
	}

	up.Store(true)
	if !waitForEdge(t, monitor.Edges(), time.Second) {
		t.Fatal("expected a positive edge after becoming reachable")
	}
	if !monitor.Reachable() {
		t.Fatal("expected reachable state")
	}

	// Staying reachable must not emit further signals.
	if waitForEdge(t, monitor.Edges(), 100*time.Millisecond) {
		t.Fatal("edge fired while remaining reachable")
	}
}

func TestEdgeFiresAgainAfterOutage(t *testing.T) {
	var up atomic.Bool
	up.Store(true)
	monitor := netmon.New(nil, logging.NewNop(),
		netmon.WithProbe(func(context.Context) bool { return up.Load() }),
		netmon.WithInterval(5*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	monitor.Start(ctx)
	defer monitor.Stop()

	if !waitForEdge(t, monitor.Edges(), time.Second) {
		t.Fatal("expected startup edge when already reachable")
	}

	up.Store(false)
	time.Sleep(50 * time.Millisecond)
	up.Store(true)

	if !waitForEdge(t, monitor.Edges(), time.Second) {
		t.Fatal("expected a second edge after the outage ended")
	}
}

func TestNewWithoutConfigDefaultsUnreachable(t *testing.T) {
	monitor := netmon.New(nil, logging.NewNop(),
		netmon.WithInterval(5*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	monitor.Start(ctx)
	defer monitor.Stop()

	if waitForEdge(t, monitor.Edges(), 50*time.Millisecond) {
		t.Fatal("unexpected edge without a probe source")
	}
	if monitor.Reachable() {
		t.Fatal("expected unreachable state without a probe source")
	}
}

func TestStopTerminatesLoop(t *testing.T) {
	monitor := netmon.New(nil, logging.NewNop(),
		netmon.WithProbe(func(context.Context) bool { return false }),
		netmon.WithInterval(5*time.Millisecond),
	)

	monitor.Start(context.Background())
	if !monitor.Running() {
		t.Fatal("expected monitor to be running")
	}
	monitor.Stop()
	if monitor.Running() {
		t.Fatal("expected monitor stopped")
	}
	// Stop twice must be safe.
	monitor.Stop()
}
