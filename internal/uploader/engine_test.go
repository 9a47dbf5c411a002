package uploader_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"snapsync/internal/artifact"
	"snapsync/internal/config"
	"snapsync/internal/ledger"
	"snapsync/internal/logging"
	"snapsync/internal/testsupport"
	"snapsync/internal/uploader"
)

type fakeTransport struct {
	mu         sync.Mutex
	calls      map[string]int
	order      []string
	concurrent int
	maxSeen    int
	fail       func(id string, attempt int) error
	started    chan string
	release    chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{calls: make(map[string]int)}
}

func (f *fakeTransport) Upload(ctx context.Context, id string, payload []byte) error {
	f.mu.Lock()
	attempt := f.calls[id]
	f.calls[id]++
	f.order = append(f.order, id)
	f.concurrent++
	if f.concurrent > f.maxSeen {
		f.maxSeen = f.concurrent
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.concurrent--
		f.mu.Unlock()
	}()

	if f.started != nil {
		f.started <- id
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.fail != nil {
		return f.fail(id, attempt)
	}
	return nil
}

func (f *fakeTransport) attempts(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeTransport) totalAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

type engineFixture struct {
	cfg       *config.Config
	store     *ledger.Store
	blobs     *artifact.Store
	transport *fakeTransport
	engine    *uploader.Engine
}

func newEngineFixture(t *testing.T, reachable bool, opts ...testsupport.ConfigOption) *engineFixture {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenLedger(t, cfg)
	blobs := testsupport.MustOpenBlobs(t, cfg)
	transport := newFakeTransport()
	engine := uploader.NewEngine(cfg, store, blobs, logging.NewNop(),
		uploader.WithTransport(transport),
		uploader.WithReachability(func() bool { return reachable }),
		uploader.WithRetryDelay(time.Millisecond),
	)
	return &engineFixture{cfg: cfg, store: store, blobs: blobs, transport: transport, engine: engine}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func TestEnqueueWhileReachableDeliversAll(t *testing.T) {
	fx := newEngineFixture(t, true)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := fx.engine.Enqueue(ctx, testsupport.JPEGPayload(), nil); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	if !waitUntil(t, 2*time.Second, func() bool {
		count, err := fx.store.Len(ctx)
		return err == nil && count == 0
	}) {
		t.Fatal("queue did not empty")
	}

	totals, err := fx.store.Totals(ctx)
	if err != nil {
		t.Fatalf("Totals failed: %v", err)
	}
	if totals.Produced != 3 || totals.Delivered != 3 {
		t.Fatalf("expected produced=3 delivered=3, got %+v", totals)
	}
	if fx.transport.totalAttempts() != 3 {
		t.Fatalf("expected exactly 3 transmissions, got %d", fx.transport.totalAttempts())
	}
}

func TestEnqueueWhileUnreachableWaitsForDrain(t *testing.T) {
	fx := newEngineFixture(t, false)
	ctx := context.Background()

	id, err := fx.engine.Enqueue(ctx, testsupport.JPEGPayload(), &uploader.Location{Lat: 44.81, Lon: 20.46})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if fx.transport.attempts(id) != 0 {
		t.Fatal("expected no delivery attempt while unreachable")
	}
	count, err := fx.store.Len(ctx)
	if err != nil || count != 1 {
		t.Fatalf("expected 1 queued item, got %d (err=%v)", count, err)
	}

	// Reachability edge arrives: a manual drain stands in for the trigger.
	fx.engine.Drain(ctx)

	if fx.transport.attempts(id) != 1 {
		t.Fatalf("expected exactly one delivery attempt, got %d", fx.transport.attempts(id))
	}
	totals, err := fx.store.Totals(ctx)
	if err != nil {
		t.Fatalf("Totals failed: %v", err)
	}
	if totals.Delivered != 1 {
		t.Fatalf("expected delivered=1, got %d", totals.Delivered)
	}
	if fx.blobs.Exists(id) {
		t.Fatal("expected blob removed after delivery")
	}
}

func TestRetryBoundLeavesItemQueued(t *testing.T) {
	fx := newEngineFixture(t, false, testsupport.WithMaxRetries(2))
	fx.transport.fail = func(string, int) error { return errors.New("endpoint down") }
	ctx := context.Background()

	id, err := fx.engine.Enqueue(ctx, testsupport.JPEGPayload(), nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	fx.engine.Drain(ctx)

	if got := fx.transport.attempts(id); got != 3 {
		t.Fatalf("expected maxRetries+1 = 3 attempts, got %d", got)
	}
	item, err := fx.store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if item == nil {
		t.Fatal("expected exhausted item to stay queued")
	}
	totals, _ := fx.store.Totals(ctx)
	if totals.Delivered != 0 {
		t.Fatalf("expected delivered=0, got %d", totals.Delivered)
	}

	// A fresh drain trigger starts the attempt count over.
	fx.engine.Drain(ctx)
	if got := fx.transport.attempts(id); got != 6 {
		t.Fatalf("expected 3 more attempts on the next drain, got %d total", got)
	}
}

func TestDeliveredOnAttemptAfterRetries(t *testing.T) {
	fx := newEngineFixture(t, false)
	fx.transport.fail = func(_ string, attempt int) error {
		if attempt < 5 {
			return &uploader.StatusError{Code: 500}
		}
		return nil
	}
	ctx := context.Background()

	id, err := fx.engine.Enqueue(ctx, testsupport.JPEGPayload(), nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	fx.engine.Drain(ctx)

	if got := fx.transport.attempts(id); got != 6 {
		t.Fatalf("expected delivery on the 6th attempt, got %d attempts", got)
	}
	totals, _ := fx.store.Totals(ctx)
	if totals.Delivered != 1 {
		t.Fatalf("expected delivered=1, got %d", totals.Delivered)
	}
}

func TestOverlappingDrainTriggerIsDropped(t *testing.T) {
	fx := newEngineFixture(t, true)
	fx.transport.started = make(chan string, 4)
	fx.transport.release = make(chan struct{})
	ctx := context.Background()

	id, err := fx.engine.Enqueue(ctx, testsupport.JPEGPayload(), nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// The enqueue-triggered drain is now blocked inside the transport.
	select {
	case <-fx.transport.started:
	case <-time.After(time.Second):
		t.Fatal("delivery did not start")
	}

	// A second trigger while the drain is active must return without
	// touching the in-flight item.
	done := make(chan struct{})
	go func() {
		fx.engine.Drain(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drain did not return while item was in flight")
	}

	close(fx.transport.release)

	if !waitUntil(t, 2*time.Second, func() bool {
		count, err := fx.store.Len(ctx)
		return err == nil && count == 0
	}) {
		t.Fatal("item was not delivered")
	}
	if got := fx.transport.attempts(id); got != 1 {
		t.Fatalf("expected exactly one transmission, got %d", got)
	}
}

func TestRapidEnqueuesWhileReachableAreSingleFlight(t *testing.T) {
	fx := newEngineFixture(t, true)
	fx.transport.started = make(chan string, 8)
	fx.transport.release = make(chan struct{})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := fx.engine.Enqueue(ctx, append(testsupport.JPEGPayload(), byte(i)), nil)
		if err != nil {
			t.Fatalf("Enqueue %d failed: %v", i, err)
		}
		ids = append(ids, id)
	}

	// One delivery is underway; the later enqueues must queue behind it
	// rather than open their own transmissions.
	select {
	case <-fx.transport.started:
	case <-time.After(time.Second):
		t.Fatal("delivery did not start")
	}
	time.Sleep(20 * time.Millisecond)
	fx.transport.mu.Lock()
	concurrent := fx.transport.concurrent
	fx.transport.mu.Unlock()
	if concurrent != 1 {
		t.Fatalf("expected 1 blocked transmission, got %d concurrent", concurrent)
	}

	close(fx.transport.release)

	if !waitUntil(t, 2*time.Second, func() bool {
		count, err := fx.store.Len(ctx)
		return err == nil && count == 0
	}) {
		t.Fatal("queue did not empty")
	}

	fx.transport.mu.Lock()
	maxSeen := fx.transport.maxSeen
	fx.transport.mu.Unlock()
	if maxSeen != 1 {
		t.Fatalf("expected sequential single-flight transmission, saw %d concurrent", maxSeen)
	}
	if fx.transport.totalAttempts() != 3 {
		t.Fatalf("expected exactly 3 transmissions, got %d", fx.transport.totalAttempts())
	}

	fx.transport.mu.Lock()
	order := append([]string(nil), fx.transport.order...)
	fx.transport.mu.Unlock()
	if len(order) != len(ids) {
		t.Fatalf("expected %d transmissions, got %v", len(ids), order)
	}
	for i, id := range ids {
		if order[i] != id {
			t.Fatalf("transmission order %v does not match enqueue order %v", order, ids)
		}
	}
}

func TestSingleDrainAtATime(t *testing.T) {
	fx := newEngineFixture(t, false)
	fx.transport.release = make(chan struct{})
	fx.transport.started = make(chan string, 8)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := fx.engine.Enqueue(ctx, testsupport.JPEGPayload(), nil); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fx.engine.Drain(ctx)
		}()
	}

	<-fx.transport.started
	close(fx.transport.release)
	wg.Wait()

	fx.transport.mu.Lock()
	maxSeen := fx.transport.maxSeen
	fx.transport.mu.Unlock()
	if maxSeen != 1 {
		t.Fatalf("expected sequential single-flight transmission, saw %d concurrent", maxSeen)
	}
}

func TestMissingBlobDropsLedgerEntry(t *testing.T) {
	fx := newEngineFixture(t, false)
	ctx := context.Background()

	// Simulate a stale entry from a prior partial write.
	if _, err := fx.store.Insert(ctx, ledger.Item{ID: "ghost.jpg"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	fx.engine.Drain(ctx)

	if fx.transport.totalAttempts() != 0 {
		t.Fatal("expected no transmission for missing blob")
	}
	count, err := fx.store.Len(ctx)
	if err != nil || count != 0 {
		t.Fatalf("expected stale entry dropped, queue len=%d (err=%v)", count, err)
	}
}

func TestProgressSubscriberSeesDeliveredCount(t *testing.T) {
	fx := newEngineFixture(t, false)
	ctx := context.Background()

	updates := make(chan ledger.Totals, 8)
	fx.engine.Progress().Subscribe(func(totals ledger.Totals) {
		updates <- totals
	})

	if _, err := fx.engine.Enqueue(ctx, testsupport.JPEGPayload(), nil); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	fx.engine.Drain(ctx)

	var last ledger.Totals
	deadline := time.After(2 * time.Second)
	for last.Delivered != 1 {
		select {
		case last = <-updates:
		case <-deadline:
			t.Fatalf("never observed delivered=1, last %+v", last)
		}
	}
	if last.Produced != 1 {
		t.Fatalf("expected produced=1 in final update, got %+v", last)
	}
}

func TestDeliveredCounterMonotonicAcrossMany(t *testing.T) {
	fx := newEngineFixture(t, false)
	ctx := context.Background()

	const n = 5
	for i := 0; i < n; i++ {
		if _, err := fx.engine.Enqueue(ctx, append(testsupport.JPEGPayload(), byte(i)), nil); err != nil {
			t.Fatalf("Enqueue %d failed: %v", i, err)
		}
	}

	var seen []int64
	fx.engine.Progress().Subscribe(func(totals ledger.Totals) {})

	fx.engine.Drain(ctx)

	totals, err := fx.store.Totals(ctx)
	if err != nil {
		t.Fatalf("Totals failed: %v", err)
	}
	seen = append(seen, totals.Delivered)
	if totals.Delivered != n {
		t.Fatalf("expected delivered=%d, got %+v (seen %v)", n, totals, seen)
	}
}

func TestEnqueueRejectsEmptyPayload(t *testing.T) {
	fx := newEngineFixture(t, false)
	if _, err := fx.engine.Enqueue(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error for empty payload")
	}
	count, _ := fx.store.Len(context.Background())
	if count != 0 {
		t.Fatalf("expected nothing enqueued, got %d", count)
	}
}

func TestEnqueueIDsAreUniqueAndStable(t *testing.T) {
	fx := newEngineFixture(t, false)
	ctx := context.Background()

	ids := make(map[string]struct{})
	for i := 0; i < 4; i++ {
		id, err := fx.engine.Enqueue(ctx, testsupport.JPEGPayload(), nil)
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		if _, dup := ids[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		ids[id] = struct{}{}
		if !fx.blobs.Exists(id) {
			t.Fatalf("blob missing for %s", id)
		}
	}

	items, err := fx.store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != len(ids) {
		t.Fatalf("expected %d queued items, got %d", len(ids), len(items))
	}
	for _, item := range items {
		if _, ok := ids[item.ID]; !ok {
			t.Fatalf("unexpected queued id %s", item.ID)
		}
	}
}

func TestDrainOnEmptyQueueReturnsImmediately(t *testing.T) {
	fx := newEngineFixture(t, false)

	done := make(chan struct{})
	go func() {
		fx.engine.Drain(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drain on empty queue did not return")
	}
	if fx.engine.Draining() {
		t.Fatal("expected drain finished")
	}
}

func TestStatusErrorMessage(t *testing.T) {
	err := &uploader.StatusError{Code: 503}
	want := fmt.Sprintf("upload returned status %d", 503)
	if err.Error() != want {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
