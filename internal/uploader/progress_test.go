package uploader

import (
	"sync"
	"testing"
	"time"

	"snapsync/internal/ledger"
)

func TestProgressLatestSubscriberWins(t *testing.T) {
	var p Progress

	first := make(chan ledger.Totals, 1)
	second := make(chan ledger.Totals, 1)
	p.Subscribe(func(totals ledger.Totals) { first <- totals })
	p.Subscribe(func(totals ledger.Totals) { second <- totals })

	p.publish(ledger.Totals{Produced: 2, Delivered: 1})

	select {
	case got := <-second:
		if got.Produced != 2 || got.Delivered != 1 {
			t.Fatalf("unexpected totals %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("second subscriber never notified")
	}
	select {
	case <-first:
		t.Fatal("replaced subscriber was notified")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestProgressNilSubscriberClears(t *testing.T) {
	var p Progress

	calls := make(chan struct{}, 1)
	p.Subscribe(func(ledger.Totals) { calls <- struct{}{} })
	p.Subscribe(nil)

	p.publish(ledger.Totals{Produced: 1})

	select {
	case <-calls:
		t.Fatal("cleared subscriber was notified")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestProgressPublishWithoutSubscriberIsNoop(t *testing.T) {
	var p Progress
	p.publish(ledger.Totals{Produced: 1, Delivered: 1})
}

func TestProgressUpdatesArriveInPublishOrder(t *testing.T) {
	var p Progress

	var mu sync.Mutex
	var seen []int64
	p.Subscribe(func(totals ledger.Totals) {
		mu.Lock()
		seen = append(seen, totals.Delivered)
		mu.Unlock()
		// A slow observer forces intermediate values to coalesce.
		time.Sleep(time.Millisecond)
	})

	const final = 40
	for i := int64(1); i <= final; i++ {
		p.publish(ledger.Totals{Produced: final, Delivered: i})
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		var last int64
		if len(seen) > 0 {
			last = seen[len(seen)-1]
		}
		mu.Unlock()
		if last == final {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("never observed delivered=%d, saw %v", final, seen)
		}
		time.Sleep(2 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("observed delivered count going backwards: %v", seen)
		}
	}
}
