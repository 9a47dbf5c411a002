package uploader

import (
	"sync"

	"snapsync/internal/ledger"
)

// Progress is a single-slot subscription surface for counter changes.
//
// The most recent subscriber wins, matching the one-consumer use case.
// Updates are delivered by a single notifier goroutine so the observer sees
// counts in publish order; a slow observer never blocks the delivery engine,
// it just coalesces intermediate values into the latest one.
type Progress struct {
	mu        sync.Mutex
	fn        func(ledger.Totals)
	pending   *ledger.Totals
	notifying bool
}

// Subscribe registers fn as the sole observer, replacing any previous one.
// A nil fn clears the subscription.
func (p *Progress) Subscribe(fn func(ledger.Totals)) {
	p.mu.Lock()
	p.fn = fn
	p.mu.Unlock()
}

func (p *Progress) publish(totals ledger.Totals) {
	p.mu.Lock()
	if p.fn == nil {
		p.pending = nil
		p.mu.Unlock()
		return
	}
	p.pending = &totals
	if p.notifying {
		p.mu.Unlock()
		return
	}
	p.notifying = true
	p.mu.Unlock()

	go p.notify()
}

// notify drains the pending slot until no update remains. Only one notify
// goroutine exists at a time, guarded by the notifying flag.
func (p *Progress) notify() {
	for {
		p.mu.Lock()
		next := p.pending
		fn := p.fn
		p.pending = nil
		if next == nil || fn == nil {
			p.notifying = false
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		fn(*next)
	}
}
