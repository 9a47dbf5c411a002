package ledger

import "time"

// Item represents one artifact awaiting delivery.
//
// ID is the opaque unique identifier that is also the blob filename and the
// server-visible filename. Location fields are present iff a fix existed at
// capture time. Items are never mutated after insertion; retries track their
// attempt counts in engine memory only.
type Item struct {
	ID          string
	LocationLat *float64
	LocationLon *float64
	CreatedAt   time.Time
}

// HasLocation reports whether the item carries a capture-time location fix.
func (i Item) HasLocation() bool {
	return i.LocationLat != nil && i.LocationLon != nil
}

// Totals holds the durable progress counters.
type Totals struct {
	Produced  int64
	Delivered int64
}
