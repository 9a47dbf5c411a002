// Package uploader drains the queue ledger against the remote endpoint.
//
// The Engine is the only mutator of the ledger, the delivered counter, and
// artifact deletions. It enforces one active drain loop process-wide,
// de-duplicates concurrent deliveries of the same item with an in-memory
// in-flight set, and retries failed attempts a bounded number of times with
// a fixed backoff. Items that exhaust their retries stay queued; the next
// drain trigger starts them over with a fresh attempt count.
//
// Delivery failures never propagate to producers. The only externally
// visible signal of trouble is the delivered counter not advancing.
package uploader
