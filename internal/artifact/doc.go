// Package artifact stores queued image payloads as individual files on disk.
//
// Each payload is written under a freshly generated identifier that doubles
// as the on-disk filename and the server-visible filename on upload, making
// the id the idempotency key for retransmission. Writes go through a temp
// file, fsync, and rename so a blob either exists completely or not at all.
package artifact
