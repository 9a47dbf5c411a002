// Package daemon coordinates the long-running snapsync process and system
// integration points.
//
// It wires configuration, the queue ledger, the delivery engine, the
// connectivity monitor, and the inbox watcher into a single lifecycle with
// flock-based locking to prevent multiple instances. The daemon also serves
// the HTTP control API that the CLI talks to.
//
// Keep orchestration logic here: delivery semantics live in the uploader
// package while the daemon focuses on startup, shutdown, and high level
// coordination.
package daemon
