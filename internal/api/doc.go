// Package api defines the HTTP control surface shared by the daemon and the
// CLI: request/response DTOs plus the client the CLI uses to reach a running
// daemon.
//
// The DTO layer keeps ledger internals off the wire. Reuse these types when
// adding endpoints so the CLI and daemon stay protocol-compatible.
package api
