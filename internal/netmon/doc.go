// Package netmon observes network reachability for the delivery engine.
//
// The Monitor probes a TCP address on a fixed cadence and publishes an
// edge-triggered signal when the network transitions from unreachable to
// reachable. The signal channel is coalesced: while a consumer is busy, any
// number of further positive edges collapse into a single pending signal,
// which is all the drain loop needs.
package netmon
