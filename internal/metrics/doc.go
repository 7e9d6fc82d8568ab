// Package metrics holds the engine's lock-free counters and its single
// authenticate-latency histogram.
//
// Counters live in cache-line padded slots and are bumped with sync/atomic.
// Exporters under metrics/export read [Snapshot] values and never write.
package metrics
