// Package prometheus publishes deskauth engine counters through
// client_golang.
//
// [Collector] reads a fresh snapshot on every scrape. Counter names are
// deskauth_*_total; authenticate latency is the histogram
// deskauth_authenticate_latency_seconds. [Handler] serves a private registry,
// so nothing is added to the global default registry.
package prometheus
