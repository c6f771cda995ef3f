// Package metric manages Prometheus metrics registration and exposure for
// busbridge. The MetricsRegistry owns a dedicated Prometheus registry with
// Go runtime collectors pre-registered; components register their own
// metrics against it and its Handler serves the scrape endpoint.
package metric
