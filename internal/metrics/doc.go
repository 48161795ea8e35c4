// Package metrics keeps Prometheus counters for pipeline runs and writes
// them to a textfile for node_exporter's textfile collector.
package metrics
