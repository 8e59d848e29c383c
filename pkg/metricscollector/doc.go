/*
Package metricscollector tracks per-round federated learning metrics and
global counters, mirroring the original coordinator's MetricsCollector: an
in-memory round_id -> RoundMetrics map, a JSON snapshot per round written to
disk on round end, and a rolling human-readable summary log.
*/
package metricscollector
