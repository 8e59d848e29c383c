/*
Package metrics provides Prometheus metrics collection and exposition for
the coordinator. Metrics are defined and registered at package init using
the Prometheus client library, and exposed via an HTTP handler for
scraping.

Gauges describe instantaneous cluster state (active workers, rounds by
state). Counters are monotonic (rounds aggregated, updates rejected by
reason). Histograms capture latency distributions (round duration,
aggregation duration). Collector polls round.Manager and incentive.Ledger
on a timer and republishes their state as gauges; the Timer helper lets
call sites observe durations inline.
*/
package metrics
