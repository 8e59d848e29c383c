/*
Package aggregator collects workers' weight-delta submissions per round and,
on aggregation, persists the next model version, advances the task
assigner's version through the taskassign.VersionSink interface, and closes
the round. It mirrors the original coordinator's Aggregator, keeping the
collected deltas as opaque strings until the artifact is written.
*/
package aggregator
