/*
Package taskassign hands out training tasks to workers, caching each
worker's current assignment so repeated task requests are idempotent until
their round saturates. It tracks the coordinator's current model version
itself, advanced only through the small VersionSink interface it exposes so
the aggregator need not hold a back-reference to the whole assigner.
*/
package taskassign
