/*
Package round owns the worker registry, the round state machine, and the
worker-to-active-round assignment map. It is the central piece of shared
mutable state the rest of the coordinator reads and writes through, guarded
by a single mutex the way the teacher's manager components guard cluster
state.
*/
package round
