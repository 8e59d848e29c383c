/*
Package types defines the data structures shared across the coordinator:
round state, worker identity, task assignments, and the read-only
snapshots the API layer serializes. Component-owned mutable state (the
round membership sets themselves, worker tokens, reputation counters)
lives in the package that owns it and is only ever exposed here as a
snapshot value.
*/
package types
