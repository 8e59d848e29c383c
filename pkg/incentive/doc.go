/*
Package incentive implements a simulated token reward ledger for federated
learning workers, mirroring the original coordinator's IncentiveManager: a
base reward per accepted update, a speed bonus for low-latency submissions,
and a consistency bonus for consecutive awards. These are research-simulation
tokens, not real currency.
*/
package incentive
