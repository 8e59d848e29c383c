/*
Package reputation scores worker reliability from round participation and
update history. It mirrors the original coordinator's ReputationManager: a
per-worker counter set plus a weighted combination of completion,
acceptance, dropout, and latency into a single score in [0, 1].
*/
package reputation
