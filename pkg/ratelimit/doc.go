/*
Package ratelimit bounds how often a worker may call the coordinator and how
many updates it may submit in a single round, the same per-worker sliding
window and per-round counter the original Python coordinator's RateLimiter
implements, kept in memory under a single mutex shared by all workers.
*/
package ratelimit
