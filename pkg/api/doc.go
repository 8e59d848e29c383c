/*
Package api implements the coordinator's HTTP surface: plain JSON over
net/http, no gRPC and no mTLS. Every handler is a thin adapter over
pkg/coordinator.Core — it decodes the request, calls a Core method, and
maps the result (or one of Core's sentinel errors) to a JSON response.

# Routes

Client-facing:

	POST /client/register                register a worker, get back an id + api key
	GET  /task/{client_id}                poll for the current round assignment
	POST /update                          submit a weight-delta update
	GET  /aggregate/{round_id}            fetch a round's aggregation result
	GET  /status/{round_id}               fetch a round's membership/state snapshot
	GET  /model/{version}                 fetch a stored model document

Observability:

	GET  /metrics                         full per-round JSON metrics snapshot
	GET  /metrics/latest                  most recently started round's metrics
	GET  /metrics/round/{round_id}        one round's metrics
	GET  /reputation?top=N                top reputation leaderboard
	GET  /reputation/{client_id}          one worker's reputation + rate-limit snapshot
	GET  /incentives?top=N                top incentive leaderboard
	GET  /incentives/{client_id}          one worker's incentive ledger
	GET  /async/round/{round_id}/stats    quorum/timeout stats for a round

Operational:

	GET  /healthz                         liveness-plus-dependency health
	GET  /readyz                          readiness (round manager, model store up)
	GET  /livez                           bare liveness
	GET  /internal/metrics                Prometheus exposition (ambient, not in the spec's endpoint table)

# Error mapping

Handlers never write raw error strings for internal state; they compare
Core's sentinel errors with errors.Is and translate to one of the status
codes below, with a JSON body of the shape {"error": "...", "reason": "..."}.

	ErrUnauthenticated                                    -> 401
	ErrAlreadyRegistered, ErrBadDelta,
	ErrNonFinite, ErrInvalidRound                         -> 400
	ErrRateLimited                                        -> 429
	ErrNotFound, ErrInvalidVersion                        -> 404
	ErrStraggler                                          -> 410
	ErrCorrupt, ErrPersistenceFailed, default             -> 500
*/
package api
