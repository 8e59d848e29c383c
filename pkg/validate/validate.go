package validate

import (
	"github.com/cuemby/fedcoord/pkg/authstore"
	"github.com/cuemby/fedcoord/pkg/privacy"
	"github.com/cuemby/fedcoord/pkg/ratelimit"
	"github.com/cuemby/fedcoord/pkg/round"
)

// Reason codes returned by Validate, in the order their checks run.
const (
	ReasonAuthenticationFailed   = "authentication_failed"
	ReasonClientNotRegistered    = "client_not_registered"
	ReasonInvalidRoundAssignment = "invalid_round_or_assignment"
	ReasonRateLimitExceeded      = "rate_limit_exceeded"
	ReasonInvalidDeltaFormat     = "invalid_weight_delta_format"
	ReasonNonFiniteValues        = "non_finite_values"
)

// Dependencies are the components each check consults. Auth and RateLimiter
// are optional; a nil value skips that check.
type Dependencies struct {
	Rounds      *round.Manager
	Auth        authstore.Store
	RateLimiter *ratelimit.Limiter
}

// Validator runs the fixed admission chain over an incoming update.
type Validator struct {
	deps Dependencies
}

// New creates a Validator over deps.
func New(deps Dependencies) *Validator {
	return &Validator{deps: deps}
}

// Validate runs every check in order, stopping at the first failure.
func (v *Validator) Validate(workerID string, roundID int, apiKey, weightDeltaJSON string) (bool, string) {
	if v.deps.Auth != nil {
		if err := v.deps.Auth.ValidateFor(workerID, apiKey); err != nil {
			return false, ReasonAuthenticationFailed
		}
	}

	if !v.deps.Rounds.IsRegistered(workerID) {
		return false, ReasonClientNotRegistered
	}

	if !v.deps.Rounds.ValidateUpdate(workerID, roundID) {
		return false, ReasonInvalidRoundAssignment
	}

	if v.deps.RateLimiter != nil {
		if ok, _ := v.deps.RateLimiter.CheckUpdate(workerID, roundID); !ok {
			return false, ReasonRateLimitExceeded
		}
	}

	if weightDeltaJSON == "" {
		return false, ReasonInvalidDeltaFormat
	}

	if doc, ok := privacy.ParseDocument(weightDeltaJSON); ok {
		if tensors, ok := privacy.ExtractTensors(doc); ok {
			if err := privacy.ValidateFinite(tensors); err != nil {
				return false, ReasonNonFiniteValues
			}
		}
	}

	return true, ""
}
