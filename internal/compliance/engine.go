// Package compliance screens impact claims before they can earn rewards.
// It runs the ordered rule set over a claim's proof payload: origin
// authorization, evidence replay, plausibility scoring, and the physical
// anomaly ceiling. The first failed rule decides the outcome.
package compliance

import (
	"fmt"

	"github.com/ecl-project/ecl/internal/claims"
	"github.com/ecl-project/ecl/pkg/errors"
)

// Anomaly ceilings per claim type. A quantity above the ceiling is physically
// implausible for a single claim and gets rejected outright.
const (
	MaxTreeCount        = 500.0
	MaxPlasticWeightKg  = 1000.0
	MaxPM25             = 1000.0
	MaxCarbonTons       = 50.0
	MaxWastewaterLiters = 5000000.0
)

// Plausibility thresholds per evidence class
const (
	// PhotoEvidenceThreshold applies to community claims backed by photo URLs
	PhotoEvidenceThreshold = 0.70
	// HardwareEvidenceThreshold applies to device and sentinel claims backed
	// by hardware signatures
	HardwareEvidenceThreshold = 0.80
)

// Outcome is the verdict of a compliance evaluation. Outlier marks an
// accepted quantity that sits far outside the baseline for its claim type;
// it is advisory and callers surface it to operators without rejecting.
type Outcome struct {
	Accepted bool
	Outlier  bool
	Code     errors.Code
	Reason   string
}

// Registry exposes the authorization and replay state the engine reads.
// The ledger satisfies it.
type Registry interface {
	// IsAuthorizedDevice reports whether a device or sentinel identifier is
	// whitelisted
	IsAuthorizedDevice(id string) bool
	// IsConsumedToken reports whether an evidence token was already spent by
	// an accepted claim
	IsConsumedToken(token string) bool
}

// Engine evaluates claims against the compliance rule set
type Engine struct {
	scorer   Scorer
	baseline *Baseline
}

// Scorer produces a plausibility score in [0,1] for an evidence token
type Scorer func(token string, kind claims.Kind) float64

// NewEngine creates a compliance engine with the given plausibility scorer.
// A nil scorer falls back to the built-in one.
func NewEngine(scorer Scorer) *Engine {
	if scorer == nil {
		scorer = Score
	}
	return &Engine{
		scorer:   scorer,
		baseline: NewBaseline(),
	}
}

// Evaluate runs the ordered rule set over a proof. Rules run in a fixed
// order and the first failure wins; later rules are not consulted.
func (e *Engine) Evaluate(proof claims.Proof, registry Registry) Outcome {
	if proof.Kind() == claims.KindUnrecognized {
		return Outcome{
			Code:   errors.CodeLowPlausibility,
			Reason: "unrecognized claim type",
		}
	}

	if outcome := e.checkOrigin(proof, registry); !outcome.Accepted {
		return outcome
	}

	if outcome := e.checkReplay(proof, registry); !outcome.Accepted {
		return outcome
	}

	if outcome := e.checkPlausibility(proof); !outcome.Accepted {
		return outcome
	}

	if outcome := e.checkAnomaly(proof); !outcome.Accepted {
		return outcome
	}

	// Flag against the baseline before the new sample joins it, so one
	// inflated quantity cannot mask itself
	quantity := proof.Quantity()
	outlier := e.baseline.IsOutlier(proof.Kind(), quantity)
	e.baseline.Observe(proof.Kind(), quantity)

	return Outcome{Accepted: true, Outlier: outlier}
}

// checkOrigin verifies that claims needing a registered origin declare one
// that is whitelisted
func (e *Engine) checkOrigin(proof claims.Proof, registry Registry) Outcome {
	id, required := proof.Origin()
	if !required {
		return Outcome{Accepted: true}
	}

	if id == "" {
		return Outcome{
			Code:   errors.CodeUnauthorizedOrigin,
			Reason: fmt.Sprintf("%s claim is missing its origin identifier", proof.Kind()),
		}
	}

	if !registry.IsAuthorizedDevice(id) {
		return Outcome{
			Code:   errors.CodeUnauthorizedOrigin,
			Reason: fmt.Sprintf("origin %s is not an authorized device", id),
		}
	}

	return Outcome{Accepted: true}
}

// checkReplay rejects evidence tokens already spent by an accepted claim
func (e *Engine) checkReplay(proof claims.Proof, registry Registry) Outcome {
	token := proof.EvidenceToken()
	if token == "" {
		return Outcome{
			Code:   errors.CodeLowPlausibility,
			Reason: fmt.Sprintf("%s claim is missing its evidence", proof.Kind()),
		}
	}

	if registry.IsConsumedToken(token) {
		return Outcome{
			Code:   errors.CodeReplayDetected,
			Reason: "evidence token was already used by an accepted claim",
		}
	}

	return Outcome{Accepted: true}
}

// checkPlausibility scores the evidence and applies the per-class threshold
func (e *Engine) checkPlausibility(proof claims.Proof) Outcome {
	threshold := PhotoEvidenceThreshold
	if _, required := proof.Origin(); required {
		threshold = HardwareEvidenceThreshold
	}

	score := e.scorer(proof.EvidenceToken(), proof.Kind())
	if score < threshold {
		return Outcome{
			Code:   errors.CodeLowPlausibility,
			Reason: fmt.Sprintf("plausibility score %.2f is below threshold %.2f", score, threshold),
		}
	}

	return Outcome{Accepted: true}
}

// checkAnomaly enforces the per-type physical ceiling on the claimed
// quantity. Negative quantities are physically meaningless and rejected
// outright; a naive unsigned conversion would otherwise turn them into
// enormous rewards.
func (e *Engine) checkAnomaly(proof claims.Proof) Outcome {
	quantity := proof.Quantity()
	if quantity < 0 {
		return Outcome{
			Code:   errors.CodeAnomalyExceeded,
			Reason: fmt.Sprintf("claimed quantity %.2f is negative", quantity),
		}
	}

	ceiling, ok := anomalyCeiling(proof.Kind())
	if !ok {
		return Outcome{Accepted: true}
	}

	if quantity > ceiling {
		return Outcome{
			Code:   errors.CodeAnomalyExceeded,
			Reason: fmt.Sprintf("claimed quantity %.0f exceeds the %s ceiling of %.0f", quantity, proof.Kind(), ceiling),
		}
	}

	return Outcome{Accepted: true}
}

func anomalyCeiling(kind claims.Kind) (float64, bool) {
	switch kind {
	case claims.KindTreePlanting:
		return MaxTreeCount, true
	case claims.KindPlasticRecycling:
		return MaxPlasticWeightKg, true
	case claims.KindAQIData:
		return MaxPM25, true
	case claims.KindCarbonCapture:
		return MaxCarbonTons, true
	case claims.KindWastewaterTreatment:
		return MaxWastewaterLiters, true
	default:
		return 0, false
	}
}
