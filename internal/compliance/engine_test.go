package compliance

import (
	"fmt"
	"testing"

	"github.com/ecl-project/ecl/internal/claims"
	"github.com/ecl-project/ecl/pkg/errors"
)

type stubRegistry struct {
	devices  map[string]bool
	consumed map[string]bool
}

func (r *stubRegistry) IsAuthorizedDevice(id string) bool { return r.devices[id] }
func (r *stubRegistry) IsConsumedToken(token string) bool { return r.consumed[token] }

func newStubRegistry() *stubRegistry {
	return &stubRegistry{
		devices:  make(map[string]bool),
		consumed: make(map[string]bool),
	}
}

// passingToken finds an evidence token the built-in scorer rates above the
// given threshold for the claim type
func passingToken(t *testing.T, kind claims.Kind, threshold float64) string {
	t.Helper()
	for i := 0; i < 4096; i++ {
		token := fmt.Sprintf("evidence-%s-%d", kind, i)
		if Score(token, kind) >= threshold {
			return token
		}
	}
	t.Fatal("no passing token found")
	return ""
}

// failingToken finds an evidence token the built-in scorer rates below the
// given threshold for the claim type
func failingToken(t *testing.T, kind claims.Kind, threshold float64) string {
	t.Helper()
	for i := 0; i < 4096; i++ {
		token := fmt.Sprintf("weak-%s-%d", kind, i)
		if Score(token, kind) < threshold {
			return token
		}
	}
	t.Fatal("no failing token found")
	return ""
}

func TestEvaluate_AcceptsValidCommunityClaim(t *testing.T) {
	engine := NewEngine(nil)
	registry := newStubRegistry()

	token := passingToken(t, claims.KindTreePlanting, PhotoEvidenceThreshold)
	proof := claims.TreePlanting{Count: 3, Location: "riverside park", Evidence: token}

	outcome := engine.Evaluate(proof, registry)
	if !outcome.Accepted {
		t.Fatalf("expected acceptance, got %s: %s", outcome.Code, outcome.Reason)
	}
}

func TestEvaluate_AcceptsValidSentinelClaim(t *testing.T) {
	engine := NewEngine(nil)
	registry := newStubRegistry()
	registry.devices["ecl-sentinel-01"] = true

	token := passingToken(t, claims.KindCarbonCapture, HardwareEvidenceThreshold)
	proof := claims.CarbonCapture{
		SentinelID:        "ecl-sentinel-01",
		TonsCaptured:      12,
		HardwareSignature: token,
	}

	outcome := engine.Evaluate(proof, registry)
	if !outcome.Accepted {
		t.Fatalf("expected acceptance, got %s: %s", outcome.Code, outcome.Reason)
	}
}

func TestEvaluate_RejectsUnauthorizedOrigin(t *testing.T) {
	engine := NewEngine(nil)
	registry := newStubRegistry()

	token := passingToken(t, claims.KindCarbonCapture, HardwareEvidenceThreshold)
	proof := claims.CarbonCapture{
		SentinelID:        "rogue-sentinel",
		TonsCaptured:      12,
		HardwareSignature: token,
	}

	outcome := engine.Evaluate(proof, registry)
	if outcome.Accepted {
		t.Fatal("expected rejection")
	}
	if outcome.Code != errors.CodeUnauthorizedOrigin {
		t.Errorf("expected code %s, got %s", errors.CodeUnauthorizedOrigin, outcome.Code)
	}
}

func TestEvaluate_RejectsReplayedEvidence(t *testing.T) {
	engine := NewEngine(nil)
	registry := newStubRegistry()

	token := passingToken(t, claims.KindTreePlanting, PhotoEvidenceThreshold)
	registry.consumed[token] = true

	proof := claims.TreePlanting{Count: 3, Evidence: token}
	outcome := engine.Evaluate(proof, registry)
	if outcome.Accepted {
		t.Fatal("expected rejection")
	}
	if outcome.Code != errors.CodeReplayDetected {
		t.Errorf("expected code %s, got %s", errors.CodeReplayDetected, outcome.Code)
	}
}

func TestEvaluate_RejectsLowPlausibility(t *testing.T) {
	engine := NewEngine(nil)
	registry := newStubRegistry()

	proof := claims.TreePlanting{Count: 3, Evidence: "https://img.example/fake-photo.jpg"}
	outcome := engine.Evaluate(proof, registry)
	if outcome.Accepted {
		t.Fatal("expected rejection")
	}
	if outcome.Code != errors.CodeLowPlausibility {
		t.Errorf("expected code %s, got %s", errors.CodeLowPlausibility, outcome.Code)
	}
}

func TestEvaluate_RejectsAnomalousQuantity(t *testing.T) {
	engine := NewEngine(nil)
	registry := newStubRegistry()
	registry.devices["ecl-sentinel-01"] = true

	token := passingToken(t, claims.KindCarbonCapture, HardwareEvidenceThreshold)
	proof := claims.CarbonCapture{
		SentinelID:        "ecl-sentinel-01",
		TonsCaptured:      75,
		HardwareSignature: token,
	}

	outcome := engine.Evaluate(proof, registry)
	if outcome.Accepted {
		t.Fatal("expected rejection")
	}
	if outcome.Code != errors.CodeAnomalyExceeded {
		t.Errorf("expected code %s, got %s", errors.CodeAnomalyExceeded, outcome.Code)
	}
}

func TestEvaluate_RejectsNegativeQuantity(t *testing.T) {
	engine := NewEngine(nil)
	registry := newStubRegistry()

	token := passingToken(t, claims.KindPlasticRecycling, PhotoEvidenceThreshold)
	proof := claims.PlasticRecycling{WeightKg: -3, Location: "depot 4", Evidence: token}

	outcome := engine.Evaluate(proof, registry)
	if outcome.Accepted {
		t.Fatal("expected rejection")
	}
	if outcome.Code != errors.CodeAnomalyExceeded {
		t.Errorf("expected code %s, got %s", errors.CodeAnomalyExceeded, outcome.Code)
	}
}

func TestEvaluate_FlagsOutlierQuantity(t *testing.T) {
	engine := NewEngine(nil)
	registry := newStubRegistry()

	// The stub registry never consumes tokens, so one passing token can
	// seed the whole baseline
	token := passingToken(t, claims.KindPlasticRecycling, PhotoEvidenceThreshold)
	for i := 0; i < 8; i++ {
		proof := claims.PlasticRecycling{WeightKg: 10 + float64(i), Evidence: token}
		outcome := engine.Evaluate(proof, registry)
		if !outcome.Accepted {
			t.Fatalf("expected acceptance, got %s: %s", outcome.Code, outcome.Reason)
		}
		if outcome.Outlier {
			t.Errorf("expected weight %d not to be flagged", 10+i)
		}
	}

	// Far above the baseline but below the hard ceiling: accepted, flagged
	outcome := engine.Evaluate(claims.PlasticRecycling{WeightKg: 900, Evidence: token}, registry)
	if !outcome.Accepted {
		t.Fatalf("expected acceptance, got %s: %s", outcome.Code, outcome.Reason)
	}
	if !outcome.Outlier {
		t.Error("expected outlier flag on a far quantity")
	}
}

func TestEvaluate_RejectsUnrecognizedType(t *testing.T) {
	engine := NewEngine(nil)
	registry := newStubRegistry()

	outcome := engine.Evaluate(claims.Unrecognized{RawType: "cold_fusion"}, registry)
	if outcome.Accepted {
		t.Fatal("expected rejection")
	}
	if outcome.Code != errors.CodeLowPlausibility {
		t.Errorf("expected code %s, got %s", errors.CodeLowPlausibility, outcome.Code)
	}
}

func TestEvaluate_RuleOrder(t *testing.T) {
	// An unauthorized origin carrying already-consumed evidence must report
	// the origin failure, since origin checks run first
	engine := NewEngine(nil)
	registry := newStubRegistry()
	registry.consumed["sig-replayed"] = true

	proof := claims.CarbonCapture{
		SentinelID:        "rogue-sentinel",
		TonsCaptured:      10,
		HardwareSignature: "sig-replayed",
	}

	outcome := engine.Evaluate(proof, registry)
	if outcome.Code != errors.CodeUnauthorizedOrigin {
		t.Errorf("expected code %s, got %s", errors.CodeUnauthorizedOrigin, outcome.Code)
	}
}

func TestEvaluate_MissingEvidence(t *testing.T) {
	engine := NewEngine(nil)
	registry := newStubRegistry()

	outcome := engine.Evaluate(claims.TreePlanting{Count: 3}, registry)
	if outcome.Accepted {
		t.Fatal("expected rejection")
	}
	if outcome.Code != errors.CodeLowPlausibility {
		t.Errorf("expected code %s, got %s", errors.CodeLowPlausibility, outcome.Code)
	}
}

func TestScore_FabricatedTokens(t *testing.T) {
	tests := []string{"fake-photo", "FAKE-sig", "totally-Fake-evidence"}
	for _, token := range tests {
		if score := Score(token, claims.KindTreePlanting); score != 0 {
			t.Errorf("expected score 0 for %q, got %v", token, score)
		}
	}
}

func TestScore_Deterministic(t *testing.T) {
	a := Score("evidence-a", claims.KindAQIData)
	b := Score("evidence-a", claims.KindAQIData)
	if a != b {
		t.Errorf("expected stable score, got %v and %v", a, b)
	}
	if a < 0 || a > 1 {
		t.Errorf("expected score in [0,1], got %v", a)
	}
}

func TestBaseline_Outliers(t *testing.T) {
	baseline := NewBaseline()

	for i := 0; i < 10; i++ {
		baseline.Observe(claims.KindCarbonCapture, 10+float64(i%3))
	}

	if baseline.IsOutlier(claims.KindCarbonCapture, 11) {
		t.Error("expected in-range quantity to pass")
	}
	if !baseline.IsOutlier(claims.KindCarbonCapture, 45) {
		t.Error("expected far quantity to be flagged")
	}
}

func TestBaseline_NeedsSamples(t *testing.T) {
	baseline := NewBaseline()
	baseline.Observe(claims.KindTreePlanting, 5)

	if baseline.IsOutlier(claims.KindTreePlanting, 400) {
		t.Error("expected no flagging before enough samples")
	}
}
