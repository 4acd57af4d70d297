package compliance

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ecl-project/ecl/internal/claims"
)

const (
	// baselineMinSamples is how many accepted quantities a claim type needs
	// before outlier flagging starts
	baselineMinSamples = 8
	// baselineMaxSamples caps the sliding window per claim type
	baselineMaxSamples = 256
	// baselineZScore marks a quantity as an outlier when it sits this many
	// standard deviations from the mean
	baselineZScore = 3.0
)

// Baseline tracks accepted claim quantities per type and flags statistical
// outliers. It is purely advisory: an outlier is surfaced to operators via
// IsOutlier but never rejects a claim, since honest quantities vary widely
// and the hard anomaly ceilings already bound the physically impossible.
type Baseline struct {
	samples map[claims.Kind][]float64
}

// NewBaseline creates an empty quantity baseline
func NewBaseline() *Baseline {
	return &Baseline{
		samples: make(map[claims.Kind][]float64),
	}
}

// Observe records an accepted quantity for a claim type
func (b *Baseline) Observe(kind claims.Kind, quantity float64) {
	window := append(b.samples[kind], quantity)
	if len(window) > baselineMaxSamples {
		window = window[len(window)-baselineMaxSamples:]
	}
	b.samples[kind] = window
}

// IsOutlier reports whether a quantity sits far outside the observed
// distribution for its claim type. Returns false until enough samples have
// accumulated.
func (b *Baseline) IsOutlier(kind claims.Kind, quantity float64) bool {
	window := b.samples[kind]
	if len(window) < baselineMinSamples {
		return false
	}

	mean, stddev := stat.MeanStdDev(window, nil)
	if stddev == 0 || math.IsNaN(stddev) {
		return false
	}

	return math.Abs(quantity-mean)/stddev > baselineZScore
}

// SampleCount returns how many quantities have been observed for a claim type
func (b *Baseline) SampleCount(kind claims.Kind) int {
	return len(b.samples[kind])
}
