// Package tasks drives the claim lifecycle: staked submission into the
// validation pool, the automated compliance pass, and mining the validated
// pool into a new block.
package tasks

import (
	"math"

	"github.com/ecl-project/ecl/internal/claims"
)

// DefaultRewardCap bounds the reward of any single claim regardless of its
// claimed quantity
const DefaultRewardCap = 5000

// Per-type reward rates
const (
	rewardPerTree             = 1
	plasticKgPerCredit        = 2
	rewardAQIReport           = 5
	rewardPerCarbonTon        = 100
	wastewaterLitersPerCredit = 1000
)

// RewardFor computes the credit reward a claim earns if accepted, bounded by
// the cap. Unrecognized claim types earn nothing.
func RewardFor(proof claims.Proof, cap uint64) uint64 {
	if cap == 0 {
		cap = DefaultRewardCap
	}

	var reward uint64
	switch p := proof.(type) {
	case claims.TreePlanting:
		reward = p.Count * rewardPerTree
	case claims.PlasticRecycling:
		// Guard the unsigned conversion: a negative weight must not wrap
		// into a huge reward.
		if p.WeightKg > 0 {
			reward = uint64(math.Floor(p.WeightKg / plasticKgPerCredit))
		}
	case claims.AQIData:
		reward = rewardAQIReport
	case claims.CarbonCapture:
		if p.TonsCaptured > 0 {
			reward = uint64(math.Floor(p.TonsCaptured)) * rewardPerCarbonTon
		}
	case claims.WastewaterTreatment:
		reward = p.LitersTreated / wastewaterLitersPerCredit
	default:
		return 0
	}

	if reward > cap {
		return cap
	}
	return reward
}
