package compliance

import (
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/ecl-project/ecl/internal/claims"
)

// Score is the built-in plausibility scorer. It stands in for an external
// evidence analysis service: tokens that advertise themselves as fabricated
// score zero, everything else gets a deterministic score in [0,1] derived
// from the token digest. Determinism matters more than realism here, since
// every peer must reach the same verdict for the same claim.
func Score(token string, kind claims.Kind) float64 {
	if strings.Contains(strings.ToLower(token), "fake") {
		return 0
	}

	digest := chainhash.DoubleHashH([]byte(token + "|" + string(kind)))
	return float64(digest[0]) / 255
}
