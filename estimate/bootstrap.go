// Bootstrap confidence statistics for the stranding fee rate.

package estimate

import (
	"math"
	"math/rand"

	"github.com/bitcoinfees/feesim/sim"
)

const DefaultNumBootstrap = 1000

// SFRConfidence reports the dispersion of the stranding feerate estimate
// under resampling with replacement: the bootstrap mean and standard
// deviation of SFR, and its bias against whichever of {the observed SFR,
// the next-lower observed feerate} is farther from the bootstrap mean.
type SFRConfidence struct {
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Bias   float64 `json:"bias"`
	NumObs int     `json:"numobs"`
}

// BootstrapConfidence resamples t with replacement numBootstrap times,
// computing the stranding feerate on each resample, and reports the
// resulting distribution of estimates. t is not modified; stat must be the
// SFRStat already computed on t via StrandingFeeRate with the same
// minrelaytxfee.
func (t SFRTxSlice) BootstrapConfidence(minrelaytxfee sim.FeeRate, stat SFRStat, numBootstrap int, r *rand.Rand) SFRConfidence {
	n := len(t)
	if n == 0 || numBootstrap <= 0 {
		return SFRConfidence{NumObs: n}
	}

	sorted := make(SFRTxSlice, n)
	copy(sorted, t)
	sorted.Sort()

	sfrs := make([]float64, numBootstrap)
	resample := make(SFRTxSlice, n)
	for i := 0; i < numBootstrap; i++ {
		for j := 0; j < n; j++ {
			resample[j] = sorted[r.Intn(n)]
		}
		bstat := resample.StrandingFeeRate(minrelaytxfee)
		sfrs[i] = float64(bstat.SFR)
	}

	var mean float64
	for _, x := range sfrs {
		mean += x
	}
	mean /= float64(numBootstrap)

	var variance float64
	for _, x := range sfrs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(numBootstrap)
	std := math.Sqrt(variance)

	// The next-lower observed feerate below the reference SFR, i.e. the
	// candidate reference point used when the SFR itself sits right on
	// an observation and bootstrap resamples tend to land below it.
	nextLower := float64(stat.SFR)
	for _, tx := range sorted {
		if tx.FeeRate < stat.SFR {
			nextLower = float64(tx.FeeRate)
			break
		}
	}

	ref := float64(stat.SFR)
	if math.Abs(nextLower-mean) > math.Abs(ref-mean) {
		ref = nextLower
	}

	return SFRConfidence{
		Mean:   mean,
		Std:    std,
		Bias:   mean - ref,
		NumObs: n,
	}
}
