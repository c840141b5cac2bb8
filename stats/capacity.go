package stats

import (
	"math"
	"sort"

	"github.com/bitcoinfees/feesim/sim"
)

// Capacity is the non-decreasing step function of aggregate byterate
// capacity against feerate (per spec's Capacity data model), paired with
// the tx byterate curve it's compared against to derive the stable
// feerate. CapLower[i] includes pools whose min_feerate equals
// Feerates[i]; CapUpper[i] is the capacity approached from just below that
// feerate (i.e. excludes them) — they differ only at the pools' own
// threshold points.
type Capacity struct {
	Feerates    []float64
	TxByterates []float64
	CapLower    []float64
	CapUpper    []float64
}

// NewCapacity builds the capacity curve for a pool set at the given average
// block interval (seconds), evaluating the supplied tx byterate function
// (typically estimate.TxSource.RateFn, or a mock in tests) at the same
// feerate thresholds.
func NewCapacity(pools []sim.SimPool, blockInterval float64, txByterates func([]float64) []float64) *Capacity {
	m := make(map[float64]float64)
	var total float64
	for _, p := range pools {
		total += p.HashRate
	}
	for _, p := range pools {
		if p.MinFeeRate >= sim.MaxFeeRate {
			continue
		}
		m[float64(p.MinFeeRate)] += p.HashRate / total * float64(p.MaxBlockSize) / blockInterval
	}

	feerates := []float64{0}
	for f := range m {
		feerates = append(feerates, f)
	}
	sort.Float64s(feerates[1:])

	capLower := make([]float64, len(feerates))
	capUpper := make([]float64, len(feerates))
	var cum float64
	for i, f := range feerates {
		if i > 0 {
			capUpper[i] = cum
			cum += m[f]
		}
		capLower[i] = cum
	}

	return &Capacity{
		Feerates:    feerates,
		TxByterates: txByterates(feerates),
		CapLower:    capLower,
		CapUpper:    capUpper,
	}
}

// CalcStableFeeRate returns the smallest feerate at which the tx byterate
// to capacity ratio drops to or below rateRatioThresh. If the ratio never
// drops that low, +Inf is returned: the simulation is Unstable at every
// feerate in range.
func (c *Capacity) CalcStableFeeRate(rateRatioThresh float64) float64 {
	for i := range c.Feerates {
		if c.CapLower[i] == 0 {
			continue
		}
		if c.TxByterates[i]/c.CapLower[i] <= rateRatioThresh {
			return c.Feerates[i]
		}
	}
	return math.Inf(1)
}
