package stats

import (
	"math"
	"sort"
)

const feeClassQuantize = 200

// GetFeeClasses chooses feerates at which to evaluate steady-state and
// transient statistics: weighted quantiles (5%, 10%, ..., 95%) of the
// capacity curve's byterate contribution, each raised to the next multiple of
// feeClassQuantize strictly above it, then refined by bisecting any adjacent pair whose tx byterate gap exceeds
// 10% of the total, until no gap is too large. Classes below stableFeeRate
// are dropped.
func GetFeeClasses(cap *Capacity, txByterates func([]float64) []float64, stableFeeRate float64) []float64 {
	feerates := cap.Feerates[1:]
	if len(feerates) == 0 {
		return nil
	}
	capsDiff := make([]float64, len(feerates))
	for i := range feerates {
		capsDiff[i] = cap.CapLower[i+1] - cap.CapLower[i]
	}

	seen := make(map[int64]bool)
	var feeClasses []float64
	for p := 5; p < 100; p += 5 {
		fc := weightedPercentile(feerates, capsDiff, float64(p)/100)
		quantized := math.Ceil((fc+1)/feeClassQuantize) * feeClassQuantize
		key := int64(quantized)
		if !seen[key] {
			seen[key] = true
			feeClasses = append(feeClasses, quantized)
		}
	}
	sort.Float64s(feeClasses)

	for {
		byterates := txByterates(feeClasses)
		if len(byterates) == 0 {
			break
		}
		byterateThresh := 0.1 * byterates[0]
		var newClasses []float64
		for i := 0; i < len(byterates)-1; i++ {
			diff := byterates[i] - byterates[i+1]
			if diff > byterateThresh {
				feeGap := feeClasses[i+1] - feeClasses[i]
				if feeGap > 1 {
					newClasses = append(newClasses, feeClasses[i]+math.Floor(feeGap/2))
				}
			}
		}
		if len(newClasses) == 0 {
			break
		}
		feeClasses = append(feeClasses, newClasses...)
		sort.Float64s(feeClasses)
	}

	filtered := feeClasses[:0:0]
	for _, fc := range feeClasses {
		if fc >= stableFeeRate {
			filtered = append(filtered, fc)
		}
	}
	return filtered
}
