// Package stats implements the steady-state and transient statistics
// pipelines: per-feerate-class queueing statistics derived from simulator
// output, plus the capacity/feerate-class selection machinery that chooses
// which feerates to evaluate them at.
package stats

import (
	"math"
	"sort"
)

// interpolate performs linear interpolation of y = f(x) at x0, where x is
// assumed sorted ascending. idx is the index of the first point of x above
// x0: it is 0 when x0 is below every point in x (the returned value is then
// simply y[0], and the caller decides whether that's meaningful), and len(x)
// when x0 is at or above the last point (the returned value is then y[len-1]).
func interpolate(x0 float64, x, y []float64) (y0 float64, idx int) {
	idx = sort.Search(len(x), func(i int) bool { return x[i] > x0 })
	switch {
	case idx == len(x):
		return y[len(y)-1], idx
	case idx == 0:
		return y[0], idx
	default:
		xf, yf := x[idx], y[idx]
		xb, yb := x[idx-1], y[idx-1]
		return yb + (x0-xb)/(xf-xb)*(yf-yb), idx
	}
}

// percentileSorted returns the p-th percentile (p in [0,1]) of sorted
// ascending data, unweighted.
func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	i := int(math.Ceil(p*float64(n))) - 1
	if i < 0 {
		i = 0
	}
	if i >= n {
		i = n - 1
	}
	return sorted[i]
}

// weightedPercentile returns the p-th weighted percentile of sortedX
// (ascending), where weights[i] is the weight of sortedX[i].
func weightedPercentile(sortedX, weights []float64, p float64) float64 {
	var total float64
	for _, w := range weights {
		total += w
	}
	target := total * p
	var cum float64
	for i, x := range sortedX {
		cum += weights[i]
		if cum >= target {
			return x
		}
	}
	return sortedX[len(sortedX)-1]
}
