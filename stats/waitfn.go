package stats

// WaitFn is a monotone-decreasing piecewise-linear function from feerate to
// wait time (either an expected wait or a percentile wait), with a defined
// inverse on its range. Frozen once constructed: a snapshot used by package
// predict to score an observed confirmation wait against what was predicted
// at entry time.
type WaitFn struct {
	Feerates []float64 // ascending
	Waits    []float64 // descending, same length as Feerates
}

func NewWaitFn(feerates, waits []float64) WaitFn {
	return WaitFn{Feerates: feerates, Waits: waits}
}

// Eval returns the expected/percentile wait at feerate, linearly
// interpolated. If feerate is below every recorded feerate, ok is false:
// the wait at that feerate is undefined (it's below the lowest class this
// WaitFn was built with).
func (f WaitFn) Eval(feerate float64) (wait float64, ok bool) {
	if len(f.Feerates) == 0 {
		return 0, false
	}
	y, idx := interpolate(feerate, f.Feerates, f.Waits)
	return y, idx != 0
}

// Inverse returns the feerate at which the expected/percentile wait equals
// wait, linearly interpolated. Since Waits is descending in Feerates, we
// interpolate over the reversed (ascending-wait, descending-feerate) pairs.
func (f WaitFn) Inverse(wait float64) (feerate float64, ok bool) {
	n := len(f.Feerates)
	if n == 0 {
		return 0, false
	}
	waitsAsc := make([]float64, n)
	feeratesDesc := make([]float64, n)
	for i := 0; i < n; i++ {
		waitsAsc[i] = f.Waits[n-1-i]
		feeratesDesc[i] = f.Feerates[n-1-i]
	}
	y, idx := interpolate(wait, waitsAsc, feeratesDesc)
	return y, idx != 0
}
