package stats

import (
	"runtime"
	"sync"
	"time"

	"github.com/bitcoinfees/feesim/sim"
)

// TransientConfig bounds a transient simulation run: a fixed number of
// iterations, each started from the same (caller-supplied) initial
// mempool, run until every feerate class has confirmed at least once.
type TransientConfig struct {
	NumIters int `yaml:"numiters" json:"numiters"`
}

// TransientStats is the result of a transient simulation: the observed
// wait-time distribution per feerate class, plus the WaitFn snapshots
// (mean and percentile) that package predict scores future waits against.
type TransientStats struct {
	FeeRates      []sim.FeeRate
	Waits         []DataSample
	StableFeeRate sim.FeeRate
}

// MeanWaitFn returns the expected-wait WaitFn built from this run. Waits
// decrease as feerate increases, so with FeeRates ascending (as RunTransient
// requires), the per-class means are already in the descending order
// NewWaitFn expects.
func (ts *TransientStats) MeanWaitFn() WaitFn {
	feerates := make([]float64, len(ts.FeeRates))
	waits := make([]float64, len(ts.FeeRates))
	for i, f := range ts.FeeRates {
		feerates[i] = float64(f)
		waits[i] = ts.Waits[i].Mean()
	}
	return NewWaitFn(feerates, waits)
}

// PercentileWaitFn returns the p-th percentile wait-time WaitFn.
func (ts *TransientStats) PercentileWaitFn(p float64) WaitFn {
	feerates := make([]float64, len(ts.FeeRates))
	waits := make([]float64, len(ts.FeeRates))
	for i, f := range ts.FeeRates {
		feerates[i] = float64(f)
		waits[i] = ts.Waits[i].Percentile(p)
	}
	return NewWaitFn(feerates, waits)
}

// RunTransient drives NumIters independent copies of s (which should be
// constructed with the current live mempool as its initial state) from
// entry to confirmation of every class in feeClasses (ascending), fanning
// out across GOMAXPROCS goroutines the way the block-confirmation transient
// sim does.
func RunTransient(s *sim.Sim, feeClasses []sim.FeeRate, cfg TransientConfig) *TransientStats {
	numprocs := runtime.GOMAXPROCS(0)
	if numprocs > cfg.NumIters {
		numprocs = cfg.NumIters
	}
	if numprocs < 1 {
		numprocs = 1
	}

	ss := s.Copy(numprocs - 1)
	ss = append(ss, s)

	vc := make(chan []float64, numprocs)
	var wg sync.WaitGroup
	wg.Add(numprocs)
	for i, sc := range ss {
		n := cfg.NumIters / numprocs
		if i == 0 {
			n += cfg.NumIters % numprocs
		}
		go transientIter(sc, feeClasses, n, vc, &wg)
	}

	go func() {
		wg.Wait()
		close(vc)
	}()

	waits := make([]DataSample, len(feeClasses))
	for v := range vc {
		for i, w := range v {
			waits[i].Add(w)
		}
	}

	return &TransientStats{
		FeeRates:      feeClasses,
		Waits:         waits,
		StableFeeRate: s.StableFee(),
	}
}

// transientIter runs n independent trials on s, each sending the
// per-feeclass wait-to-confirmation (seconds) on vc.
func transientIter(s *sim.Sim, feeClasses []sim.FeeRate, n int, vc chan<- []float64, wg *sync.WaitGroup) {
	defer wg.Done()
	stranded := make(map[int]bool, len(feeClasses))
	for iter := 0; iter < n; iter++ {
		result := make([]float64, len(feeClasses))
		for i := range feeClasses {
			stranded[i] = true
		}
		var simtime time.Duration
		for len(stranded) > 0 {
			sfr, _, interval := s.NextBlockTimed()
			simtime += interval
			for i, f := range feeClasses {
				if stranded[i] && f >= sfr {
					result[i] = simtime.Seconds()
					delete(stranded, i)
				}
			}
		}
		vc <- result
		s.Reset()
	}
}
