package stats

import (
	"time"

	"github.com/bitcoinfees/feesim/sim"
)

// SteadyStateConfig bounds a steady-state simulation run.
type SteadyStateConfig struct {
	MinIters int `yaml:"miniters" json:"miniters"`
	MaxIters int `yaml:"maxiters" json:"maxiters"`
	MaxTime  time.Duration `yaml:"maxtime" json:"maxtime"`
}

// SteadyStateStats is the result of driving a simulator, started from an
// empty mempool, for enough blocks to reach its long-run queueing behavior.
type SteadyStateStats struct {
	Queue         *QueueStats
	NumIters      int
	TimeSpent     time.Duration
	StableFeeRate sim.FeeRate
}

// RunSteadyState drives s (which should be constructed with a nil/empty
// initial mempool) through successive blocks, stopping once MaxIters is
// reached, or once MinIters has been reached and MaxTime has elapsed.
func RunSteadyState(s *sim.Sim, feeClasses []float64, cfg SteadyStateConfig) *SteadyStateStats {
	qs := NewQueueStats(feeClasses)
	var elapsed time.Duration
	i := 0
	for ; i < cfg.MaxIters; i++ {
		sfr, _, interval := s.NextBlockTimed()
		elapsed += interval
		qs.NextBlock(interval.Seconds(), sfr)
		if i+1 >= cfg.MinIters && elapsed >= cfg.MaxTime {
			i++
			break
		}
	}
	return &SteadyStateStats{
		Queue:         qs,
		NumIters:      i,
		TimeSpent:     elapsed,
		StableFeeRate: s.StableFee(),
	}
}
