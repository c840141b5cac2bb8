package stats

import "github.com/bitcoinfees/feesim/sim"

// QueueClass tracks the renewal-style confirmation behavior of a single
// feerate class across a sequence of blocks: the wait time until
// confirmation, the fraction of blocks in which a tx at this feerate would
// be stranded (not yet confirmed), and the length of consecutive stranded
// runs.
type QueueClass struct {
	FeeRate sim.FeeRate

	currentWait  float64
	runLength    int
	waits        DataSample
	strandedRuns DataSample
	numBlocks    int
	numStranded  int
}

func newQueueClass(feerate sim.FeeRate) *QueueClass {
	return &QueueClass{FeeRate: feerate}
}

// NextBlock records the outcome of one block for this class: interval is
// the time since the previous block, and sfr is that block's stranding
// feerate. A tx at FeeRate confirms in this block iff FeeRate >= sfr.
func (q *QueueClass) NextBlock(interval float64, sfr sim.FeeRate) {
	q.numBlocks++
	if q.FeeRate < sfr {
		q.currentWait += interval
		q.runLength++
		q.numStranded++
		return
	}
	// Confirmed. A tx entering uniformly within this block's interval
	// contributes, in expectation, half of it to the wait.
	q.waits.Add(q.currentWait + interval/2)
	if q.runLength > 0 {
		q.strandedRuns.Add(float64(q.runLength))
	}
	q.currentWait = 0
	q.runLength = 0
}

// AvgWait is the mean wait time to confirmation observed for this class.
func (q *QueueClass) AvgWait() float64 { return q.waits.Mean() }

// StrandedProportion is the fraction of blocks in which this class's tx
// would not yet have confirmed.
func (q *QueueClass) StrandedProportion() float64 {
	if q.numBlocks == 0 {
		return 0
	}
	return float64(q.numStranded) / float64(q.numBlocks)
}

// AvgStrandedBlocks is the mean length of a consecutive stranded run for
// this class (0 if the class never stranded).
func (q *QueueClass) AvgStrandedBlocks() float64 { return q.strandedRuns.Mean() }

// QueueStats aggregates QueueClass statistics over a fixed set of feerate
// classes, fed one block at a time.
type QueueStats struct {
	Classes []*QueueClass
}

func NewQueueStats(feeClasses []float64) *QueueStats {
	classes := make([]*QueueClass, len(feeClasses))
	for i, f := range feeClasses {
		classes[i] = newQueueClass(sim.FeeRate(f))
	}
	return &QueueStats{Classes: classes}
}

func (qs *QueueStats) NextBlock(interval float64, sfr sim.FeeRate) {
	for _, qc := range qs.Classes {
		qc.NextBlock(interval, sfr)
	}
}
