package stats

import (
	"testing"

	"github.com/bitcoinfees/feesim/sim"
	"github.com/bitcoinfees/feesim/testutil"
)

func TestQueueStatsNextBlock(t *testing.T) {
	qs := NewQueueStats([]float64{1000, 5000})
	if err := testutil.CheckEqual(len(qs.Classes), 2); err != nil {
		t.Fatal(err)
	}

	// Block 1: sfr=2000, interval=600. The 1000 class is stranded, the
	// 5000 class confirms.
	qs.NextBlock(600, 2000)
	// Block 2: sfr=500, interval=600. Both classes confirm.
	qs.NextBlock(600, 500)

	low, high := qs.Classes[0], qs.Classes[1]
	if err := testutil.CheckEqual(low.FeeRate, sim.FeeRate(1000)); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(high.FeeRate, sim.FeeRate(5000)); err != nil {
		t.Error(err)
	}

	// low stranded for block 1, confirmed on block 2 after waiting
	// 600 (block 1's full interval) + 300 (half of block 2's interval).
	if err := testutil.CheckEqual(low.AvgWait(), 900.0); err != nil {
		t.Error(err)
	}
	// high confirmed immediately each time, waiting half an interval.
	if err := testutil.CheckEqual(high.AvgWait(), 300.0); err != nil {
		t.Error(err)
	}

	if err := testutil.CheckEqual(low.StrandedProportion(), 0.5); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(high.StrandedProportion(), 0.0); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(low.AvgStrandedBlocks(), 1.0); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(high.AvgStrandedBlocks(), 0.0); err != nil {
		t.Error(err)
	}

	// A higher feerate class can never wait longer than a lower one, since
	// it always confirms whenever the lower one does.
	if high.AvgWait() > low.AvgWait() {
		t.Error("higher feerate class should not wait longer than a lower one")
	}
}

func TestQueueStatsNoBlocks(t *testing.T) {
	qs := NewQueueStats([]float64{1000})
	c := qs.Classes[0]
	if err := testutil.CheckEqual(c.StrandedProportion(), 0.0); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(c.AvgWait(), 0.0); err != nil {
		t.Error(err)
	}
}
