package sim

import (
	"testing"

	"github.com/bitcoinfees/feesim/testutil"
)

// TestMultiBlockSourceHashRateSampling checks that Next() samples pools with
// frequency proportional to hashrate share over many draws.
func TestMultiBlockSourceHashRateSampling(t *testing.T) {
	pools := []SimPool{
		{Name: "A", HashRate: 0.2, MaxBlockSize: 100001, MinFeeRate: 1000},
		{Name: "B", HashRate: 0.3, MaxBlockSize: 100002, MinFeeRate: 1000},
		{Name: "C", HashRate: 0.5, MaxBlockSize: 100003, MinFeeRate: 1000},
	}
	b := NewMultiBlockSource(pools, 600)

	const n = 200000
	counts := map[TxSize]int{}
	for i := 0; i < n; i++ {
		_, p := b.Next()
		counts[p.MaxBlockSize]++
	}

	want := map[TxSize]float64{100001: 0.2, 100002: 0.3, 100003: 0.5}
	for size, wantFreq := range want {
		got := float64(counts[size]) / n
		if err := testutil.CheckPctDiff(got, wantFreq, 0.02); err != nil {
			t.Errorf("pool with MaxBlockSize %d: %v", size, err)
		}
	}
}

// TestMultiBlockSourcePools checks that Pools() normalizes hashrate shares
// (since NewMultiBlockSource accepts unnormalized weights).
func TestMultiBlockSourcePools(t *testing.T) {
	pools := []SimPool{
		{Name: "A", HashRate: 2, MaxBlockSize: 1000, MinFeeRate: 0},
		{Name: "B", HashRate: 3, MaxBlockSize: 2000, MinFeeRate: 0},
	}
	b := NewMultiBlockSource(pools, 600)
	got := b.Pools()
	if err := testutil.CheckEqual(len(got), 2); err != nil {
		t.Fatal(err)
	}
	var byName = map[string]SimPool{}
	for _, p := range got {
		byName[p.Name] = p
	}
	if err := testutil.CheckPctDiff(byName["A"].HashRate, 0.4, 1e-9); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckPctDiff(byName["B"].HashRate, 0.6, 1e-9); err != nil {
		t.Error(err)
	}
}

// TestMultiBlockSourceRateFn checks the cumulative capacity curve: a feerate
// x's capacity is the hashrate-weighted byte rate of every pool willing to
// include a tx at that feerate, strictly increasing as lower-minfeerate
// pools drop in (spec.md §8's Capacity monotonicity invariant).
func TestMultiBlockSourceRateFn(t *testing.T) {
	const blockInterval = 600.0
	pools := []SimPool{
		{Name: "A", HashRate: 0.5, MaxBlockSize: 500000, MinFeeRate: 1000},
		{Name: "B", HashRate: 0.3, MaxBlockSize: 800000, MinFeeRate: 5000},
		{Name: "C", HashRate: 0.2, MaxBlockSize: 1000000, MinFeeRate: 10000},
	}
	b := NewMultiBlockSource(pools, blockInterval)
	fn := b.RateFn()

	capA := 0.5 * 500000 / blockInterval
	capB := 0.3 * 800000 / blockInterval
	capC := 0.2 * 1000000 / blockInterval

	cases := []struct {
		x, want float64
	}{
		{0, 0},
		{500, 0},
		{1000, capA},
		{4999, capA},
		{5000, capA + capB},
		{10000, capA + capB + capC},
		{20000, capA + capB + capC},
	}
	for _, c := range cases {
		got := fn.Eval(c.x)
		if c.want == 0 {
			if got != 0 {
				t.Errorf("Eval(%v) = %v, want 0", c.x, got)
			}
			continue
		}
		if err := testutil.CheckPctDiff(got, c.want, 1e-9); err != nil {
			t.Errorf("Eval(%v): %v", c.x, err)
		}
	}

	// Monotonicity: the curve must never decrease.
	prev := fn.Eval(0)
	for _, x := range []float64{500, 1000, 3000, 5000, 7000, 10000, 50000} {
		cur := fn.Eval(x)
		if cur < prev {
			t.Errorf("RateFn not monotonic: Eval(%v)=%v < prior %v", x, cur, prev)
		}
		prev = cur
	}

	// Derive the full-curve capacity from the function itself rather than a
	// separately summed float, so exact-match Inverse lookups aren't
	// sensitive to summation-order rounding differences.
	total := fn.Eval(10000)
	if got := fn.Inverse(total); got != 10000 {
		t.Errorf("Inverse(%v) = %v, want 10000", total, got)
	}
	if got := fn.Inverse(total + 1); got != float64(MaxFeeRate) {
		t.Errorf("Inverse above max capacity should return MaxFeeRate, got %v", got)
	}
	if got := fn.Inverse(0); got != 0 {
		t.Errorf("Inverse(0) = %v, want 0", got)
	}
}

// TestMultiBlockSourceAllPoolsInfiniteMinFeeRate checks the degenerate case
// where every pool's MinFeeRate is MaxFeeRate: no pool ever includes a tx,
// so the capacity curve collapses to the single point (0, 0).
func TestMultiBlockSourceAllPoolsInfiniteMinFeeRate(t *testing.T) {
	pools := []SimPool{
		{Name: "A", HashRate: 1, MaxBlockSize: 1000000, MinFeeRate: MaxFeeRate},
	}
	b := NewMultiBlockSource(pools, 600)
	fn := b.RateFn()
	if got := fn.Eval(0); got != 0 {
		t.Errorf("Eval(0) = %v, want 0", got)
	}
	if got := fn.Eval(float64(MaxFeeRate)); got != 0 {
		t.Errorf("Eval(MaxFeeRate) = %v, want 0", got)
	}
}

// TestMultiBlockSourceMarshalJSON checks that MarshalJSON normalizes
// hashrate and encodes an infinite MinFeeRate as -1 rather than MaxInt64.
func TestMultiBlockSourceMarshalJSON(t *testing.T) {
	pools := []SimPool{
		{Name: "A", HashRate: 1, MaxBlockSize: 1000, MinFeeRate: 500},
		{Name: "B", HashRate: 1, MaxBlockSize: 2000, MinFeeRate: MaxFeeRate},
	}
	b := NewMultiBlockSource(pools, 600)
	data, err := b.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty JSON")
	}
	// Sanity check the encoded minfeerate sentinel and blockinterval key are
	// both present in the raw output.
	s := string(data)
	if !contains(s, `"minfeerate":-1`) {
		t.Errorf("expected minfeerate:-1 for infinite-minfeerate pool, got %s", s)
	}
	if !contains(s, `"blockinterval":600`) {
		t.Errorf("expected blockinterval:600, got %s", s)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
