package bolt

import (
	"os"
	"testing"

	"github.com/bitcoinfees/feesim/history"
	"github.com/bitcoinfees/feesim/mempool"
	"github.com/bitcoinfees/feesim/testutil"
	"github.com/shopspring/decimal"
)

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func memBlockFixture(height int64) *mempool.Block {
	return &mempool.Block{
		Height:      height,
		BlockHeight: height + 1,
		BlockSize:   250000 + height,
		Time:        1500000000 + height,
		Entries: map[string]*mempool.Entry{
			"a": {
				Size:          1000,
				Fee:           mustDecimal("0.00015"),
				StartPriority: mustDecimal("57600000.5"),
				CurrPriority:  mustDecimal("12345678.125"),
				Time:          1500000000,
				Height:        height,
				Depends:       nil,
			},
			"b": {
				Size:          500,
				Fee:           mustDecimal("0.00002"),
				StartPriority: mustDecimal("0"),
				CurrPriority:  mustDecimal("0"),
				Time:          1500000001,
				Height:        height,
				Depends:       []string{"a"},
				LeadTime:      120,
				InBlock:       true,
				IsConflict:    false,
				HasOutcome:    true,
			},
		},
	}
}

func checkBlockEqual(t *testing.T, got, want *mempool.Block) {
	t.Helper()
	if got.Height != want.Height || got.BlockHeight != want.BlockHeight ||
		got.BlockSize != want.BlockSize || got.Time != want.Time {
		t.Errorf("block header fields: got %+v, want %+v", got, want)
	}
	if len(got.Entries) != len(want.Entries) {
		t.Fatalf("entries count: got %d, want %d", len(got.Entries), len(want.Entries))
	}
	for txid, we := range want.Entries {
		ge, ok := got.Entries[txid]
		if !ok {
			t.Fatalf("missing entry %s after round-trip", txid)
		}
		if !ge.Fee.Equal(we.Fee) {
			t.Errorf("%s: Fee = %s, want %s", txid, ge.Fee, we.Fee)
		}
		if !ge.StartPriority.Equal(we.StartPriority) {
			t.Errorf("%s: StartPriority = %s, want %s", txid, ge.StartPriority, we.StartPriority)
		}
		if !ge.CurrPriority.Equal(we.CurrPriority) {
			t.Errorf("%s: CurrPriority = %s, want %s", txid, ge.CurrPriority, we.CurrPriority)
		}
		if err := testutil.CheckEqual(ge.Size, we.Size); err != nil {
			t.Error(err)
		}
		if err := testutil.CheckEqual(ge.Depends, we.Depends); err != nil {
			t.Error(err)
		}
		if err := testutil.CheckEqual(ge.LeadTime, we.LeadTime); err != nil {
			t.Error(err)
		}
		if err := testutil.CheckEqual(ge.InBlock, we.InBlock); err != nil {
			t.Error(err)
		}
		if err := testutil.CheckEqual(ge.IsConflict, we.IsConflict); err != nil {
			t.Error(err)
		}
		if err := testutil.CheckEqual(ge.HasOutcome, we.HasOutcome); err != nil {
			t.Error(err)
		}
	}
}

func TestHistoryDB(t *testing.T) {
	const dbfile = "testdata/.history.db"
	os.Remove(dbfile)

	d, err := Load(dbfile)
	if err != nil {
		t.Fatal(err)
	}

	var _ history.DB = d // Test that the interface is satisfied

	// Shouldn't be able to load again while held open.
	_, err = Load(dbfile)
	if err := testutil.CheckEqual(err.Error(), "timeout"); err != nil {
		t.Fatal(err)
	}

	// Close and reopen.
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if d, err = Load(dbfile); err != nil {
		t.Fatal(err)
	}
	defer os.Remove(dbfile)
	defer d.Close()

	// Write a run of blocks, then read each back and check round-trip
	// equality (spec.md §8's Round-trip invariant): decimal fields
	// (Fee/StartPriority/CurrPriority) must survive exactly.
	for h := int64(100); h <= int64(105); h++ {
		if err := d.Write(memBlockFixture(h), 1000); err != nil {
			t.Fatal(err)
		}
	}
	for h := int64(100); h <= int64(105); h++ {
		got, err := d.Read(h)
		if err != nil {
			t.Fatal(err)
		}
		checkBlockEqual(t, got, memBlockFixture(h))
	}

	heights, err := d.ListHeights(100, 105)
	if err != nil {
		t.Fatal(err)
	}
	if err := testutil.CheckEqual(heights, []int64{100, 101, 102, 103, 104, 105}); err != nil {
		t.Error(err)
	}

	// Reading an unwritten height reports HistoryMissingError, not a
	// generic error, so callers can log-and-skip rather than treat it as
	// fatal.
	if _, err := d.Read(999); err == nil {
		t.Fatal("expected HistoryMissingError for unwritten height")
	} else if _, ok := err.(history.HistoryMissingError); !ok {
		t.Errorf("got error of type %T, want history.HistoryMissingError", err)
	}

	// Retention: writing with a tight retention prunes older heights in
	// the same transaction.
	if err := d.Write(memBlockFixture(106), 3); err != nil {
		t.Fatal(err)
	}
	heights, err = d.ListHeights(0, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if err := testutil.CheckEqual(heights, []int64{104, 105, 106}); err != nil {
		t.Error(err)
	}
	if _, err := d.Read(103); err == nil {
		t.Fatal("expected height 103 to have been pruned by retention")
	}
}
