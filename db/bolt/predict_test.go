package bolt

import (
	"math"
	"os"
	"testing"

	"github.com/bitcoinfees/feesim/predict"
	"github.com/bitcoinfees/feesim/testutil"
)

func TestPredictDB(t *testing.T) {
	const dbfile = "testdata/.predict.db"
	os.Remove(dbfile)

	d, err := LoadPredictDB(dbfile)
	if err != nil {
		t.Fatal(err)
	}

	var _ predict.DB = d // Test that the interface is satisfied

	// Shouldn't be able to load again
	_, err = LoadPredictDB(dbfile)
	if err := testutil.CheckEqual(err.Error(), "timeout"); err != nil {
		t.Fatal(err)
	}

	// Close and reopen
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if d, err = LoadPredictDB(dbfile); err != nil {
		t.Fatal(err)
	}

	// Put and Get Counts, then overwrite them
	counts := []float64{1, 2, 3, 4}
	if err := d.PutScores(counts); err != nil {
		t.Fatal(err)
	}
	countsGet, err := d.GetScores()
	if err != nil {
		t.Fatal(err)
	}
	if err := testutil.CheckEqual(counts, countsGet); err != nil {
		t.Error(err)
	}
	newCounts := []float64{4, 3, 2, 1}
	if err := d.PutScores(newCounts); err != nil {
		t.Fatal(err)
	}
	newCountsGet, err := d.GetScores()
	if err != nil {
		t.Fatal(err)
	}
	if err := testutil.CheckEqual(newCounts, newCountsGet); err != nil {
		t.Error(err)
	}

	// Put and Get Txs
	txsRef := map[string]predict.Tx{
		"0": predict.Tx{EntryTime: 1, FeeRate: math.MaxInt64},
		"1": predict.Tx{EntryTime: 3, FeeRate: 4},
		"2": predict.Tx{EntryTime: 5, FeeRate: 1},
	}
	if err := d.PutTxs(txsRef); err != nil {
		t.Fatal(err)
	}
	txs, err := d.GetTxs([]string{"0", "2", "3"})
	if err != nil {
		t.Fatal(err)
	}
	for _, txid := range []string{"0", "2"} {
		if err := testutil.CheckEqual(txs[txid], txsRef[txid]); err != nil {
			t.Error(err)
		}
	}
	if err := testutil.CheckEqual(len(txs), 2); err != nil {
		t.Error(err)
	}

	// Reconcile Txs
	if err := d.Reconcile([]string{"1"}); err != nil {
		t.Fatal(err)
	}
	txs, err = d.GetTxs([]string{"0", "1", "2"})
	if err != nil {
		t.Fatal(err)
	}
	if err := testutil.CheckEqual(len(txs), 1); err != nil {
		t.Error(err)
	}
	if err := testutil.CheckEqual(txs["1"], txsRef["1"]); err != nil {
		t.Error(err)
	}

	// Remove dbfile, finally
	if err := os.Remove(dbfile); err != nil {
		t.Fatal(err)
	}
}
