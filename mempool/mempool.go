// Package mempool defines the snapshot data model for mempool entries and
// the per-block records derived from them: MemEntry and MemBlock, per the
// tx-queue model that the estimate and sim packages consume.
package mempool

import (
	"fmt"
	"sort"

	"github.com/bitcoinfees/feesim/sim"
	"github.com/shopspring/decimal"
)

// Coin is the number of satoshis per coin; the node RPC returns fees as
// fractional coin amounts.
const Coin = 100000000

// Entry is an immutable record of one mempool transaction at a snapshot
// moment. LeadTime, InBlock and IsConflict are populated only once the block
// that resolves this entry (by inclusion, conflict, or eviction) has been
// recorded; HasOutcome reports whether that has happened.
type Entry struct {
	Size          int64
	Fee           decimal.Decimal
	StartPriority decimal.Decimal
	CurrPriority  decimal.Decimal
	Time          int64
	Height        int64
	Depends       []string

	LeadTime   int64
	InBlock    bool
	IsConflict bool
	HasOutcome bool
}

// FeeRate returns floor(fee*1000/size) satoshis per kB, computed without
// floating-point rounding error.
func (e *Entry) FeeRate() sim.FeeRate {
	if e.Size <= 0 {
		return 0
	}
	feeSatoshis := e.Fee.Mul(decimal.New(Coin, 0)).Mul(decimal.New(1000, 0))
	q, _ := feeSatoshis.QuoRem(decimal.New(e.Size, 0), 0)
	return sim.FeeRate(q.IntPart())
}

const priorityThresh = 57600000

// IsHighPriority applies the approximate high-priority exclusion rule: a tx
// is treated as high priority (and excluded from fee-policy inference) if
// its current-height priority exceeds the threshold, or if it pays below
// the minimum relay fee rate (free transactions, always relayed regardless
// of miner fee policy). This undercounts true mining priority since it uses
// the node's current-height figure rather than the figure at inclusion time.
func (e *Entry) IsHighPriority(minRelayTxFee sim.FeeRate) bool {
	priorityFloat, _ := e.CurrPriority.Float64()
	return priorityFloat > priorityThresh || e.FeeRate() < minRelayTxFee
}

// Block is a snapshot of the mempool recorded at the moment block B was
// discovered. Height is the pre-block chain tip (B.height - 1).
type Block struct {
	Height      int64
	BlockHeight int64
	BlockSize   int64
	Time        int64
	Entries     map[string]*Entry
}

func (b *Block) String() string {
	return fmt.Sprintf("MemBlock{height: %d, blockheight: %d, entries: %d}",
		b.Height, b.BlockHeight, len(b.Entries))
}

// Validate checks the closure invariant: every id in an entry's Depends set
// must be present in the same snapshot.
func (b *Block) Validate() error {
	for txid, entry := range b.Entries {
		for _, dep := range entry.Depends {
			if _, ok := b.Entries[dep]; !ok {
				return fmt.Errorf("mempool not closed: tx %s depends on missing %s", txid, dep)
			}
		}
	}
	return nil
}

// Simify converts the entries of b into the dependency-graph form that
// package sim consumes, in a canonical (sorted-by-txid) order so that
// results are deterministic given the same snapshot.
func (b *Block) Simify() ([]*sim.Tx, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	txids := make([]string, 0, len(b.Entries))
	for txid := range b.Entries {
		txids = append(txids, txid)
	}
	sort.Strings(txids)

	m := make(map[string]*sim.Tx, len(b.Entries))
	for _, txid := range txids {
		entry := b.Entries[txid]
		m[txid] = &sim.Tx{FeeRate: entry.FeeRate(), Size: sim.TxSize(entry.Size)}
	}
	for _, txid := range txids {
		entry := b.Entries[txid]
		for _, dep := range entry.Depends {
			m[txid].Parents = append(m[txid].Parents, m[dep])
		}
	}
	txs := make([]*sim.Tx, len(txids))
	for i, txid := range txids {
		txs[i] = m[txid]
	}
	return txs, nil
}

// PruneLowFee removes entries with a feerate below thresh, along with all
// of their mempool descendants.
func PruneLowFee(entries map[string]*Entry, thresh sim.FeeRate) {
	children := make(map[string][]string)
	for txid, entry := range entries {
		for _, dep := range entry.Depends {
			children[dep] = append(children[dep], txid)
		}
	}

	var stack []string
	for txid, entry := range entries {
		if entry.FeeRate() >= thresh {
			continue
		}
		stack = append(stack, txid)
		for len(stack) > 0 {
			n := len(stack) - 1
			txid := stack[n]
			stack = stack[:n]
			stack = append(stack, children[txid]...)
			delete(entries, txid)
			delete(children, txid)
		}
	}
}
