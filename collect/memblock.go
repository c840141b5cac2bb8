package collect

import (
	"sort"

	"github.com/bitcoinfees/feesim/mempool"
	"github.com/shopspring/decimal"
)

// buildMemBlocks derives the per-block mempool snapshots (package mempool's
// MemBlock records) spanned by one poll interval, for persistence to a
// history.DB. It mirrors processBlock's own walk over [prev.Height+1,
// curr.Height], and reuses the same blocks slice processBlock already
// fetched for the interval, so no extra BlockGetter calls are made.
//
// Per entry, Fee and priority are reconstructed from the live MempoolEntry
// view rather than carried through natively, since package collect's
// MempoolEntry interface exposes only FeeRate(), not the underlying fee and
// priority fields. This is an approximation: Fee is recovered from FeeRate
// and Size (introducing satoshi-level rounding), and priority is collapsed
// to zero (what nodes without a priority concept report anyway), which makes
// IsHighPriority's priority-threshold clause a no-op, leaving only its
// below-minrelayfee clause in effect.
func buildMemBlocks(prev, curr *MempoolState, blocks []Block) []*mempool.Block {
	n := curr.Height - prev.Height
	if n <= 0 || int64(len(blocks)) != n {
		return nil
	}
	prev = prev.Copy()

	out := make([]*mempool.Block, 0, n)
	for i, block := range blocks {
		height := prev.Height + int64(i) // pre-block chain tip
		blockTxids := block.Txids()
		sort.Strings(blockTxids)

		entries := make(map[string]*mempool.Entry, len(prev.Entries))
		var cutoff int64
		for txid, entry := range prev.Entries {
			inBlock := stringSliceContains(blockTxids, txid)
			if inBlock && entry.Time() > cutoff {
				cutoff = entry.Time()
			}
			entries[txid] = toMemEntry(entry, height, inBlock)
		}

		mb := &mempool.Block{
			Height:      height,
			BlockHeight: block.Height(),
			BlockSize:   block.Size(),
			Time:        prev.Time,
			Entries:     entries,
		}
		for txid, e := range entries {
			e.LeadTime = prev.Time - cutoff
			if e.InBlock {
				delete(prev.Entries, txid)
			}
			entries[txid] = e
		}
		out = append(out, mb)
	}

	// Conflicts: entries remaining in prev (after removing in-block entries
	// at each step above) that are no longer in curr were evicted by a UTXO
	// conflict rather than confirmed, same as processBlock's own check.
	conflicts := prev.Sub(curr).Entries
	for txid := range conflicts {
		for _, mb := range out {
			if e, ok := mb.Entries[txid]; ok {
				e.IsConflict = true
				e.HasOutcome = true
			}
		}
	}
	for _, mb := range out {
		for _, e := range mb.Entries {
			if e.InBlock {
				e.HasOutcome = true
			}
		}
	}
	return out
}

func toMemEntry(entry MempoolEntry, height int64, inBlock bool) *mempool.Entry {
	size := int64(entry.Size())
	feerate := int64(entry.FeeRate())
	fee := decimal.New(feerate, 0).
		Mul(decimal.New(size, 0)).
		Div(decimal.New(1000*mempool.Coin, 0))
	return &mempool.Entry{
		Size:          size,
		Fee:           fee,
		StartPriority: decimal.Zero,
		CurrPriority:  decimal.Zero,
		Time:          entry.Time(),
		Height:        height,
		Depends:       entry.Depends(),
		InBlock:       inBlock,
	}
}
