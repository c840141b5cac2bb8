// Package poolid maps mined blocks to mining pools via a coinbase
// address/tag registry, and estimates each pool's block-size ceiling,
// minimum-feerate policy and hashrate share.
package poolid

import (
	"log"
	"math/rand"
	"sort"

	"github.com/bitcoinfees/feesim/estimate"
	"github.com/bitcoinfees/feesim/history"
	"github.com/bitcoinfees/feesim/mempool"
	"github.com/bitcoinfees/feesim/sim"
)

// PoolEstimate is a SimPool together with the diagnostics behind its
// min_feerate inference.
type PoolEstimate struct {
	sim.SimPool

	Proportion        float64
	BlockHeights      []int64
	FeeLimitedBlocks  []int64
	SizeLimitedBlocks []int64
	Stats             estimate.SFRStat
	Confidence        estimate.SFRConfidence
}

type mempoolEntryView struct {
	feerate      sim.FeeRate
	size         int64
	inBlock      bool
	highPriority bool
	hasDepends   bool
}

type blockView struct {
	height    int64
	size      int64
	avgTxSize float64
	entries   map[string]*mempoolEntryView
}

func buildEntryViews(b *mempool.Block, minRelayTxFee sim.FeeRate) (map[string]*mempoolEntryView, float64) {
	views := make(map[string]*mempoolEntryView, len(b.Entries))
	var totalSize, numInBlock int64
	for txid, entry := range b.Entries {
		views[txid] = &mempoolEntryView{
			feerate:      entry.FeeRate(),
			size:         entry.Size,
			inBlock:      entry.InBlock,
			highPriority: entry.IsHighPriority(minRelayTxFee),
			hasDepends:   len(entry.Depends) > 0,
		}
		if entry.InBlock {
			totalSize += entry.Size
			numInBlock++
		}
	}
	avgTxSize := 0.0
	if numInBlock > 0 {
		avgTxSize = float64(totalSize) / float64(numInBlock)
	}
	return views, avgTxSize
}

// shortlistTxs builds the SFR input sample from a block's entries: all
// in-block entries, plus out-of-block entries excluding high-priority and
// (when requested) dependency-bearing ones.
func shortlistTxs(entries map[string]*mempoolEntryView, removeDepped bool) estimate.SFRTxSlice {
	var txs estimate.SFRTxSlice
	for _, e := range entries {
		if !e.inBlock {
			if e.highPriority {
				continue
			}
			if removeDepped && e.hasDepends {
				continue
			}
		}
		txs = append(txs, estimate.SFRTx{FeeRate: e.feerate, InBlock: e.inBlock})
	}
	return txs
}

func smallestBlock(blocks []blockView, sizeLimited []int64) blockView {
	sizeSet := make(map[int64]bool, len(sizeLimited))
	for _, h := range sizeLimited {
		sizeSet[h] = true
	}
	var smallest blockView
	found := false
	for _, b := range blocks {
		if !sizeSet[b.height] {
			continue
		}
		if !found || b.size < smallest.size {
			smallest = b
			found = true
		}
	}
	return smallest
}

// estimateParams fits MaxBlockSize and MinFeeRate from the pool's mined
// blocks. It reads each block's pre-block mempool snapshot from db (keyed
// at height-1, the snapshot preceding the block at height) to recover which
// transactions the pool included.
func (p *PoolEstimate) estimateParams(db history.DB, minRelayTxFee sim.FeeRate, numBootstrap int, r *rand.Rand, logger *log.Logger) error {
	var blocks []blockView
	for _, h := range p.BlockHeights {
		snap, err := db.Read(h - 1)
		if err != nil {
			if _, ok := err.(history.HistoryMissingError); ok {
				logger.Printf("poolid: history missing for block %d, skipping", h)
				continue
			}
			return err
		}
		views, avgTxSize := buildEntryViews(snap, minRelayTxFee)
		blocks = append(blocks, blockView{height: h, size: snap.BlockSize, avgTxSize: avgTxSize, entries: views})
		if snap.BlockSize > int64(p.MaxBlockSize) {
			p.MaxBlockSize = sim.TxSize(snap.BlockSize)
		}
	}

	var txs estimate.SFRTxSlice
	for _, b := range blocks {
		if float64(p.MaxBlockSize)-float64(b.size) > b.avgTxSize {
			p.FeeLimitedBlocks = append(p.FeeLimitedBlocks, b.height)
			txs = append(txs, shortlistTxs(b.entries, false)...)
		} else {
			p.SizeLimitedBlocks = append(p.SizeLimitedBlocks, b.height)
		}
	}

	if len(txs) == 0 && len(p.SizeLimitedBlocks) > 0 {
		// All blocks were close to the pool's max size; fall back to the
		// smallest one, with high-priority and dependency-bearing entries
		// removed, per the fee-limited fallback heuristic.
		smallest := smallestBlock(blocks, p.SizeLimitedBlocks)
		txs = shortlistTxs(smallest.entries, true)
	}

	if len(txs) == 0 {
		logger.Printf("poolid: pool %s: no valid transactions", p.Name)
		p.MinFeeRate = sim.MaxFeeRate
		p.Stats = estimate.SFRStat{SFR: sim.MaxFeeRate, AK: -1, AN: -1, BK: -1, BN: -1}
		p.Confidence = estimate.SFRConfidence{Mean: float64(sim.MaxFeeRate), Std: float64(sim.MaxFeeRate)}
		return nil
	}

	p.Stats = txs.StrandingFeeRate(minRelayTxFee)
	p.MinFeeRate = p.Stats.SFR
	p.Confidence = txs.BootstrapConfidence(minRelayTxFee, p.Stats, numBootstrap, r)

	nblocks := len(p.FeeLimitedBlocks) + len(p.SizeLimitedBlocks)
	if nblocks < len(p.BlockHeights) {
		logger.Printf("poolid: pool %s: only %d/%d memblocks found", p.Name, nblocks, len(p.BlockHeights))
	}
	return nil
}

// Estimator identifies the pool of each block in a height range, then
// estimates per-pool parameters and overall block rate.
type Estimator struct {
	Registry      *Registry
	Coinbase      CoinbaseSource
	DB            history.DB
	MinRelayTxFee sim.FeeRate
	NumBootstrap  int
	Rand          *rand.Rand
	Logger        *log.Logger

	blockMap map[int64]string
}

func NewEstimator(registry *Registry, coinbase CoinbaseSource, db history.DB, minRelayTxFee sim.FeeRate, numBootstrap int, r *rand.Rand, logger *log.Logger) *Estimator {
	return &Estimator{
		Registry:      registry,
		Coinbase:      coinbase,
		DB:            db,
		MinRelayTxFee: minRelayTxFee,
		NumBootstrap:  numBootstrap,
		Rand:          r,
		Logger:        logger,
		blockMap:      make(map[int64]string),
	}
}

// Result is the output of a completed pool estimation run.
type Result struct {
	Pools     map[string]*PoolEstimate
	BlockRate float64
}

// SimPools returns the pool set in the form package sim's MultiBlockSource
// consumes.
func (r *Result) SimPools() []sim.SimPool {
	pools := make([]sim.SimPool, 0, len(r.Pools))
	for _, p := range r.Pools {
		pools = append(pools, p.SimPool)
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].Name < pools[j].Name })
	return pools
}

// Start runs the full pipeline over [start, end): identify blocks, estimate
// pool parameters, and estimate the average block interval.
func (e *Estimator) Start(start, end int64) (*Result, error) {
	if err := e.idBlocks(start, end); err != nil {
		return nil, err
	}
	if len(e.blockMap) == 0 {
		return nil, BlockRangeEmptyError{Start: start, End: end}
	}
	pools, err := e.estimatePools()
	if err != nil {
		return nil, err
	}
	interval, err := e.estimateBlockInterval(start, end)
	if err != nil {
		return nil, err
	}
	return &Result{Pools: pools, BlockRate: 1 / interval}, nil
}

func (e *Estimator) idBlocks(start, end int64) error {
	for h := start; h < end; h++ {
		if _, ok := e.blockMap[h]; ok {
			continue
		}
		addrs, tag, err := e.Coinbase.CoinbaseInfo(h)
		if err != nil {
			return err
		}
		name, conflict := e.Registry.identify(addrs, tag)
		if conflict {
			e.Logger.Printf("poolid: more than one pool matched block %d", h)
		}
		if name == "" {
			if len(addrs) == 0 {
				e.Logger.Printf("poolid: unable to identify pool of block %d", h)
				continue
			}
			name = unknownPoolName(addrs[0])
		}
		e.blockMap[h] = name
	}
	for h := range e.blockMap {
		if h < start || h >= end {
			delete(e.blockMap, h)
		}
	}
	return nil
}

func unknownPoolName(addr string) string {
	n := 12
	if len(addr) < n {
		n = len(addr)
	}
	return addr[:n] + "_"
}

func (e *Estimator) estimatePools() (map[string]*PoolEstimate, error) {
	byName := make(map[string][]int64)
	for h, name := range e.blockMap {
		byName[name] = append(byName[name], h)
	}
	total := len(e.blockMap)

	pools := make(map[string]*PoolEstimate, len(byName))
	for name, heights := range byName {
		sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
		proportion := float64(len(heights)) / float64(total)
		pe := &PoolEstimate{
			SimPool: sim.SimPool{
				Name:       name,
				HashRate:   proportion,
				MinFeeRate: sim.MaxFeeRate,
			},
			Proportion:   proportion,
			BlockHeights: heights,
		}
		if err := pe.estimateParams(e.DB, e.MinRelayTxFee, e.NumBootstrap, e.Rand, e.Logger); err != nil {
			return nil, err
		}
		pools[name] = pe
	}
	return pools, nil
}

func (e *Estimator) estimateBlockInterval(start, end int64) (float64, error) {
	last := end - 1
	numIntervals := last - start
	if numIntervals < 1 {
		return 0, BlockRangeEmptyError{Start: start, End: end}
	}
	tStart, err := e.Coinbase.BlockTimestamp(start)
	if err != nil {
		return 0, err
	}
	tEnd, err := e.Coinbase.BlockTimestamp(last)
	if err != nil {
		return 0, err
	}
	if tEnd == tStart {
		return 0, BlockRangeEmptyError{Start: start, End: end}
	}
	return float64(tEnd-tStart) / float64(numIntervals), nil
}
