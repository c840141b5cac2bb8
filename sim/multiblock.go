package sim

import (
	"encoding/json"
	"math/rand"
	"sort"
	"time"
)

// A named mining pool, characterized by its share of total network hashrate
// and the block template policy it applies: a maximum block size and a
// minimum fee rate below which it won't include a transaction. HashRate is
// relative; it need not sum to 1 across a SimPools set, since NewMultiBlockSource
// normalizes it.
type SimPool struct {
	Name         string
	HashRate     float64
	MaxBlockSize TxSize
	MinFeeRate   FeeRate
}

// MultiBlockSource implements BlockSource by sampling a pool proportionally to
// its hashrate share for every block, and applying that pool's own
// (MaxBlockSize, MinFeeRate) jointly, rather than drawing the two
// independently as IndBlockSource does. BlockInterval is the average time, in
// seconds, between blocks at the reference total hashrate (600 for Bitcoin).
// Not concurrent-safe; use Copy for parallel runs.
type MultiBlockSource struct {
	pools         []SimPool
	index         []float64 // cumulative normalized hashrate, for sampling
	totalHashRate float64
	blockInterval float64
	rand          *rand.Rand
}

func NewMultiBlockSource(pools []SimPool, blockInterval float64) *MultiBlockSource {
	if len(pools) == 0 {
		panic("pools must be nonempty")
	}
	if blockInterval <= 0 {
		panic("blockInterval must be > 0")
	}
	var total float64
	for _, p := range pools {
		if p.HashRate <= 0 {
			panic("pool hashrate must be positive")
		}
		total += p.HashRate
	}
	index := make([]float64, len(pools))
	var cum float64
	for i, p := range pools {
		cum += p.HashRate
		index[i] = cum / total
	}
	return &MultiBlockSource{
		pools:         pools,
		index:         index,
		totalHashRate: total,
		blockInterval: blockInterval,
		rand:          getrand(1)[0],
	}
}

func (b *MultiBlockSource) Next() (t time.Duration, p BlockPolicy) {
	blockrate := b.totalHashRate / b.blockInterval
	t = time.Duration(b.rand.ExpFloat64() / blockrate * float64(time.Second))
	x := b.rand.Float64()
	pos := searchFloat64s(b.index, x)
	pool := b.pools[pos]
	p.MaxBlockSize, p.MinFeeRate = pool.MaxBlockSize, pool.MinFeeRate
	return
}

// Pools returns the pool set this source was constructed with, normalized
// hashrate included, for callers that need it directly (feeclass selection,
// the pools HTTP resource) rather than through RateFn's aggregate curve.
func (b *MultiBlockSource) Pools() []SimPool {
	pools := make([]SimPool, len(b.pools))
	for i, p := range b.pools {
		p.HashRate = p.HashRate / b.totalHashRate
		pools[i] = p
	}
	return pools
}

// BlockInterval is the average inter-block time, in seconds, at this
// source's total hashrate.
func (b *MultiBlockSource) BlockInterval() float64 {
	return b.blockInterval
}

func (b *MultiBlockSource) Copy(n int) []BlockSource {
	bb := make([]BlockSource, n)
	r := getrand(n + 1)
	for i := range bb {
		bb[i] = &MultiBlockSource{
			pools:         b.pools,
			index:         b.index,
			totalHashRate: b.totalHashRate,
			blockInterval: b.blockInterval,
			rand:          r[i+1],
		}
	}
	return bb
}

// RateFn returns the cumulative capacity byte rate: for feerate x, the sum
// over pools with MinFeeRate <= x of hashrate-weighted (MaxBlockSize /
// BlockInterval). Pools with MinFeeRate == MaxFeeRate never include any tx
// and are dropped from the curve, matching the "only inf minfeerate" edge
// case where the resulting capacity curve is the single point (0, 0).
func (b *MultiBlockSource) RateFn() MonotonicFn {
	m := make(map[float64]float64)
	for _, p := range b.pools {
		if p.MinFeeRate >= MaxFeeRate {
			continue
		}
		m[float64(p.MinFeeRate)] += p.HashRate / b.totalHashRate * float64(p.MaxBlockSize) / b.blockInterval
	}
	x := []float64{0}
	for k := range m {
		x = append(x, k)
	}
	sort.Float64s(x[1:])
	y := make([]float64, len(x))
	var cum float64
	for i, xi := range x {
		if i > 0 {
			cum += m[xi]
		}
		y[i] = cum
	}
	return NewCapRateFn(x, y)
}

func (b *MultiBlockSource) MarshalJSON() ([]byte, error) {
	type poolJSON struct {
		Name         string  `json:"name"`
		HashRate     float64 `json:"hashrate"`
		MaxBlockSize int64   `json:"maxblocksize"`
		MinFeeRate   float64 `json:"minfeerate"`
	}
	pools := make([]poolJSON, len(b.pools))
	for i, p := range b.pools {
		minfeerate := float64(p.MinFeeRate)
		if p.MinFeeRate >= MaxFeeRate {
			minfeerate = -1
		}
		pools[i] = poolJSON{p.Name, p.HashRate / b.totalHashRate, int64(p.MaxBlockSize), minfeerate}
	}
	v := make(map[string]interface{})
	v["pools"] = pools
	v["blockinterval"] = b.blockInterval
	v["type"] = "MultiBlockSource"
	return json.Marshal(v)
}
