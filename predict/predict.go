// Package predict validates the sim models by tracking individual mempool
// transactions from entry to confirmation (or eviction), scoring each one
// against the wait-time distribution predicted for it at entry time.
package predict

import (
	"log"
	"math"
	"os"

	col "github.com/bitcoinfees/feesim/collect"
	"github.com/bitcoinfees/feesim/stats"
)

// Tx is a tracked prediction: the percentile/wait curve observed for this
// tx's feerate at the moment it entered the mempool, frozen so that its
// eventual confirmation wait can be scored against what was predicted.
type Tx struct {
	EntryTime   int64     `json:"entrytime"`
	FeeRate     float64   `json:"feerate"`
	Waits       []float64 `json:"waits"`       // ascending, at Percentiles[i]
	Percentiles []float64 `json:"percentiles"` // ascending, in (0,1)
}

// pval returns 1 - CDF(observedWait): the fraction of historical outcomes
// at this tx's feerate that would have waited at least as long. A tx that
// confirms right on schedule scores near 0.5; one that confirms far faster
// than predicted scores near 1; one that waits much longer scores near 0.
func (tx Tx) pval(observedWait float64) float64 {
	if len(tx.Waits) == 0 {
		return 0.5
	}
	cdf, idx := interpolateAsc(observedWait, tx.Waits, tx.Percentiles)
	if idx == 0 {
		return 1
	}
	return 1 - cdf
}

// interpolateAsc linearly interpolates y=f(x) with both x and y ascending.
func interpolateAsc(x0 float64, x, y []float64) (y0 float64, idx int) {
	n := len(x)
	idx = n
	for i, xi := range x {
		if xi > x0 {
			idx = i
			break
		}
	}
	switch {
	case idx == n:
		return y[n-1], idx
	case idx == 0:
		return y[0], idx
	default:
		xf, yf := x[idx], y[idx]
		xb, yb := x[idx-1], y[idx-1]
		return yb + (x0-xb)/(xf-xb)*(yf-yb), idx
	}
}

// DB persists tracked txs and the decaying pval score histogram.
type DB interface {
	// GetTxs returns only those txids which were previously Put.
	GetTxs(txids []string) (map[string]Tx, error)
	PutTxs(txs map[string]Tx) error

	// GetScores returns the pval histogram: numPvalBuckets counts, bucket i
	// covering pval in [i/numPvalBuckets, (i+1)/numPvalBuckets).
	GetScores() (counts []float64, err error)
	PutScores(counts []float64) error

	Reconcile(txids []string) error
	Close() error
}

const numPvalBuckets = 10

type Config struct {
	Halflife float64 `yaml:"halflife" json:"halflife"` // in number of blocks

	Logger *log.Logger `yaml:"-" json:"-"`
}

// Predictor implements the Untracked -> Tracked -> {Confirmed, Evicted}
// lifecycle: AddPredicts tracks newly-seen, non-high-priority,
// dependency-free mempool entries; ProcessBlock scores and removes those
// that confirmed; Cleanup reconciles away those evicted without confirming.
type Predictor struct {
	db    DB
	cfg   Config
	decay float64
	state *col.MempoolState
}

func NewPredictor(db DB, cfg Config) (*Predictor, error) {
	counts, err := db.GetScores()
	if err != nil {
		return nil, err
	}
	if d := numPvalBuckets - len(counts); d > 0 {
		counts = append(counts, make([]float64, d)...)
	} else {
		counts = counts[:numPvalBuckets]
	}
	if err := db.PutScores(counts); err != nil {
		return nil, err
	}
	return &Predictor{
		db:    db,
		cfg:   cfg,
		decay: math.Pow(0.5, 1/cfg.Halflife),
	}, nil
}

func (p *Predictor) logger() *log.Logger {
	if p.cfg.Logger != nil {
		return p.cfg.Logger
	}
	return log.New(os.Stderr, "", log.LstdFlags)
}

// AddPredicts tracks every entry newly present in s (relative to the
// previous state passed to AddPredicts), building its predicted wait-time
// curve from waitFn at the given percentiles.
func (p *Predictor) AddPredicts(s *col.MempoolState, waitFn func(feerate, percentile float64) float64, percentiles []float64) error {
	defer func() { p.state = s }()
	if p.state == nil {
		return nil
	}

	d := s.Sub(p.state)
	predictTxs := make(map[string]Tx)
	for txid, entry := range d.Entries {
		if len(entry.Depends()) > 0 || entry.IsHighPriority() {
			// Don't predict for high priority txs or for txs with mempool
			// dependencies. Priority inclusion is getting deprecated in
			// Bitcoin Core, though..
			continue
		}
		feerate := float64(entry.FeeRate())
		waits := make([]float64, len(percentiles))
		for i, pct := range percentiles {
			waits[i] = waitFn(feerate, pct)
		}
		predictTxs[txid] = Tx{
			EntryTime:   entry.Time(),
			FeeRate:     feerate,
			Waits:       waits,
			Percentiles: percentiles,
		}
	}
	p.logger().Printf("[DEBUG] Predictor: %d predicts added.", len(predictTxs))
	return p.db.PutTxs(predictTxs)
}

// ProcessBlock scores every tracked tx confirmed in b against its predicted
// wait curve, feeding the resulting pval into the decaying histogram.
func (p *Predictor) ProcessBlock(b col.Block, blockTime int64) error {
	txids := b.Txids()
	tracked, err := p.db.GetTxs(txids)
	if err != nil {
		return err
	}
	counts, err := p.db.GetScores()
	if err != nil {
		return err
	}
	for i := range counts {
		counts[i] *= p.decay
	}
	for _, tx := range tracked {
		wait := float64(blockTime - tx.EntryTime)
		if wait < 0 {
			wait = 0
		}
		pv := tx.pval(wait)
		bucket := int(pv * numPvalBuckets)
		if bucket >= numPvalBuckets {
			bucket = numPvalBuckets - 1
		}
		if bucket < 0 {
			bucket = 0
		}
		counts[bucket]++
	}
	p.logger().Printf("[DEBUG] Predictor: %d predicts tallied.", len(tracked))
	return p.db.PutScores(counts)
}

// Cleanup reconciles the tracked-tx set against the live mempool: txids no
// longer present and not accounted for by ProcessBlock were evicted rather
// than confirmed, and are dropped without scoring.
func (p *Predictor) Cleanup(s *col.MempoolState) error {
	txids := make([]string, 0, len(s.Entries))
	for txid := range s.Entries {
		txids = append(txids, txid)
	}
	return p.db.Reconcile(txids)
}

// GetScores returns the current decayed pval histogram.
func (p *Predictor) GetScores() ([]float64, error) {
	return p.db.GetScores()
}

// WaitFnPercentileSource adapts a stats.TransientStats into the
// (feerate, percentile) -> wait lookup AddPredicts needs.
func WaitFnPercentileSource(ts *stats.TransientStats) func(feerate, percentile float64) float64 {
	return func(feerate, percentile float64) float64 {
		wf := ts.PercentileWaitFn(percentile)
		wait, _ := wf.Eval(feerate)
		return wait
	}
}
