package main

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"

	col "github.com/bitcoinfees/feesim/collect"
	est "github.com/bitcoinfees/feesim/estimate"
	"github.com/bitcoinfees/feesim/predict"
	"github.com/bitcoinfees/feesim/sim"
	"github.com/bitcoinfees/feesim/stats"
)

var errPause = errors.New("sim is paused")
var errInProgress = errors.New("sim is in progress")
var errShutdown = errors.New("sim is shutting down")
var errNoEstimate = errors.New("no fee estimate available at the requested confirmation time")

type TxDB interface {
	est.TxDB
	col.TxDB
	Delete(start, end int64) error
	Close() error
}

type BlockStatDB interface {
	est.BlockStatDB
	col.BlockStatDB
	Delete(start, end int64) error
	Close() error
}

// Result is one completed simulation round's published snapshot: the
// transient wait-time curves (driving EstimateFee and prediction) and the
// steady-state queue statistics, both computed against the same
// (pools, tx_source) pair frozen at the start of the round.
type Result struct {
	Transient   *stats.TransientStats
	SteadyState *stats.SteadyStateStats
	Percentiles []float64
}

// EstimateFee returns the feerate expected to confirm within conftimeSeconds,
// by inverting the mean wait-time curve. ok is false if conftimeSeconds is
// outside the curve's range.
func (r *Result) EstimateFee(conftimeSeconds float64) (feerate sim.FeeRate, ok bool) {
	wf := r.Transient.MeanWaitFn()
	w, ok := wf.Inverse(conftimeSeconds)
	return sim.FeeRate(w), ok
}

// blockBatch pairs a poll interval's resolved blocks with the mempool-state
// timestamp shared by all of them (the moment they were first observed),
// which is what package predict scores confirmation wait against.
type blockBatch struct {
	blocks []col.Block
	time   int64
}

// FeeSim is the live orchestrator (spec's C9): it drives mempool collection,
// periodic tx/block source re-estimation, the steady-state and transient
// simulation workers, and confirmation-prediction tracking, publishing each
// under a mutex-guarded snapshot slot.
type FeeSim struct {
	result      *Result
	txsource    sim.TxSource
	blocksource sim.BlockSource

	err            error
	errTxSource    error
	errBlockSource error

	collect   *col.Collector
	predictor *predict.Predictor
	txdb      TxDB
	blkdb     BlockStatDB
	predictdb predict.DB
	cfg       FeeSimConfig

	pause chan bool
	done  chan struct{}
	wg    sync.WaitGroup
	mux   sync.RWMutex
}

type FeeSimConfig struct {
	Collect           col.Config              `yaml:"collect" json:"collect"`
	SteadyState       stats.SteadyStateConfig `yaml:"steadystate" json:"steadystate"`
	Transient         stats.TransientConfig   `yaml:"transient" json:"transient"`
	Predict           predict.Config          `yaml:"predict" json:"predict"`
	Percentiles       []float64               `yaml:"percentiles" json:"percentiles"`
	StableRatioThresh float64                 `yaml:"stableratiothresh" json:"stableratiothresh"`
	SimPeriod         int                     `yaml:"simperiod" json:"simperiod"`
	TxMaxAge          int64                   `yaml:"txmaxage" json:"txmaxage"`
	TxGapTol          int64                   `yaml:"txgaptol" json:"txgaptol"`

	estTxSource    est.TxSourceEstimator    `yaml:"-" json:"-"`
	estBlockSource est.BlockSourceEstimator `yaml:"-" json:"-"`
	logger         *log.Logger              `yaml:"-" json:"-"`
}

func NewFeeSim(txdb TxDB, blkdb BlockStatDB, predictdb predict.DB, cfg FeeSimConfig) (*FeeSim, error) {
	cfg.Collect.Logger = cfg.logger
	collect := col.NewCollector(txdb, blkdb, cfg.Collect)

	cfg.Predict.Logger = cfg.logger
	predictor, err := predict.NewPredictor(predictdb, cfg.Predict)
	if err != nil {
		return nil, err
	}

	feesim := &FeeSim{
		collect:   collect,
		predictor: predictor,
		txdb:      txdb,
		blkdb:     blkdb,
		predictdb: predictdb,
		cfg:       cfg,
		pause:     make(chan bool),
		done:      make(chan struct{}),
	}
	return feesim, nil
}

func (s *FeeSim) Run() error {
	logger := s.cfg.logger
	s.wg.Add(1)
	defer logger.Println("Feesim all stopped.")
	defer s.wg.Wait()
	defer s.wg.Done()
	defer s.predictdb.Close()
	defer s.blkdb.Close()
	defer s.txdb.Close()

	logger.Printf("Feesim v%s starting up..", version)
	state, err := s.cfg.Collect.GetState()
	if err != nil {
		return err
	}
	timeNow := state.Time
	heightNow := state.Height

	if err := s.normalizeTxDB(timeNow); err != nil {
		return err
	}
	if err := s.predictor.Cleanup(state); err != nil {
		return err
	}

	if err := s.collect.Run(); err != nil {
		return err
	}
	defer s.collect.Stop()

	// Initial source estimation
	txsource, err := s.cfg.estTxSource(timeNow)
	s.SetTxSource(txsource, err)
	blocksource, err := s.cfg.estBlockSource(heightNow)
	s.SetBlockSource(blocksource, err)

	// Initial result
	s.SetResult(nil, errInProgress)

	s.wg.Add(1)
	go s.loopSim(s.cfg.SimPeriod)

	sc := make(chan *col.MempoolState, 10)
	bc := make(chan blockBatch, 10)
	s.wg.Add(1)
	go s.predictWorker(sc, bc)

	tc := make(chan int64)
	s.wg.Add(1)
	go s.estTxSourceWorker(tc)

	hc := make(chan int64, 10)
	s.wg.Add(1)
	go s.estBlockSourceWorker(hc)

	logger.Println("Feesim startup complete.")
	var lastStateTime int64
	for {
		select {
		case state := <-s.collect.S:
			lastStateTime = state.Time
			// Add predicts
			select {
			case sc <- state:
			default:
				logger.Println("[WARNING] Predictor (state) was busy.")
			}
			// Update the txsource
			select {
			case tc <- state.Time:
			default:
				logger.Println("[WARNING] TxSource estimator was busy.")
			}
		case blocks := <-s.collect.B:
			// Process predicts
			select {
			case bc <- blockBatch{blocks: blocks, time: lastStateTime}:
			default:
				logger.Println("[WARNING] Predictor (blocks) was busy.")
			}
			// Update the blocksource, if the worker is available.
			select {
			case hc <- blocks[len(blocks)-1].Height():
			default:
				logger.Println("[WARNING] BlockSource estimator was busy.")
			}
		case err := <-s.collect.E:
			// Error in collector
			logger.Println("[ERROR] Collector:", err)
		case <-s.done:
			// Terminate
			return nil
		}
	}
}

func (s *FeeSim) Status() map[string]string {
	status := make(map[string]string)

	if _, err := s.TxSource(); err != nil {
		status["txsource"] = err.Error()
	} else {
		status["txsource"] = "OK"
	}

	if _, err := s.BlockSource(); err != nil {
		status["blocksource"] = err.Error()
	} else {
		status["blocksource"] = "OK"
	}

	if _, err := s.Result(); err != nil {
		status["result"] = err.Error()
	} else {
		status["result"] = "OK"
	}

	if state := s.State(); state == nil {
		status["mempool"] = "Mempool state not available."
	} else {
		status["mempool"] = "OK"
	}

	return status
}

func (s *FeeSim) Pause(p bool) {
	s.pause <- p
	if p {
		s.cfg.logger.Println("Sim paused.")
	} else {
		s.cfg.logger.Println("Sim unpaused.")
	}
}

func (s *FeeSim) Stop() {
	s.closeDone()
	s.wg.Wait()
}

func (s *FeeSim) State() *col.MempoolState {
	return s.collect.State()
}

// closeDone closes s.done in a concurrent-safe way.
func (s *FeeSim) closeDone() {
	s.mux.Lock()
	defer s.mux.Unlock()
	select {
	case <-s.done: // Already closed
	default:
		close(s.done)
	}
}

func (s *FeeSim) predictWorker(sc <-chan *col.MempoolState, bc <-chan blockBatch) {
	logger := s.cfg.logger
	defer s.wg.Done()
	defer logger.Println("Predict worker stopped.")

	for {
		select {
		case state := <-sc:
			// state is never nil here.
			result, err := s.Result()
			if err != nil {
				continue
			}
			waitFn := predict.WaitFnPercentileSource(result.Transient)
			if err := s.predictor.AddPredicts(state, waitFn, s.cfg.Percentiles); err != nil {
				logger.Println("[ERROR] AddPredicts:", err)
			}
		case batch := <-bc:
			for _, b := range batch.blocks {
				if err := s.predictor.ProcessBlock(b, batch.time); err != nil {
					logger.Println("[ERROR] Predictor ProcessBlock:", err)
				}
			}
			if state := s.collect.State(); state != nil {
				if err := s.predictor.Cleanup(state); err != nil {
					logger.Println("[ERROR] Predictor Cleanup:", err)
				}
			}
		case <-s.done:
			return
		}
	}
}

func (s *FeeSim) estTxSourceWorker(tc <-chan int64) {
	logger := s.cfg.logger
	defer s.wg.Done()
	defer logger.Println("Tx source worker stopped.")

	var t int64
	for {
		select {
		case t = <-tc:
		case <-s.done:
			return
		}

		txsource, err := s.cfg.estTxSource(t)
		// Log error if it's not TxWindowError
		if _, isWindowErr := err.(est.TxWindowError); err != nil && !isWindowErr {
			logger.Println("[ERROR] estTxSource::", err)
		}

		logger.Println("[DEBUG] TxSource estimate updated.")
		s.SetTxSource(txsource, err)

		// Delete old txs
		if err := s.txdb.Delete(0, t-s.cfg.TxMaxAge); err != nil {
			logger.Println("[ERROR] TxDB delete:", err)
		}
	}
}

func (s *FeeSim) estBlockSourceWorker(hc <-chan int64) {
	logger := s.cfg.logger
	defer s.wg.Done()
	defer logger.Println("Block source worker stopped.")

	var height int64
	for {
		select {
		case height = <-hc:
		case <-s.done:
			return
		}

		blocksource, err := s.cfg.estBlockSource(height)
		// Log error if it's not BlockCoverageError
		if _, isCovErr := err.(est.BlockCoverageError); err != nil && !isCovErr {
			logger.Println("[ERROR] estBlockSourceWorker:", err)
		}

		logger.Printf("[DEBUG] Block %d: BlockSource estimate updated.", height)
		s.SetBlockSource(blocksource, err)
	}
}

// loopSim periodically reruns the steady-state and transient simulations
// from the latest tx/block sources and mempool snapshot, publishing the
// combined Result. Unlike the teacher's cancelable TransientSim, a run is
// not interruptible mid-flight: a pause request takes effect only between
// runs. Since a round typically completes in well under SimPeriod, this
// trades a bounded pause latency for the much simpler synchronous stats
// API (stats.RunSteadyState / stats.RunTransient).
func (s *FeeSim) loopSim(period int) {
	logger := s.cfg.logger
	defer s.wg.Done()
	defer logger.Println("Sim loop stopped.")
	ticker := time.NewTicker(time.Duration(period) * time.Second)
	defer ticker.Stop()

	// Metrics
	names := []string{"sim1", "sim60", "sim1440"}
	sizes := []int{1, 60, 1440}
	simTimers := make([]metrics.Timer, 3)
	for i, size := range sizes {
		h := metrics.NewHistogram(metrics.NewSimpleExpDecaySample(size))
		simTimers[i] = metrics.NewCustomTimer(h, metrics.NewMeter())
		metrics.Register(names[i], simTimers[i])
	}

	paused := false
	for {
		if paused {
			select {
			case p := <-s.pause:
				if !p {
					paused = false
					ticker = time.NewTicker(time.Duration(period) * time.Second)
					s.SetResult(nil, errInProgress)
				}
			case <-s.done:
				s.SetResult(nil, errShutdown)
				return
			}
			continue
		}

		logger.Println("[DEBUG] Sim round started.")
		startTime := time.Now()
		result, err := s.runSim()
		if err != nil {
			s.SetResult(nil, err)
		} else {
			logger.Println("[DEBUG] Sim round complete.")
			for _, m := range simTimers {
				m.UpdateSince(startTime)
			}
			s.SetResult(result, nil)
		}

		select {
		case <-ticker.C:
		case p := <-s.pause:
			if p {
				ticker.Stop()
				paused = true
				s.SetResult(nil, errPause)
			}
		case <-s.done:
			s.SetResult(nil, errShutdown)
			return
		}
	}
}

// runSim drives one steady-state + transient round from the current
// tx/block sources and live mempool. The two sims share the same
// feerate-class grid and stable feerate, derived from the block source's
// capacity curve and the tx source's byterate curve.
func (s *FeeSim) runSim() (*Result, error) {
	logger := s.cfg.logger

	state := s.collect.State()
	if state == nil {
		return nil, errors.New("mempool state not available")
	}
	txsource, err := s.TxSource()
	if err != nil {
		return nil, err
	}
	blocksource, err := s.BlockSource()
	if err != nil {
		return nil, err
	}

	txByterates := func(feerates []float64) []float64 {
		ratefn := txsource.RateFn()
		y := make([]float64, len(feerates))
		for i, f := range feerates {
			y[i] = ratefn.Eval(f)
		}
		return y
	}
	cap := capacityFromRateFn(blocksource.RateFn(), txByterates)
	stableFeeRate := cap.CalcStableFeeRate(s.cfg.StableRatioThresh)
	classes := stats.GetFeeClasses(cap, txByterates, stableFeeRate)
	if len(classes) == 0 {
		return nil, errors.New("no stable feerate classes: mempool capacity is saturated")
	}
	feeClasses := make([]sim.FeeRate, len(classes))
	for i, c := range classes {
		feeClasses[i] = sim.FeeRate(c)
	}

	ssSim := sim.NewSim(txsource, blocksource, nil)
	ss := stats.RunSteadyState(ssSim, classes, s.cfg.SteadyState)

	initmempool, err := col.SimifyMempool(state.Entries)
	if err != nil {
		logger.Println("[ERROR] SimifyMempool:", err)
		return nil, err
	}
	// Trim transactions below the stable feerate: they will not affect the
	// wait-time curve of any published feerate class, and dropping them
	// keeps the transient sim's initial mempool small. Parents are cleared
	// on the kept txs, same as the teacher's cutoff trim, to avoid dangling
	// deps (sim.NewSim ignores mempool CPFP regardless).
	var trimmed []*sim.Tx
	for _, tx := range initmempool {
		if tx.FeeRate >= sim.FeeRate(stableFeeRate) {
			tx.Parents = tx.Parents[:0]
			trimmed = append(trimmed, tx)
		}
	}
	tSim := sim.NewSim(txsource, blocksource, trimmed)
	ts := stats.RunTransient(tSim, feeClasses, s.cfg.Transient)

	return &Result{Transient: ts, SteadyState: ss, Percentiles: s.cfg.Percentiles}, nil
}

// capacityFromRateFn rebuilds a stats.Capacity directly from a block
// source's aggregate capacity curve, via the (x, y) points its MarshalJSON
// already exposes (the same points service.go's caprate API resource
// returns). This lets runSim build a Capacity uniformly whether the live
// block source is the per-pool sim.MultiBlockSource or the legacy
// est.IndBlockSourceSMFR aggregate fallback, without either needing to
// expose its own SimPool list.
func capacityFromRateFn(capfn sim.MonotonicFn, txByterates func([]float64) []float64) *stats.Capacity {
	var x, y []float64
	if b, err := capfn.MarshalJSON(); err == nil {
		var v struct {
			X []float64 `json:"x"`
			Y []float64 `json:"y"`
		}
		if json.Unmarshal(b, &v) == nil {
			x, y = v.X, v.Y
		}
	}
	if len(x) == 0 || x[0] != 0 {
		x = append([]float64{0}, x...)
		y = append([]float64{0}, y...)
	}
	capUpper := make([]float64, len(x))
	for i := range x {
		if i > 0 {
			capUpper[i] = y[i-1]
		}
	}
	return &stats.Capacity{
		Feerates:    x,
		TxByterates: txByterates(x),
		CapLower:    y,
		CapUpper:    capUpper,
	}
}

func (s *FeeSim) IsPaused() bool {
	_, err := s.Result()
	if err == errPause {
		return true
	}
	return false
}

func (s *FeeSim) Result() (*Result, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.result, s.err
}

func (s *FeeSim) SetResult(result *Result, err error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.result, s.err = result, err
}

// EstimateFee returns the feerate (satoshis/kB) expected to confirm within
// conftimeSeconds.
func (s *FeeSim) EstimateFee(conftimeSeconds float64) (sim.FeeRate, error) {
	result, err := s.Result()
	if err != nil {
		return 0, err
	}
	fr, ok := result.EstimateFee(conftimeSeconds)
	if !ok {
		return 0, errNoEstimate
	}
	return fr, nil
}

func (s *FeeSim) PredictScores() ([]float64, error) {
	return s.predictor.GetScores()
}

func (s *FeeSim) BlockSource() (sim.BlockSource, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.blocksource, s.errBlockSource
}

func (s *FeeSim) SetBlockSource(b sim.BlockSource, err error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.blocksource, s.errBlockSource = b, err
}

func (s *FeeSim) TxSource() (sim.TxSource, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.txsource, s.errTxSource
}

func (s *FeeSim) SetTxSource(t sim.TxSource, err error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.txsource, s.errTxSource = t, err
}

func (s *FeeSim) normalizeTxDB(timeNow int64) error {
	txs, err := s.txdb.Get(timeNow-s.cfg.TxMaxAge, timeNow)
	if err != nil {
		return err
	}
	if err := s.txdb.Delete(0, math.MaxInt64); err != nil {
		return err
	}
	if len(txs) == 0 || txs[len(txs)-1].Time < timeNow-s.cfg.TxGapTol {
		s.cfg.logger.Println("TxDB outdated / empty; starting from scratch.")
		return nil
	}
	s.cfg.logger.Println("Normalizing TxDB.")
	d := timeNow - txs[len(txs)-1].Time
	for i := range txs {
		txs[i].Time += d
	}
	return s.txdb.Put(txs)
}
