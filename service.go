package main

import (
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/rpc"
	jsonrpc "github.com/gorilla/rpc/json"
	"github.com/rcrowley/go-metrics"

	col "github.com/bitcoinfees/feesim/collect"
	"github.com/bitcoinfees/feesim/sim"
	"github.com/bitcoinfees/feesim/stats"
)

type Service struct {
	FeeSim *FeeSim
	DLog   *DebugLog
	Cfg    config
}

func (s *Service) ListenAndServe() error {
	var methods = map[string]string{
		"stop":        "Service.Stop",
		"status":      "Service.Status",
		"estimatefee": "Service.EstimateFee",
		"prediction":  "Service.Prediction",
		"txrate":      "Service.TxRate",
		"caprate":     "Service.CapRate",
		"pools":       "Service.Pools",
		"transient":   "Service.Transient",
		"mempoolsize": "Service.MempoolSize",
		"pause":       "Service.Pause",
		"unpause":     "Service.Unpause",
		"setdebug":    "Service.SetDebug",
		"loglevel":    "Service.LogLevel",
		"config":      "Service.Config",
		"metrics":     "Service.Metrics",
		"blocksource": "Service.BlockSource",
		"txsource":    "Service.TxSource",
		"mempool":     "Service.Mempool",
	}
	srv := rpc.NewServer()
	srv.RegisterCodec(jsonrpc.NewCodec(), "application/json")
	srv.RegisterService(s, "")
	srv.RegisterCustomNames(methods)
	http.Handle("/", srv)
	addr := net.JoinHostPort(s.Cfg.AppRPC.Host, s.Cfg.AppRPC.Port)
	s.DLog.Logger.Println("RPC server listening on", addr)
	return http.ListenAndServe(addr, nil)
}

func (s *Service) Stop(r *http.Request, args *struct{}, reply *struct{}) error {
	go s.FeeSim.Stop()
	return nil
}

func (s *Service) Status(r *http.Request, args *struct{}, reply *map[string]string) error {
	*reply = s.FeeSim.Status()
	return nil
}

// EstimateFee returns the feerate, in BTC/kB (to conform to Bitcoin Core's
// estimatefee API), expected to confirm within args conftime seconds.
func (s *Service) EstimateFee(r *http.Request, args *float64, reply *float64) error {
	if *args <= 0 {
		return fmt.Errorf("conftime_seconds must be > 0")
	}
	feerate, err := s.FeeSim.EstimateFee(*args)
	if err != nil {
		return err
	}
	*reply = float64(feerate) / coin
	return nil
}

func (s *Service) Prediction(r *http.Request, args *struct{}, reply *map[string]interface{}) error {
	counts, err := s.FeeSim.PredictScores()
	if err != nil {
		return err
	}
	*reply = map[string]interface{}{"counts": counts}
	return nil
}

func (s *Service) TxRate(r *http.Request, args *int, reply *sim.MonotonicFn) error {
	n := *args
	if n <= 0 {
		n = 20
	}
	txsource, err := s.FeeSim.TxSource()
	if err != nil {
		return err
	}
	*reply = txsource.RateFn().Approx(n)
	return nil
}

func (s *Service) CapRate(r *http.Request, args *int, reply *sim.MonotonicFn) error {
	n := *args
	if n <= 0 {
		n = 20
	}
	blocksource, err := s.FeeSim.BlockSource()
	if err != nil {
		return err
	}
	*reply = blocksource.RateFn().Approx(n)
	return nil
}

// Pools reports the pool set that the live block source is sampling from,
// when it exposes one (i.e. the poolid-derived sim.MultiBlockSource; the
// legacy IndBlockSource aggregate fallback has no per-pool breakdown to
// report).
func (s *Service) Pools(r *http.Request, args *struct{}, reply *[]sim.SimPool) error {
	blocksource, err := s.FeeSim.BlockSource()
	if err != nil {
		return err
	}
	ps, ok := blocksource.(interface{ Pools() []sim.SimPool })
	if !ok {
		return fmt.Errorf("pool breakdown not available from the current block source")
	}
	*reply = ps.Pools()
	return nil
}

func (s *Service) Transient(r *http.Request, args *struct{}, reply *stats.TransientStats) error {
	result, err := s.FeeSim.Result()
	if err != nil {
		return err
	}
	*reply = *result.Transient
	return nil
}

func (s *Service) MempoolSize(r *http.Request, args *int, reply *sim.MonotonicFn) error {
	n := *args
	if n <= 0 {
		n = 20
	}
	state := s.FeeSim.State()
	if state == nil {
		return fmt.Errorf("mempool not available")
	}
	*reply = state.SizeFn().Approx(n)
	return nil
}

func (s *Service) Pause(r *http.Request, args *struct{}, reply *struct{}) error {
	s.FeeSim.Pause(true)
	return nil
}

func (s *Service) Unpause(r *http.Request, args *struct{}, reply *struct{}) error {
	s.FeeSim.Pause(false)
	return nil
}

func (s *Service) SetDebug(r *http.Request, args *bool, reply *bool) error {
	s.DLog.SetDebug(*args)
	*reply = *args
	return nil
}

// LogLevel replies with the debug logging level, first setting it when args
// has a "debug" key. args is a map so both GET (no "debug" key) and PUT
// (with one) map onto the one RPC method.
func (s *Service) LogLevel(r *http.Request, args *map[string]bool, reply *map[string]bool) error {
	if debug, ok := (*args)["debug"]; ok {
		s.DLog.SetDebug(debug)
	}
	*reply = map[string]bool{"debug": s.DLog.Debug()}
	return nil
}

func (s *Service) Config(r *http.Request, args *struct{}, reply *interface{}) error {
	c := s.Cfg
	// Hide the password just in case
	c.BitcoinRPC.Password = "********"
	*reply = c
	return nil
}

func (s *Service) Metrics(r *http.Request, args *struct{}, reply *metrics.Registry) error {
	*reply = metrics.DefaultRegistry
	return nil
}

func (s *Service) BlockSource(r *http.Request, args *struct{}, reply *sim.BlockSource) error {
	blocksource, err := s.FeeSim.BlockSource()
	if err != nil {
		return err
	}
	*reply = blocksource
	return nil
}

func (s *Service) TxSource(r *http.Request, args *struct{}, reply *sim.TxSource) error {
	txsource, err := s.FeeSim.TxSource()
	if err != nil {
		return err
	}
	*reply = txsource
	return nil
}

func (s *Service) Mempool(r *http.Request, args *struct{}, reply **col.MempoolState) error {
	state := s.FeeSim.State()
	if state == nil {
		return fmt.Errorf("mempool not available")
	}
	*reply = state
	return nil
}
