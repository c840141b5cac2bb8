package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"

	col "github.com/bitcoinfees/feesim/collect"
	"github.com/bitcoinfees/feesim/collect/corerpc"
	est "github.com/bitcoinfees/feesim/estimate"
	"github.com/bitcoinfees/feesim/predict"
	"github.com/bitcoinfees/feesim/stats"
)

// PoolIDConfig drives the per-pool identification pipeline (package
// poolid): the window of recent blocks it identifies over, how much of
// that window must be filled with identified blocks before an estimate is
// published (WindowFillThresh), and the bootstrap resample count used for
// MinFeeRate confidence intervals.
type PoolIDConfig struct {
	RegistryFile     string `yaml:"registryfile" json:"registryfile"`
	Window           int64  `yaml:"window" json:"window"`
	WindowFillThresh float64 `yaml:"windowfillthresh" json:"windowfillthresh"`
	NumBootstrap     int    `yaml:"numbootstrap" json:"numbootstrap"`
}

// HistoryConfig drives the per-block mempool snapshot log (package
// history) that poolid's Estimator reads from.
type HistoryConfig struct {
	DBFile    string `yaml:"dbfile" json:"dbfile"`
	Retention int64  `yaml:"retention" json:"retention"`
}

const (
	defaultConfigFileName = "config.yml"
	configFileEnv         = "FEESIM_CONFIG"
	dataDirEnv            = "FEESIM_DATADIR"
)

var (
	defaultFeeSimConfig = FeeSimConfig{
		Collect: col.Config{
			PollPeriod: 10,
		},
		SteadyState: stats.SteadyStateConfig{
			MinIters: 150,
			MaxIters: 1200,
			MaxTime:  20 * time.Second,
		},
		Transient: stats.TransientConfig{
			NumIters: 10000,
		},
		Predict: predict.Config{
			Halflife: 1008, // 1 week, in units of blocks
		},
		Percentiles:       []float64{0.05, 0.1, 0.15, 0.2, 0.25, 0.3, 0.35, 0.4, 0.45, 0.5, 0.55, 0.6, 0.65, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95},
		StableRatioThresh: 0.9,
		SimPeriod:         60,
		TxMaxAge:          10800, // 3 hours
		TxGapTol:          3600,  // 1 hour
	}
	defaultConfig = config{
		FeeSimConfig: defaultFeeSimConfig,
		MultiTx: est.MultiTxSourceConfig{
			MinWindow: 600,   // 10 minutes
			MaxWindow: 10800, // 3 hours
			Halflife:  3600,  // 1 hour
			MaxTxs:    30000,
		},
		IndBlock: est.IndBlockSourceConfig{
			Window:        2016,
			MinCov:        0.5,
			GuardInterval: 300,
			TailPct:       0.1,
		},
		PoolID: PoolIDConfig{
			Window:           2016,
			WindowFillThresh: 0.9,
			NumBootstrap:     1000,
		},
		History: HistoryConfig{
			Retention: 2016,
		},
		BitcoinRPC: corerpc.Config{
			Host:    "localhost",
			Port:    "8332",
			Timeout: 30,
		},
		AppRPC: AppRPCConfig{
			Host: "localhost",
			Port: "8350",
		},
		DataDir: AppDataDir("feesim", false),
	}
	defaultConfigFile  = filepath.Join(defaultConfig.DataDir, defaultConfigFileName)
	defaultLogFileName = "feesim.log"
)

type config struct {
	FeeSimConfig `yaml:",inline"`
	MultiTx      est.MultiTxSourceConfig  `yaml:"multitx" json:"multitx"`
	IndBlock     est.IndBlockSourceConfig `yaml:"indblock" json:"indblock"`
	PoolID       PoolIDConfig             `yaml:"poolid" json:"poolid"`
	History      HistoryConfig            `yaml:"history" json:"history"`
	BitcoinRPC   corerpc.Config           `yaml:"bitcoinrpc" json:"bitcoinrpc"`
	AppRPC       AppRPCConfig             `yaml:"apprpc" json:"apprpc"`
	DataDir      string                   `yaml:"datadir" json:"datadir"`
	LogFile      string                   `yaml:"logfile" json:"logfile"`
}

type AppRPCConfig struct {
	Host string `json:"host" yaml:"host"`
	Port string `json:"port" yaml:"port"`
}

// loadConfig loads the config. The input arguments specify the path to the
// config file / data directory.
// They can also be specified through env variables (configFileEnv / dataDirEnv),
// with lower precedence.
// If not specified, they are set to default values.
func loadConfig(configFile, dataDir string) (config, error) {
	cfg := defaultConfig

	if configFile == "" {
		configFile = os.Getenv(configFileEnv)
	}
	if dataDir == "" {
		dataDir = os.Getenv(dataDirEnv)
	}

	if configFile != "" {
		// Config file was specified explicitly, so return an error if it
		// couldn't be read.
		if c, err := ioutil.ReadFile(configFile); err != nil {
			return cfg, err
		} else if err := yaml.Unmarshal(c, &cfg); err != nil {
			return cfg, err
		}
	} else {
		// Check the default config file location. No error if it couldn't be
		// read, but error if the yaml could not be unmarshaled.
		if dataDir == "" {
			configFile = defaultConfigFile
		} else {
			configFile = filepath.Join(dataDir, defaultConfigFileName)
		}
		if c, err := ioutil.ReadFile(configFile); err == nil {
			if err := yaml.Unmarshal(c, &cfg); err != nil {
				return cfg, err
			}
		}
	}

	// dataDir specified by env or input argument takes precedence
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(cfg.DataDir, defaultLogFileName)
	}
	if cfg.PoolID.RegistryFile == "" {
		cfg.PoolID.RegistryFile = filepath.Join(cfg.DataDir, "poolregistry.json")
	}
	if cfg.History.DBFile == "" {
		cfg.History.DBFile = filepath.Join(cfg.DataDir, "history.db")
	}

	// Create the datadir if not exists
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return cfg, err
	}

	return cfg, nil
}
