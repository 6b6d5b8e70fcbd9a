package infra

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"quantsim/internal/analysis"
	"quantsim/internal/execution"
	"quantsim/internal/strategy"
)

// Config carries every setting of the application. It is constructed
// once at startup and passed by reference into the engine, execution
// model and analyzers; there is no hidden global configuration.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Backtest struct {
		InitialCapital float64  `yaml:"initial_capital"`
		Seed           int64    `yaml:"seed"`
		Symbols        []string `yaml:"symbols"`
		StartDate      string   `yaml:"start_date"`
		EndDate        string   `yaml:"end_date"`
		Timeframe      string   `yaml:"timeframe"`
		DataDir        string   `yaml:"data_dir"`
	} `yaml:"backtest"`

	Execution execution.Config         `yaml:"execution"`
	Impact    execution.ImpactConfig   `yaml:"impact"`
	Strategy  strategy.ImbalanceParams `yaml:"strategy"`

	Analysis struct {
		WindowSize     int     `yaml:"window_size"`
		ToxicThreshold float64 `yaml:"toxic_threshold"`
	} `yaml:"analysis"`

	Detector analysis.DetectorConfig `yaml:"detector"`

	Feed struct {
		Enabled     bool     `yaml:"enabled"`
		WSURL       string   `yaml:"ws_url"`
		Symbols     []string `yaml:"symbols"`
		OrderBuffer int      `yaml:"order_buffer"`
		TradeBuffer int      `yaml:"trade_buffer"`
		Overflow    string   `yaml:"overflow"` // block, drop_oldest
	} `yaml:"feed"`

	Storage struct {
		Path string `yaml:"path"` // empty disables persistence
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file, applies
// environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity. Configuration errors are
// fatal; nothing here is silently defaulted.
func (c *Config) Validate() error {
	if c.Backtest.InitialCapital <= 0 {
		return fmt.Errorf("initial capital must be positive")
	}
	if len(c.Backtest.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	if c.Execution.FillProbability < 0 || c.Execution.FillProbability > 1 {
		return fmt.Errorf("fill probability must be in [0, 1]")
	}
	if c.Analysis.WindowSize <= 0 {
		return fmt.Errorf("analysis window size must be positive")
	}
	if c.Detector.WindowSize <= 0 || c.Detector.UpdateFrequency <= 0 {
		return fmt.Errorf("detector window size and update frequency must be positive")
	}

	if c.Feed.Enabled {
		if !strings.HasPrefix(c.Feed.WSURL, "ws://") && !strings.HasPrefix(c.Feed.WSURL, "wss://") {
			return fmt.Errorf("invalid feed WS URL: %s", c.Feed.WSURL)
		}
		switch c.Feed.Overflow {
		case "block", "drop_oldest":
		default:
			return fmt.Errorf("feed overflow must be block or drop_oldest, got %q", c.Feed.Overflow)
		}
		if c.Feed.OrderBuffer <= 0 || c.Feed.TradeBuffer <= 0 {
			return fmt.Errorf("feed buffers must be positive")
		}
	}

	return nil
}

// overrideWithEnv overlays supported environment variables.
func overrideWithEnv(cfg *Config) {
	if url := os.Getenv("QUANTSIM_FEED_WS_URL"); url != "" {
		cfg.Feed.WSURL = url
	}
	if path := os.Getenv("QUANTSIM_DB_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if level := os.Getenv("QUANTSIM_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
