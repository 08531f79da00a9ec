package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// Server configures the HTTP surface and logging.
type Server struct {
	Addr             string        `mapstructure:"addr"`
	MaxSolveDuration time.Duration `mapstructure:"max_solve_duration"`
	DeadlineSlack    time.Duration `mapstructure:"deadline_slack"`
	LogLevel         string        `mapstructure:"log_level"`
	LogJSON          bool          `mapstructure:"log_json"`
}

// Solver configures the solve loop.
type Solver struct {
	ConcurrentRequests  int    `mapstructure:"concurrent_requests"`
	SmallestPartialFill string `mapstructure:"smallest_partial_fill"`
	PreferFullFill      bool   `mapstructure:"prefer_full_fill"`
	ToleranceBps        int    `mapstructure:"tolerance_bps"`
	ToleranceBucketBps  int    `mapstructure:"tolerance_bucket_bps"`
	MinSurplusBps       int    `mapstructure:"min_surplus_bps"`
}

// Cache configures the quote cache.
type Cache struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
}

// Limiter configures the adaptive backend rate limiter.
type Limiter struct {
	RPS           float64 `mapstructure:"rps"`
	Burst         int     `mapstructure:"burst"`
	BackoffFactor float64 `mapstructure:"backoff_factor"`
	MinRPS        float64 `mapstructure:"min_rps"`
	RecoveryStep  float64 `mapstructure:"recovery_step"`
}

// Jupiter configures the Jupiter aggregator backend.
type Jupiter struct {
	Endpoint  string `mapstructure:"endpoint"`
	APIKey    string `mapstructure:"api_key"`
	Authority string `mapstructure:"authority"`
}

// OKX configures the OKX DEX aggregator backend.
type OKX struct {
	Endpoint   string `mapstructure:"endpoint"`
	APIKey     string `mapstructure:"api_key"`
	Secret     string `mapstructure:"secret"`
	Passphrase string `mapstructure:"passphrase"`
	Authority  string `mapstructure:"authority"`
}

// AMM configures the on-chain pool backend.
type AMM struct {
	RPCEndpoints []string `mapstructure:"rpc_endpoints"`
	WSEndpoint   string   `mapstructure:"ws_endpoint"`
	RPCRPS       int      `mapstructure:"rpc_rps"`
	Protocols    []string `mapstructure:"protocols"`
}

// Config is the full service configuration document.
type Config struct {
	Server  Server  `mapstructure:"server"`
	Solver  Solver  `mapstructure:"solver"`
	Cache   Cache   `mapstructure:"cache"`
	Limiter Limiter `mapstructure:"limiter"`
	Jupiter Jupiter `mapstructure:"jupiter"`
	OKX     OKX     `mapstructure:"okx"`
	AMM     AMM     `mapstructure:"amm"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_solve_duration", "5s")
	v.SetDefault("server.deadline_slack", "500ms")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_json", false)

	v.SetDefault("solver.concurrent_requests", 8)
	v.SetDefault("solver.smallest_partial_fill", "0")
	v.SetDefault("solver.prefer_full_fill", false)
	v.SetDefault("solver.tolerance_bps", 100)
	v.SetDefault("solver.tolerance_bucket_bps", 0)
	v.SetDefault("solver.min_surplus_bps", 0)

	v.SetDefault("cache.ttl", "2s")
	v.SetDefault("cache.sweep_interval", "1m")
	v.SetDefault("cache.fetch_timeout", "10s")

	v.SetDefault("limiter.rps", 10.0)
	v.SetDefault("limiter.burst", 5)
	v.SetDefault("limiter.backoff_factor", 2.0)
	v.SetDefault("limiter.min_rps", 0.5)
	v.SetDefault("limiter.recovery_step", 1.0)

	v.SetDefault("jupiter.endpoint", "https://quote-api.jup.ag/v6")
	v.SetDefault("okx.endpoint", "https://www.okx.com")
	v.SetDefault("amm.rpc_rps", 10)
	v.SetDefault("amm.protocols", []string{"spl_token_swap", "orca"})
}

// Load reads the configuration file at path, fills in defaults and validates
// the result. An empty path loads defaults only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every violation at once so a bad config file can be fixed
// in one pass.
func (c *Config) Validate() error {
	var err error
	if c.Server.MaxSolveDuration <= 0 {
		err = multierr.Append(err, fmt.Errorf("server.max_solve_duration must be positive"))
	}
	if c.Server.DeadlineSlack < 0 {
		err = multierr.Append(err, fmt.Errorf("server.deadline_slack must not be negative"))
	}
	if c.Server.DeadlineSlack >= c.Server.MaxSolveDuration && c.Server.MaxSolveDuration > 0 {
		err = multierr.Append(err, fmt.Errorf("server.deadline_slack must be below server.max_solve_duration"))
	}
	if c.Solver.ConcurrentRequests <= 0 {
		err = multierr.Append(err, fmt.Errorf("solver.concurrent_requests must be positive"))
	}
	if c.Solver.ToleranceBps < 0 || c.Solver.ToleranceBps > 10_000 {
		err = multierr.Append(err, fmt.Errorf("solver.tolerance_bps must be within [0, 10000]"))
	}
	if c.Solver.MinSurplusBps < 0 {
		err = multierr.Append(err, fmt.Errorf("solver.min_surplus_bps must not be negative"))
	}
	if c.Cache.TTL <= 0 {
		err = multierr.Append(err, fmt.Errorf("cache.ttl must be positive"))
	}
	if c.Limiter.RPS <= 0 {
		err = multierr.Append(err, fmt.Errorf("limiter.rps must be positive"))
	}
	if c.Limiter.BackoffFactor < 1 {
		err = multierr.Append(err, fmt.Errorf("limiter.backoff_factor must be at least 1"))
	}
	return err
}
