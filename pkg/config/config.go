package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Provider struct {
		Name              string        `yaml:"name"`
		APIToken          string        `yaml:"api_token"`
		BaseURL           string        `yaml:"base_url"`
		WebSocketURL      string        `yaml:"websocket_url"`
		Symbols           []string      `yaml:"symbols"`
		DefaultTicker     string        `yaml:"default_ticker"`
		ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
		MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay"`
		PingInterval      time.Duration `yaml:"ping_interval"`
		RateLimitPerSec   float64       `yaml:"rate_limit_per_sec"`
	} `yaml:"provider"`
	Market struct {
		HistoryCapacity int                      `yaml:"history_capacity"`
		RefreshInterval time.Duration            `yaml:"refresh_interval"`
		RefreshLimit    int                      `yaml:"refresh_limit"`
		Freshness       map[string]time.Duration `yaml:"freshness"`
		Context         struct {
			PrimaryRef   string        `yaml:"primary_ref"`
			SecondaryRef string        `yaml:"secondary_ref"`
			ReturnBars   int           `yaml:"return_bars"`
			CacheTTL     time.Duration `yaml:"cache_ttl"`
			MinBars15m   int           `yaml:"min_bars_15m"`
		} `yaml:"context"`
		Gates struct {
			ThinRelVolThreshold float64 `yaml:"thin_relvol_threshold"`
			RSRiskOffThreshold  float64 `yaml:"rs_risk_off_threshold"`
			NoChaseATRMultiple  float64 `yaml:"no_chase_atr_multiple"`
			MaxGaps             int     `yaml:"max_gaps"`
		} `yaml:"gates"`
	} `yaml:"market"`
	Sinks struct {
		Kafka struct {
			Enabled      bool          `yaml:"enabled"`
			Brokers      []string      `yaml:"brokers"`
			Topic        string        `yaml:"topic"`
			RequiredAcks int           `yaml:"required_acks"`
			Compression  string        `yaml:"compression"`
			BatchSize    int           `yaml:"batch_size"`
			BatchTimeout time.Duration `yaml:"batch_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"kafka"`
		ClickHouse struct {
			Enabled     bool          `yaml:"enabled"`
			Host        string        `yaml:"host"`
			Port        int           `yaml:"port"`
			Database    string        `yaml:"database"`
			Table       string        `yaml:"table"`
			User        string        `yaml:"user"`
			Password    string        `yaml:"password"`
			DialTimeout time.Duration `yaml:"dial_timeout"`
		} `yaml:"clickhouse"`
	} `yaml:"sinks"`
	Cache struct {
		Redis struct {
			Enabled  bool   `yaml:"enabled"`
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`
}

// defaultFreshness is the per-timeframe max age applied when the config file
// leaves a timeframe out.
var defaultFreshness = map[string]time.Duration{
	"1m":  90 * time.Second,
	"5m":  480 * time.Second,
	"15m": 1200 * time.Second,
	"1h":  5400 * time.Second,
	"4h":  21600 * time.Second,
	"1d":  129600 * time.Second,
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()
	return &c, nil
}

// LoadWithEnv loads config from YAML, overrides with environment variables,
// then validates.
func LoadWithEnv(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PROVIDER_API_TOKEN"); v != "" {
		c.Provider.APIToken = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Provider.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("DEFAULT_TICKER"); v != "" {
		c.Provider.DefaultTicker = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Sinks.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Cache.Redis.Host = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Market.HistoryCapacity == 0 {
		c.Market.HistoryCapacity = 500
	}
	if c.Market.RefreshInterval == 0 {
		c.Market.RefreshInterval = 60 * time.Second
	}
	if c.Market.RefreshLimit == 0 {
		c.Market.RefreshLimit = 300
	}
	if c.Market.Freshness == nil {
		c.Market.Freshness = map[string]time.Duration{}
	}
	for tf, age := range defaultFreshness {
		if _, ok := c.Market.Freshness[tf]; !ok {
			c.Market.Freshness[tf] = age
		}
	}
	if c.Market.Context.PrimaryRef == "" {
		c.Market.Context.PrimaryRef = "SPY.US"
	}
	if c.Market.Context.SecondaryRef == "" {
		c.Market.Context.SecondaryRef = "QQQ.US"
	}
	if c.Market.Context.ReturnBars == 0 {
		c.Market.Context.ReturnBars = 6
	}
	if c.Market.Context.CacheTTL == 0 {
		c.Market.Context.CacheTTL = 60 * time.Second
	}
	if c.Market.Context.MinBars15m == 0 {
		c.Market.Context.MinBars15m = 24
	}
	if c.Market.Gates.ThinRelVolThreshold == 0 {
		c.Market.Gates.ThinRelVolThreshold = 0.5
	}
	if c.Market.Gates.RSRiskOffThreshold == 0 {
		c.Market.Gates.RSRiskOffThreshold = 0.002
	}
	if c.Market.Gates.NoChaseATRMultiple == 0 {
		c.Market.Gates.NoChaseATRMultiple = 2.0
	}
	if c.Market.Gates.MaxGaps == 0 {
		c.Market.Gates.MaxGaps = 2
	}
	if c.Provider.ReconnectDelay == 0 {
		c.Provider.ReconnectDelay = 2 * time.Second
	}
	if c.Provider.MaxReconnectDelay == 0 {
		c.Provider.MaxReconnectDelay = 60 * time.Second
	}
	if c.Provider.PingInterval == 0 {
		c.Provider.PingInterval = 20 * time.Second
	}
	if c.Provider.RateLimitPerSec == 0 {
		c.Provider.RateLimitPerSec = 5
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// FreshnessFor returns the max age for a timeframe.
func (c *Config) FreshnessFor(tf string) time.Duration {
	if age, ok := c.Market.Freshness[tf]; ok {
		return age
	}
	return defaultFreshness[tf]
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Provider.APIToken == "" {
		return fmt.Errorf("provider.api_token is required")
	}
	if c.Provider.WebSocketURL == "" {
		return fmt.Errorf("provider.websocket_url is required")
	}
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if len(c.Provider.Symbols) == 0 {
		return fmt.Errorf("provider.symbols is required")
	}
	if c.Sinks.Kafka.Enabled && len(c.Sinks.Kafka.Brokers) == 0 {
		return fmt.Errorf("sinks.kafka.brokers is required when kafka is enabled")
	}
	if c.Sinks.ClickHouse.Enabled && c.Sinks.ClickHouse.Host == "" {
		return fmt.Errorf("sinks.clickhouse.host is required when clickhouse is enabled")
	}
	return nil
}
