package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Liqflow      LiqflowConfig      `yaml:"liqflow"`
	Channels     ChannelsConfig     `yaml:"channels"`
	Feed         FeedConfig         `yaml:"feed"`
	Store        StoreConfig        `yaml:"store"`
	Heatmap      HeatmapConfig      `yaml:"heatmap"`
	Writer       WriterConfig       `yaml:"writer"`
	Server       ServerConfig       `yaml:"server"`
	Derivs       DerivsConfig       `yaml:"derivs"`
	OpenInterest OpenInterestConfig `yaml:"open_interest"`
	Macro        MacroConfig        `yaml:"macro"`
	Storage      StorageConfig      `yaml:"storage"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

type LiqflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChannelsConfig struct {
	RawBuffer      int `yaml:"raw_buffer"`
	BatchBuffer    int `yaml:"batch_buffer"`
	SnapshotBuffer int `yaml:"snapshot_buffer"`
}

// FeedConfig controls the liquidation stream consumer. Mode "combined" dials
// the combined !forceOrder@arr stream with a plain websocket client; mode
// "sdk" opens one SDK subscription per configured symbol.
type FeedConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Mode         string        `yaml:"mode"`
	URL          string        `yaml:"url"`
	Symbols      []string      `yaml:"symbols"`
	PingInterval time.Duration `yaml:"ping_interval"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	MaxBackoff   time.Duration `yaml:"max_backoff"`
}

// StoreConfig bounds the in-memory event history. A zero bound falls back to
// the store default for that bound, so retention is always capped by both a
// maximum count and a maximum age.
type StoreConfig struct {
	MaxEvents int           `yaml:"max_events"`
	MaxAge    time.Duration `yaml:"max_age"`
}

type HeatmapConfig struct {
	DefaultMinutes int `yaml:"default_minutes"`
	DefaultBins    int `yaml:"default_bins"`
	MaxBins        int `yaml:"max_bins"`
}

type WriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxBuffer     int           `yaml:"max_buffer"`
	Partitioning  PartitioningConfig `yaml:"partitioning"`
}

type PartitioningConfig struct {
	TimeFormat     string   `yaml:"time_format"`
	AdditionalKeys []string `yaml:"additional_keys"`
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// DerivsConfig controls the Binance futures REST pass-through endpoints.
type DerivsConfig struct {
	Enabled           bool    `yaml:"enabled"`
	BaseURL           string  `yaml:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// OpenInterestConfig controls the multi-exchange open-interest aggregation
// and the periodic snapshot loop.
type OpenInterestConfig struct {
	Enabled          bool              `yaml:"enabled"`
	Symbols          []string          `yaml:"symbols"`
	SnapshotInterval time.Duration     `yaml:"snapshot_interval"`
	Binance          OIExchangeConfig  `yaml:"binance"`
	Bybit            OIExchangeConfig  `yaml:"bybit"`
	Okx              OIExchangeConfig  `yaml:"okx"`
}

type OIExchangeConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// MacroConfig controls the CoinGecko market-cap snapshot loop behind the
// /macro endpoints.
type MacroConfig struct {
	Enabled          bool          `yaml:"enabled"`
	URL              string        `yaml:"url"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	MaxSnapshots     int           `yaml:"max_snapshots"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	CloudWatch    bool   `yaml:"cloudwatch"`
	Region        string `yaml:"region"`
	Namespace     string `yaml:"namespace"`
	DashboardName string `yaml:"dashboard_name"`
}

const (
	defaultFeedURL        = "wss://fstream.binance.com/stream?streams=!forceOrder@arr"
	defaultPingInterval   = 20 * time.Second
	defaultReadTimeout    = 60 * time.Second
	defaultMaxBackoff     = 30 * time.Second
	defaultMaxEvents      = 200000
	defaultMaxAge         = 2 * time.Hour
	defaultHeatmapMinutes = 30
	defaultHeatmapBins    = 50
	defaultMaxBins        = 500
)

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)

	// Override feed settings from environment variables if available
	if v := os.Getenv("LIQ_WS_URL"); v != "" {
		config.Feed.URL = strings.TrimSpace(v)
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		symbols := []string{}
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				symbols = append(symbols, strings.ToUpper(s))
			}
		}
		if len(symbols) > 0 {
			config.Feed.Symbols = symbols
		}
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Feed.Mode == "" {
		cfg.Feed.Mode = "combined"
	}
	if cfg.Feed.URL == "" {
		cfg.Feed.URL = defaultFeedURL
	}
	if cfg.Feed.PingInterval <= 0 {
		cfg.Feed.PingInterval = defaultPingInterval
	}
	if cfg.Feed.ReadTimeout <= 0 {
		cfg.Feed.ReadTimeout = defaultReadTimeout
	}
	if cfg.Feed.MaxBackoff <= 0 {
		cfg.Feed.MaxBackoff = defaultMaxBackoff
	}
	if cfg.Store.MaxEvents == 0 && cfg.Store.MaxAge == 0 {
		cfg.Store.MaxEvents = defaultMaxEvents
		cfg.Store.MaxAge = defaultMaxAge
	}
	if cfg.Heatmap.DefaultMinutes <= 0 {
		cfg.Heatmap.DefaultMinutes = defaultHeatmapMinutes
	}
	if cfg.Heatmap.DefaultBins <= 0 {
		cfg.Heatmap.DefaultBins = defaultHeatmapBins
	}
	if cfg.Heatmap.MaxBins <= 0 {
		cfg.Heatmap.MaxBins = defaultMaxBins
	}
	if cfg.Writer.BatchSize <= 0 {
		cfg.Writer.BatchSize = 500
	}
	if cfg.Writer.BatchTimeout <= 0 {
		cfg.Writer.BatchTimeout = 5 * time.Second
	}
	if cfg.Writer.FlushInterval <= 0 {
		cfg.Writer.FlushInterval = time.Minute
	}
	if cfg.Writer.MaxBuffer <= 0 {
		cfg.Writer.MaxBuffer = 5000
	}
	if cfg.OpenInterest.SnapshotInterval <= 0 {
		cfg.OpenInterest.SnapshotInterval = 5 * time.Minute
	}
	if cfg.Macro.SnapshotInterval <= 0 {
		cfg.Macro.SnapshotInterval = time.Hour
	}
	if cfg.Channels.RawBuffer <= 0 {
		cfg.Channels.RawBuffer = 10000
	}
	if cfg.Channels.BatchBuffer <= 0 {
		cfg.Channels.BatchBuffer = 100
	}
	if cfg.Channels.SnapshotBuffer <= 0 {
		cfg.Channels.SnapshotBuffer = 100
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Liqflow.Name == "" {
		return fmt.Errorf("liqflow.name is required")
	}

	if cfg.Liqflow.Version == "" {
		return fmt.Errorf("liqflow.version is required")
	}

	if cfg.Feed.Mode != "combined" && cfg.Feed.Mode != "sdk" {
		return fmt.Errorf("feed.mode must be 'combined' or 'sdk'")
	}

	if cfg.Feed.Mode == "sdk" && len(cfg.Feed.Symbols) == 0 {
		return fmt.Errorf("feed.symbols is required when feed.mode is 'sdk'")
	}

	if cfg.Store.MaxEvents < 0 {
		return fmt.Errorf("store.max_events must not be negative")
	}
	if cfg.Store.MaxAge < 0 {
		return fmt.Errorf("store.max_age must not be negative")
	}

	if cfg.Heatmap.DefaultBins > cfg.Heatmap.MaxBins {
		return fmt.Errorf("heatmap.default_bins must not exceed heatmap.max_bins")
	}

	if cfg.Server.Enabled && cfg.Server.Address == "" {
		return fmt.Errorf("server.address is required when the server is enabled")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
