package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// IBKRConfig represents broker gateway connection settings
type IBKRConfig struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	ClientID          int    `yaml:"client_id"`
	ConnectionTimeout int    `yaml:"connection_timeout"` // seconds per attempt
	MaxRetryAttempts  int    `yaml:"max_retry_attempts"`
	RetryDelay        int    `yaml:"retry_delay"` // seconds between attempts
	DataTimeout       int    `yaml:"data_timeout"`
	MaxStrikes        int    `yaml:"max_strikes"`
	MaxExpirations    int    `yaml:"max_expirations"`
}

// FilteringConfig holds the live-trading (volume based) filter thresholds
type FilteringConfig struct {
	MinVolumeOiRatio float64 `yaml:"min_volume_oi_ratio"`
	MinVolume        int64   `yaml:"min_volume"`
	MinOpenInterest  int64   `yaml:"min_open_interest"`
	MaxDTE           int     `yaml:"max_dte"`
	MinDTE           int     `yaml:"min_dte"`
	MinPremiumSpent  float64 `yaml:"min_premium_spent"`
	MaxResults       int     `yaml:"max_results"`
}

// PositionConfig holds the position-analysis (open interest based) thresholds
type PositionConfig struct {
	MinOpenInterest int64   `yaml:"min_open_interest"`
	MinPremium      float64 `yaml:"min_premium"`
}

// ExpertConfig holds the enrichment breakpoints
type ExpertConfig struct {
	ATMThreshold      float64 `yaml:"atm_threshold"`
	DeepOTMThreshold  float64 `yaml:"deep_otm_threshold"`
	HighUnusualRatio  float64 `yaml:"high_unusual_ratio"`
	ExtremeUnusualRat float64 `yaml:"extreme_unusual_ratio"`
}

// FeaturesConfig holds the data-source feature flags
type FeaturesConfig struct {
	EnableIBKR        bool `yaml:"enable_ibkr"`
	UseIBKRPrimary    bool `yaml:"use_ibkr_primary"`
	FallbackToYfinanc bool `yaml:"fallback_to_yfinance"`
	FallbackTimeout   int  `yaml:"fallback_timeout"` // seconds
}

type Config struct {
	Port string `yaml:"port"`

	IBKR      IBKRConfig      `yaml:"ibkr"`
	Filtering FilteringConfig `yaml:"filtering"`
	Position  PositionConfig  `yaml:"position"`
	Expert    ExpertConfig    `yaml:"expert_analysis"`
	Features  FeaturesConfig  `yaml:"features"`
	Logging   LoggingConfig   `yaml:"logging"`

	CORSOrigins []string `yaml:"cors_origins"`
}

// Load builds the configuration from defaults, config.yaml (if present)
// and environment variable overrides, in that order.
func Load() *Config {
	return LoadFrom("config.yaml")
}

func LoadFrom(path string) *Config {
	cfg := defaults()

	if data, err := os.ReadFile(path); err == nil {
		// A malformed file is a startup error the caller should see,
		// not something to silently ignore.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "config: cannot parse %s: %v\n", path, err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.normalize()
	return cfg
}

func defaults() *Config {
	return &Config{
		Port: "8000",
		IBKR: IBKRConfig{
			Host:              "127.0.0.1",
			Port:              7497,
			ClientID:          0,
			ConnectionTimeout: 10,
			MaxRetryAttempts:  3,
			RetryDelay:        5,
			DataTimeout:       30,
			MaxStrikes:        20,
			MaxExpirations:    4,
		},
		Filtering: FilteringConfig{
			MinVolumeOiRatio: 1.0,
			MinVolume:        50,
			MinOpenInterest:  10,
			MaxDTE:           45,
			MinDTE:           1,
			MinPremiumSpent:  1000.0,
			MaxResults:       100,
		},
		Position: PositionConfig{
			MinOpenInterest: 100,
			MinPremium:      10000.0,
		},
		Expert: ExpertConfig{
			ATMThreshold:      0.05,
			DeepOTMThreshold:  0.15,
			HighUnusualRatio:  5.0,
			ExtremeUnusualRat: 8.0,
		},
		Features: FeaturesConfig{
			EnableIBKR:        false,
			UseIBKRPrimary:    false,
			FallbackToYfinanc: true,
			FallbackTimeout:   30,
		},
		Logging: LoggingConfig{
			LogLevel: "info",
			LogFile:  "",
		},
		CORSOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)

	cfg.IBKR.Host = getEnv("IBKR_HOST", cfg.IBKR.Host)
	cfg.IBKR.Port = getEnvInt("IBKR_PORT", cfg.IBKR.Port)
	cfg.IBKR.ClientID = getEnvInt("IBKR_CLIENT_ID", cfg.IBKR.ClientID)
	cfg.IBKR.ConnectionTimeout = getEnvInt("IBKR_CONNECTION_TIMEOUT", cfg.IBKR.ConnectionTimeout)
	cfg.IBKR.MaxRetryAttempts = getEnvInt("IBKR_MAX_RETRY_ATTEMPTS", cfg.IBKR.MaxRetryAttempts)
	cfg.IBKR.RetryDelay = getEnvInt("IBKR_RETRY_DELAY", cfg.IBKR.RetryDelay)

	cfg.Filtering.MinVolumeOiRatio = getEnvFloat("MIN_VOLUME_OI_RATIO", cfg.Filtering.MinVolumeOiRatio)
	cfg.Filtering.MinVolume = int64(getEnvInt("MIN_VOLUME", int(cfg.Filtering.MinVolume)))
	cfg.Filtering.MinOpenInterest = int64(getEnvInt("MIN_OPEN_INTEREST", int(cfg.Filtering.MinOpenInterest)))
	cfg.Filtering.MaxDTE = getEnvInt("MAX_DTE", cfg.Filtering.MaxDTE)
	cfg.Filtering.MinDTE = getEnvInt("MIN_DTE", cfg.Filtering.MinDTE)
	cfg.Filtering.MinPremiumSpent = getEnvFloat("MIN_PREMIUM_SPENT", cfg.Filtering.MinPremiumSpent)
	cfg.Filtering.MaxResults = getEnvInt("MAX_RESULTS", cfg.Filtering.MaxResults)

	cfg.Features.EnableIBKR = getEnvBool("ENABLE_IBKR", cfg.Features.EnableIBKR)
	cfg.Features.UseIBKRPrimary = getEnvBool("USE_IBKR_PRIMARY", cfg.Features.UseIBKRPrimary)
	cfg.Features.FallbackToYfinanc = getEnvBool("FALLBACK_TO_YFINANCE", cfg.Features.FallbackToYfinanc)

	cfg.Logging.LogLevel = getEnv("LOG_LEVEL", cfg.Logging.LogLevel)
	cfg.Logging.LogFile = getEnv("LOG_FILE", cfg.Logging.LogFile)

	if origins := getEnv("CORS_ORIGINS", ""); origins != "" {
		cfg.CORSOrigins = strings.Split(origins, ",")
	}
}

// normalize clamps values that would break the pipeline at runtime.
func (c *Config) normalize() {
	if c.IBKR.MaxRetryAttempts < 1 {
		c.IBKR.MaxRetryAttempts = 1
	}
	if c.IBKR.ConnectionTimeout < 1 {
		c.IBKR.ConnectionTimeout = 1
	}
	if c.IBKR.MaxExpirations < 1 {
		c.IBKR.MaxExpirations = 1
	}
	if c.Filtering.MaxResults < 0 {
		c.Filtering.MaxResults = 0
	}
	if c.Filtering.MinDTE < 0 {
		c.Filtering.MinDTE = 0
	}
}

// ConnectTimeout returns the per-attempt connection timeout as a Duration.
func (c *IBKRConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectionTimeout) * time.Second
}

// RetryWait returns the delay between connection attempts as a Duration.
func (c *IBKRConfig) RetryWait() time.Duration {
	return time.Duration(c.RetryDelay) * time.Second
}

// AwaitTimeout returns the market-data wait deadline as a Duration.
func (c *IBKRConfig) AwaitTimeout() time.Duration {
	return time.Duration(c.DataTimeout) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
