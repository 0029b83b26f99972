// Package config loads pipeline configuration from the environment,
// with optional .env support for local runs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all environment-driven settings with their defaults.
type Config struct {
	// Backing services
	StoreURL          string // STORE_URL: Postgres DSN
	ClickHouseURL     string // CLICKHOUSE_URL: optional candle archive DSN
	NotifierToken     string // NOTIFIER_TOKEN
	NotifierChannelID string // NOTIFIER_CHANNEL_ID
	CatalogAPIKey     string // CATALOG_API_KEY
	StreamAPIKey      string // STREAM_API_KEY

	// Endpoints
	CatalogBaseURL    string // CATALOG_BASE_URL
	StreamWSURL       string // STREAM_WS_URL
	EnrichURL         string // ENRICH_URL
	AggregatorBaseURL string // AGGREGATOR_BASE_URL
	NotifierBaseURL   string // NOTIFIER_BASE_URL

	// Universe
	Network          string        // NETWORK
	MemoryTTL        time.Duration // UNIVERSE_MEMORY_TTL_HOURS
	ListTTL          time.Duration // UNIVERSE_LIST_TTL_HOURS
	FreshnessWindow  time.Duration // UNIVERSE_FRESHNESS_HOURS
	MinFreshCount    int           // UNIVERSE_MIN_FRESH_COUNT
	BatchSize        int           // UNIVERSE_BATCH_SIZE
	InterBatchDelay  time.Duration // UNIVERSE_INTER_BATCH_DELAY_SEC
	MinRequestGap    time.Duration // CATALOG_MIN_REQUEST_INTERVAL_SEC
	CatalogRetries   int           // CATALOG_MAX_RETRIES
	DailyBudget      int           // CATALOG_DAILY_BUDGET
	RefreshPeriod    time.Duration // UNIVERSE_REFRESH_HOURS

	// Filters and signal rule
	MinTokenAgeDays   int     // MIN_TOKEN_AGE_DAYS
	MinLiquidityUSD   float64 // MIN_LIQUIDITY_USD
	MaxFDVUSD         float64 // MAX_FDV_USD
	MinVolumeSpike    float64 // MIN_VOLUME_SPIKE
	MinNetFlow        float64 // MIN_NET_FLOW
	MaxRSIOversold    float64 // MAX_RSI_OVERSOLD
	MinUniqueBuyers   int     // MIN_UNIQUE_BUYERS
	MinAvgVolUSD      float64 // MIN_AVG_VOL_USD
	MinVol5mUSD       float64 // MIN_VOL_5M_USD
	SignalCooldown    time.Duration // SIGNAL_COOLDOWN_SEC
	RequiredConds     string  // SIGNAL_REQUIRED_CONDITIONS: csv, AND-ed subset

	// Liquidity probe
	MaxPriceImpactPct float64 // MAX_PRICE_IMPACT_PERCENT
	ProbeUSDAmount    float64 // PROBE_USD_AMOUNT

	// Ingestor
	EventBuffer          int           // EVENT_BUFFER
	EnrichMinInterval    time.Duration // ENRICH_MIN_REQUEST_INTERVAL_MS
	MaxReconnectAttempts int           // MAX_RECONNECT_ATTEMPTS

	// Logging
	LogLevel  string // LOG_LEVEL
	LogFormat string // LOG_FORMAT: "console" or "json"
}

// Load reads .env if present, then the process environment.
func Load() (*Config, error) {
	// Missing .env is fine; env vars win over file values either way.
	_ = godotenv.Load()

	cfg := &Config{
		StoreURL:          os.Getenv("STORE_URL"),
		ClickHouseURL:     os.Getenv("CLICKHOUSE_URL"),
		NotifierToken:     os.Getenv("NOTIFIER_TOKEN"),
		NotifierChannelID: os.Getenv("NOTIFIER_CHANNEL_ID"),
		CatalogAPIKey:     os.Getenv("CATALOG_API_KEY"),
		StreamAPIKey:      os.Getenv("STREAM_API_KEY"),

		CatalogBaseURL:    getStr("CATALOG_BASE_URL", "https://api.coingecko.com/api/v3"),
		StreamWSURL:       getStr("STREAM_WS_URL", "wss://atlas-mainnet.helius-rpc.com"),
		EnrichURL:         getStr("ENRICH_URL", "https://api.helius.xyz/v0/transactions"),
		AggregatorBaseURL: getStr("AGGREGATOR_BASE_URL", "https://quote-api.jup.ag/v6"),
		NotifierBaseURL:   getStr("NOTIFIER_BASE_URL", "https://api.telegram.org"),

		Network:         getStr("NETWORK", "solana"),
		MemoryTTL:       time.Duration(getInt("UNIVERSE_MEMORY_TTL_HOURS", 48)) * time.Hour,
		ListTTL:         time.Duration(getInt("UNIVERSE_LIST_TTL_HOURS", 48)) * time.Hour,
		FreshnessWindow: time.Duration(getInt("UNIVERSE_FRESHNESS_HOURS", 24)) * time.Hour,
		MinFreshCount:   getInt("UNIVERSE_MIN_FRESH_COUNT", 50),
		BatchSize:       getInt("UNIVERSE_BATCH_SIZE", 50),
		InterBatchDelay: time.Duration(getInt("UNIVERSE_INTER_BATCH_DELAY_SEC", 5)) * time.Second,
		MinRequestGap:   time.Duration(getInt("CATALOG_MIN_REQUEST_INTERVAL_SEC", 3)) * time.Second,
		CatalogRetries:  getInt("CATALOG_MAX_RETRIES", 2),
		DailyBudget:     getInt("CATALOG_DAILY_BUDGET", 280),
		RefreshPeriod:   time.Duration(getInt("UNIVERSE_REFRESH_HOURS", 48)) * time.Hour,

		MinTokenAgeDays: getInt("MIN_TOKEN_AGE_DAYS", 14),
		MinLiquidityUSD: getFloat("MIN_LIQUIDITY_USD", 10_000),
		MaxFDVUSD:       getFloat("MAX_FDV_USD", 5_000_000),
		MinVolumeSpike:  getFloat("MIN_VOLUME_SPIKE", 3.0),
		MinNetFlow:      getFloat("MIN_NET_FLOW", 1.0),
		MaxRSIOversold:  getFloat("MAX_RSI_OVERSOLD", 35),
		MinUniqueBuyers: getInt("MIN_UNIQUE_BUYERS", 5),
		MinAvgVolUSD:    getFloat("MIN_AVG_VOL_USD", 1_000),
		MinVol5mUSD:     getFloat("MIN_VOL_5M_USD", 10_000),
		SignalCooldown:  time.Duration(getInt("SIGNAL_COOLDOWN_SEC", 1800)) * time.Second,
		RequiredConds:   os.Getenv("SIGNAL_REQUIRED_CONDITIONS"),

		MaxPriceImpactPct: getFloat("MAX_PRICE_IMPACT_PERCENT", 3.0),
		ProbeUSDAmount:    getFloat("PROBE_USD_AMOUNT", 10),

		EventBuffer:          getInt("EVENT_BUFFER", 4096),
		EnrichMinInterval:    time.Duration(getInt("ENRICH_MIN_REQUEST_INTERVAL_MS", 200)) * time.Millisecond,
		MaxReconnectAttempts: getInt("MAX_RECONNECT_ATTEMPTS", 10),

		LogLevel:  getStr("LOG_LEVEL", "info"),
		LogFormat: getStr("LOG_FORMAT", "console"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.BatchSize < 1 || c.BatchSize > 250 {
		return fmt.Errorf("UNIVERSE_BATCH_SIZE must be in [1,250], got %d", c.BatchSize)
	}
	if c.DailyBudget < 0 {
		return fmt.Errorf("CATALOG_DAILY_BUDGET must be >= 0, got %d", c.DailyBudget)
	}
	if c.EventBuffer < 1 {
		return fmt.Errorf("EVENT_BUFFER must be >= 1, got %d", c.EventBuffer)
	}
	return nil
}

func getStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
