// Package config loads process configuration the way the teacher does:
// flags overlaid on environment variables, with two additional overlay
// sources enriched from the pack (spec.md §6 "Environment variables").
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all perpflow process configuration.
type Config struct {
	// Server
	WSPort int
	Host   string

	// Auth (spec.md §6)
	APIKeySecret          string
	ReadonlyViewToken     string
	AllowLocalhostNoAuth  bool
	AllowPublicMarketData bool
	ExternalReadonlyMode  bool

	// Upstream
	UpstreamWSURL   string
	UpstreamRESTURL string
	Symbols         []string

	// HTF (internal/microstructure higher-timeframe refresh)
	HTFRefreshMs     int64
	HTFBarsLimit     int
	HTFATRPeriod     int
	HTFSwingLookback int

	// Dry-run session tunables
	DryRunEventIntervalMs int64
	DryRunDepthLevels     int
	DryRunTakeProfitBps   float64
	DryRunStopBps         float64
	DryRunCooldownMs      int64
	DryRunHeartbeatMs     int64
	DryRunLogTailSize     int

	DecisionMode string

	// Trade/session retention
	MongoURI           string
	TradeRetentionDays int
	SessionDir         string

	// S3 archive offload (opt-in: only active when S3Bucket is set)
	S3Bucket             string
	S3Region             string
	S3Prefix             string
	ArchiveIntervalHours int
	ArchiveAfterHours    int
}

// ConfigError marks a fatal misconfiguration (spec.md §7 "Fatal
// configuration"): the process must refuse to start rather than run
// with a guessed default.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}

// Load reads a .env file and an optional perpflow.yaml overlay, then
// parses flags overlaid on environment variables, following the
// teacher's flag+env pattern. Returns a ConfigError if a required
// field (API_KEY_SECRET) is missing.
func Load() (*Config, error) {
	_ = godotenv.Load()
	ov, err := loadYAMLOverlay("perpflow.yaml")
	if err != nil {
		return nil, err
	}

	c := &Config{}

	flag.IntVar(&c.WSPort, "port", envInt("FEED_PORT", 8100), "WebSocket/HTTP server port")
	flag.StringVar(&c.Host, "host", envStr("FEED_HOST", "0.0.0.0"), "Listen host")

	flag.StringVar(&c.APIKeySecret, "api-key-secret", envStr("API_KEY_SECRET", ""), "Bearer auth secret (required)")
	flag.StringVar(&c.ReadonlyViewToken, "readonly-view-token", envStr("READONLY_VIEW_TOKEN", ""), "Viewer (read-only) token")
	flag.BoolVar(&c.AllowLocalhostNoAuth, "allow-localhost-no-auth", envBool("ALLOW_LOCALHOST_NO_AUTH", false), "Bypass auth for loopback clients")
	flag.BoolVar(&c.AllowPublicMarketData, "allow-public-market-data", envBool("ALLOW_PUBLIC_MARKET_DATA", false), "Allow unauthenticated market-data-only access")
	flag.BoolVar(&c.ExternalReadonlyMode, "external-readonly-mode", envBool("EXTERNAL_READONLY_MODE", false), "Force all external connections to read-only")

	flag.StringVar(&c.UpstreamWSURL, "upstream-ws-url", envStr("UPSTREAM_WS_URL", "wss://fstream.binance.com/stream"), "Upstream exchange WebSocket URL")
	flag.StringVar(&c.UpstreamRESTURL, "upstream-rest-url", envStr("UPSTREAM_REST_URL", "https://fapi.binance.com"), "Upstream exchange REST base URL")

	flag.Int64Var(&c.HTFRefreshMs, "htf-refresh-ms", envInt64("HTF_REFRESH_MS", 60000), "Higher-timeframe bar refresh interval, ms")
	flag.IntVar(&c.HTFBarsLimit, "htf-bars-limit", envInt("HTF_BARS_LIMIT", 200), "Higher-timeframe bars retained per symbol")
	flag.IntVar(&c.HTFATRPeriod, "htf-atr-period", envInt("HTF_ATR_PERIOD", 14), "ATR lookback period, bars")
	flag.IntVar(&c.HTFSwingLookback, "htf-swing-lookback", envInt("HTF_SWING_LOOKBACK", 20), "Swing high/low lookback, bars")

	flag.Int64Var(&c.DryRunEventIntervalMs, "dry-run-event-interval-ms", envInt64("DRY_RUN_EVENT_INTERVAL_MS", 250), "Minimum spacing between dry-run depth events, ms")
	flag.IntVar(&c.DryRunDepthLevels, "dry-run-depth-levels", envInt("DRY_RUN_DEPTH_LEVELS", 20), "Order book depth levels retained for the dry-run engine")
	flag.Float64Var(&c.DryRunTakeProfitBps, "dry-run-tp-bps", envFloat("DRY_RUN_TP_BPS", 40), "Take-profit distance, basis points")
	flag.Float64Var(&c.DryRunStopBps, "dry-run-stop-bps", envFloat("DRY_RUN_STOP_BPS", 20), "Stop distance, basis points")
	flag.Int64Var(&c.DryRunCooldownMs, "dry-run-cooldown-ms", envInt64("DRY_RUN_COOLDOWN_MS", 30000), "Cooldown after a closed position before re-entry, ms")
	flag.Int64Var(&c.DryRunHeartbeatMs, "dry-run-heartbeat-ms", envInt64("DRY_RUN_HEARTBEAT_MS", 10000), "Idle heartbeat log interval, ms")
	flag.IntVar(&c.DryRunLogTailSize, "dry-run-log-tail-size", envInt("DRY_RUN_LOG_TAIL_SIZE", 200), "Rolling console/tick log tail size")

	flag.StringVar(&c.DecisionMode, "decision-mode", envStr("DECISION_MODE", "standard"), "Decision policy source (standard | ai)")

	flag.StringVar(&c.MongoURI, "mongo-uri", envStr("MONGO_URI", "mongodb://localhost:27017/perpflow"), "MongoDB connection URI")
	flag.IntVar(&c.TradeRetentionDays, "trade-retention", envInt("TRADE_RETENTION_DAYS", 7), "Trade log retention in days (0 = keep forever)")
	flag.StringVar(&c.SessionDir, "session-dir", envStr("SESSION_DIR", "data/sessions"), "Directory for persisted session JSON")

	flag.StringVar(&c.S3Bucket, "s3-bucket", envStr("S3_BUCKET", ""), "S3 bucket for archive offload (empty = disabled)")
	flag.StringVar(&c.S3Region, "s3-region", envStr("S3_REGION", "us-east-1"), "AWS region for S3")
	flag.StringVar(&c.S3Prefix, "s3-prefix", envStr("S3_PREFIX", "perpflow"), "S3 key prefix for archived data")
	flag.IntVar(&c.ArchiveIntervalHours, "archive-interval", envInt("ARCHIVE_INTERVAL_HOURS", 6), "Hours between archive runs")
	flag.IntVar(&c.ArchiveAfterHours, "archive-after", envInt("ARCHIVE_AFTER_HOURS", 24), "Archive JSONL rows older than this many hours")

	if !flag.Parsed() {
		flag.Parse()
	}

	applyYAMLOverlay(c, ov)
	if len(c.Symbols) == 0 {
		c.Symbols = ov.Symbols
	}

	if c.APIKeySecret == "" {
		return nil, &ConfigError{Field: "API_KEY_SECRET", Msg: "required for bearer authentication"}
	}

	return c, nil
}

// yamlOverlay is the optional perpflow.yaml shape (spec.md §6
// "symbol-list and threshold overrides").
type yamlOverlay struct {
	Symbols             []string `yaml:"symbols"`
	DryRunTakeProfitBps *float64 `yaml:"dryRunTakeProfitBps"`
	DryRunStopBps       *float64 `yaml:"dryRunStopBps"`
	HTFBarsLimit        *int     `yaml:"htfBarsLimit"`
}

func loadYAMLOverlay(path string) (yamlOverlay, error) {
	var ov yamlOverlay
	data, err := os.ReadFile(path)
	if err != nil {
		return ov, nil // absent overlay file is not an error
	}
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return ov, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return ov, nil
}

func applyYAMLOverlay(c *Config, ov yamlOverlay) {
	if ov.DryRunTakeProfitBps != nil {
		c.DryRunTakeProfitBps = *ov.DryRunTakeProfitBps
	}
	if ov.DryRunStopBps != nil {
		c.DryRunStopBps = *ov.DryRunStopBps
	}
	if ov.HTFBarsLimit != nil {
		c.HTFBarsLimit = *ov.HTFBarsLimit
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
