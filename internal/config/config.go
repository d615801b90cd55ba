package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/web3guy0/hitwatch/core"
	"github.com/web3guy0/hitwatch/risk"
	"github.com/web3guy0/hitwatch/types"
)

const (
	FeedBinance = "binance"
	FeedRedis   = "redis"
)

// Config holds all configuration for the watcher and the recorder
type Config struct {
	// Telegram
	TelegramToken  string
	TelegramChatID int64

	// Mode
	Watch      bool
	DryRun     bool
	Debug      bool
	TraceTicks bool

	// Feed
	Feed             string
	BinanceAPIURL    string
	BinanceStreamURL string
	RedisURL         string
	RedisPrefix      string

	// Scanning
	PollInterval time.Duration
	ChunkMinutes int
	TickPageSize int
	BarTimeframe time.Duration
	BarBacktrack time.Duration
	TickPadding  time.Duration
	QuietHours   string // "" default schedule, "off" none, or "23:45-00:59,..."
	TieBreak     string

	// Setup selection
	SetupIDs     []int64
	SetupSymbols []string
	SinceHours   int

	// Recorder
	RecorderSymbols   []string
	RecorderRetention time.Duration
	RecorderFlush     time.Duration

	// Database
	DatabasePath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		// Telegram
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		// Mode
		Watch:      getEnvBool("WATCH", false),
		DryRun:     getEnvBool("DRY_RUN", false),
		Debug:      getEnvBool("DEBUG", false),
		TraceTicks: getEnvBool("TRACE_TICKS", false),

		// Feed
		Feed:             strings.ToLower(getEnv("FEED", FeedBinance)),
		BinanceAPIURL:    getEnv("BINANCE_API_URL", "https://api.binance.com"),
		BinanceStreamURL: getEnv("BINANCE_STREAM_URL", "wss://stream.binance.com:9443/stream"),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisPrefix:      getEnv("REDIS_PREFIX", "monitor"),

		// Scanning
		PollInterval: getEnvDuration("POLL_INTERVAL", time.Minute),
		ChunkMinutes: getEnvInt("CHUNK_MINUTES", 60),
		TickPageSize: getEnvInt("TICK_PAGE_SIZE", 1000),
		BarTimeframe: getEnvDuration("BAR_TIMEFRAME", time.Minute),
		BarBacktrack: getEnvDuration("BAR_BACKTRACK", 2*time.Minute),
		TickPadding:  getEnvDuration("TICK_PADDING", core.DefaultTickPadding),
		QuietHours:   os.Getenv("QUIET_HOURS"),
		TieBreak:     getEnv("TIE_BREAK", "sl_first"),

		// Setup selection
		SetupSymbols: getEnvList("SETUP_SYMBOLS"),
		SinceHours:   getEnvInt("SINCE_HOURS", 0),

		// Recorder
		RecorderSymbols:   getEnvList("RECORDER_SYMBOLS"),
		RecorderRetention: getEnvDuration("RECORDER_RETENTION", 24*time.Hour),
		RecorderFlush:     getEnvDuration("RECORDER_FLUSH", time.Second),

		// Database
		DatabasePath: getEnv("DATABASE_PATH", "data/hitwatch.db"),
	}

	// Parse chat ID
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid TELEGRAM_CHAT_ID: %v", types.ErrConfig, err)
		}
		cfg.TelegramChatID = id
	}

	for _, raw := range getEnvList("SETUP_IDS") {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid setup id %q", types.ErrConfig, raw)
		}
		cfg.SetupIDs = append(cfg.SetupIDs, id)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with
func (c *Config) Validate() error {
	switch c.Feed {
	case FeedBinance, FeedRedis:
	default:
		return fmt.Errorf("%w: FEED must be binance or redis, got %q", types.ErrConfig, c.Feed)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: POLL_INTERVAL must be positive", types.ErrConfig)
	}
	if c.BarTimeframe <= 0 {
		return fmt.Errorf("%w: BAR_TIMEFRAME must be positive", types.ErrConfig)
	}
	if c.ChunkMinutes < 0 || c.TickPageSize < 0 || c.SinceHours < 0 {
		return fmt.Errorf("%w: CHUNK_MINUTES, TICK_PAGE_SIZE and SINCE_HOURS cannot be negative", types.ErrConfig)
	}
	if c.BarBacktrack < 0 || c.TickPadding < 0 {
		return fmt.Errorf("%w: BAR_BACKTRACK and TICK_PADDING cannot be negative", types.ErrConfig)
	}
	if _, err := risk.ParseTieBreak(c.TieBreak); err != nil {
		return err
	}
	if _, err := c.QuietFilter(); err != nil {
		return err
	}
	return nil
}

// QuietFilter builds the quiet-hours schedule. Custom windows keep the
// weekend block of the default schedule.
func (c *Config) QuietFilter() (core.QuietHoursFilter, error) {
	switch strings.ToLower(strings.TrimSpace(c.QuietHours)) {
	case "":
		return core.DefaultQuietSchedule(), nil
	case "off", "none":
		return core.NoQuietHours{}, nil
	}
	windows, err := core.ParseQuietWindows(c.QuietHours)
	if err != nil {
		return nil, err
	}
	schedule := core.DefaultQuietSchedule()
	schedule.Windows = windows
	return schedule, nil
}

// Filter selects setups by id and symbol. The since cutoff moves with each
// pass, see SinceWindow.
func (c *Config) Filter() types.SetupFilter {
	return types.SetupFilter{IDs: c.SetupIDs, Symbols: c.SetupSymbols}
}

// SinceWindow is SINCE_HOURS as a duration, 0 when unset
func (c *Config) SinceWindow() time.Duration {
	if c.SinceHours <= 0 {
		return 0
	}
	return time.Duration(c.SinceHours) * time.Hour
}

// EngineConfig maps settings onto the engine
func (c *Config) EngineConfig() core.EngineConfig {
	tb, _ := risk.ParseTieBreak(c.TieBreak)
	return core.EngineConfig{
		PollInterval: c.PollInterval,
		BarTimeframe: c.BarTimeframe,
		BarBacktrack: c.BarBacktrack,
		PageSize:     c.TickPageSize,
		Evaluator: core.EvaluatorConfig{
			TickPadding:  c.TickPadding,
			ChunkMinutes: c.ChunkMinutes,
		},
		Filter:      c.Filter(),
		SinceWindow: c.SinceWindow(),
		TieBreak:    tb,
		DryRun:      c.DryRun,
		Trace:       c.TraceTicks,
	}
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blanks
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
