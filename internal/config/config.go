package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"dojibot/internal/pattern"
	"dojibot/internal/srzone"
	"dojibot/pkg/model"
)

// Config represents the application configuration
type Config struct {
	Binance   BinanceConfig   `yaml:"binance"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	Pattern   pattern.Config  `yaml:"pattern"`
	SR        srzone.Config   `yaml:"sr"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Watchlist WatchlistConfig `yaml:"watchlist"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  DatabaseConfig  `yaml:"database"`
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
}

// BinanceConfig holds market data settings
type BinanceConfig struct {
	BaseURL           string        `yaml:"base_url"`
	FallbackURLs      []string      `yaml:"fallback_urls"` // tried in order when base_url fails
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// ScannerConfig holds scan loop settings
type ScannerConfig struct {
	Workers         int               `yaml:"workers"`
	Timeframes      []model.Timeframe `yaml:"timeframes"`
	Pacing          time.Duration     `yaml:"pacing"` // delay between successive fetches
	Grace           time.Duration     `yaml:"grace"`  // how long a candle must be closed before evaluation
	SignalCacheSize int               `yaml:"signal_cache_size"`
	FetchLimit      int               `yaml:"fetch_limit"`
	ErrorBackoff    time.Duration     `yaml:"error_backoff"`
}

// TelegramConfig holds bot settings. An empty token disables Telegram.
type TelegramConfig struct {
	Token       string `yaml:"token"`
	ChannelID   int64  `yaml:"channel_id"`
	AdminChatID int64  `yaml:"admin_chat_id"` // 0 accepts commands from any chat
}

// WatchlistConfig selects where tracked symbols live
type WatchlistConfig struct {
	Backend  string   `yaml:"backend"` // file or redis
	Path     string   `yaml:"path"`
	Defaults []string `yaml:"defaults"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// DatabaseConfig holds the signal journal connection. An empty URL disables it.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

// HTTPConfig holds the status server address. Empty disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultSymbols is the watchlist seeded on first start
var DefaultSymbols = []string{
	"BTCUSDT", "ETHUSDT", "BNBUSDT", "ZROUSDT", "VIRTUALUSDT", "USUALUSDT", "UNIUSDT", "REZUSDT",
	"LDOUSDT", "KMNOUSDT", "IOUSDT", "GMXUSDT", "ENAUSDT", "EIGENUSDT", "DYDXUSDT", "COWUSDT",
	"CAKEUSDT", "BERAUSDT", "BBUSDT", "ARBUSDT", "SOLUSDT", "LINKUSDT", "OPUSDT", "APTUSDT",
	"DOGEUSDT", "WUSDT", "LTCUSDT", "DOTUSDT", "TRXUSDT", "ETCUSDT", "XLMUSDT", "ATOMUSDT",
	"FILUSDT", "VETUSDT", "ICPUSDT", "THETAUSDT", "SANDUSDT", "AXSUSDT", "ALGOUSDT", "EGLDUSDT",
	"AAVEUSDT", "FTMUSDT", "NEARUSDT", "GRTUSDT",
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Binance: BinanceConfig{
			BaseURL:           "https://api.binance.com",
			FallbackURLs:      []string{"https://api1.binance.com", "https://api2.binance.com"},
			Timeout:           10 * time.Second,
			RequestsPerMinute: 200,
		},
		Scanner: ScannerConfig{
			Workers:         1,
			Timeframes:      []model.Timeframe{model.TF1h, model.TF4h, model.TF1d},
			Pacing:          300 * time.Millisecond,
			Grace:           10 * time.Second,
			SignalCacheSize: 1000,
			FetchLimit:      3,
			ErrorBackoff:    10 * time.Second,
		},
		Pattern: pattern.DefaultConfig(),
		SR:      srzone.DefaultConfig(),
		Watchlist: WatchlistConfig{
			Backend:  "file",
			Path:     "symbols.json",
			Defaults: append([]string(nil), DefaultSymbols...),
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "dojibot:",
		},
		Database: DatabaseConfig{
			MaxConns: 4,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, then .env and environment overrides
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHANNEL_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CHANNEL_ID: %w", err)
		}
		c.Telegram.ChannelID = id
	}
	if v := os.Getenv("TELEGRAM_ADMIN_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_ADMIN_CHAT_ID: %w", err)
		}
		c.Telegram.AdminChatID = id
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("BINANCE_BASE_URL"); v != "" {
		c.Binance.BaseURL = v
	}
	if v := os.Getenv("DOJIBOT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.Pattern.Validate(); err != nil {
		return fmt.Errorf("pattern: %w", err)
	}
	if err := c.SR.Validate(); err != nil {
		return fmt.Errorf("sr: %w", err)
	}
	if c.Binance.BaseURL == "" {
		return fmt.Errorf("binance.base_url is required")
	}
	if c.Binance.RequestsPerMinute < 1 {
		return fmt.Errorf("binance.requests_per_minute must be at least 1")
	}
	if c.Scanner.Workers < 1 {
		return fmt.Errorf("scanner.workers must be at least 1")
	}
	if len(c.Scanner.Timeframes) == 0 {
		return fmt.Errorf("scanner.timeframes must not be empty")
	}
	for _, tf := range c.Scanner.Timeframes {
		if tf.Duration() == 0 {
			return fmt.Errorf("scanner.timeframes: unsupported timeframe %q", tf)
		}
	}
	if c.Scanner.FetchLimit < 3 {
		return fmt.Errorf("scanner.fetch_limit must be at least 3")
	}
	if c.Scanner.SignalCacheSize < 1 {
		return fmt.Errorf("scanner.signal_cache_size must be at least 1")
	}
	if c.Scanner.Pacing < 0 || c.Scanner.Grace < 0 {
		return fmt.Errorf("scanner.pacing and scanner.grace must not be negative")
	}
	switch strings.ToLower(c.Watchlist.Backend) {
	case "file":
		if c.Watchlist.Path == "" {
			return fmt.Errorf("watchlist.path is required for the file backend")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("watchlist.backend must be file or redis, got %q", c.Watchlist.Backend)
	}
	if c.Telegram.Token != "" && c.Telegram.ChannelID == 0 {
		return fmt.Errorf("telegram.channel_id is required when a bot token is set")
	}
	return nil
}
