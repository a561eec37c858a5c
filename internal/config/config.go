package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv    = "OLXMONITOR_CONFIG"
	databasePathEnv  = "OLXMONITOR_DB"
	watchlistPathEnv = "OLXMONITOR_URLS"
	telegramTokenEnv = "TELEGRAM_BOT_TOKEN"
	chatIDsEnv       = "TELEGRAM_CHAT_IDS"
	adminIDsEnv      = "TELEGRAM_ADMIN_IDS"
	chromeBinEnv     = "CHROME_BIN"
)

// Config holds every tunable of the monitor.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Watchlist WatchlistConfig `yaml:"watchlist"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Scan      ScanConfig      `yaml:"scan"`
	Notify    NotifyConfig    `yaml:"notify"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig points at the SQLite file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// WatchlistConfig points at the JSON URL list.
type WatchlistConfig struct {
	Path string `yaml:"path"`
}

// TelegramConfig wires the bot and its destinations.
type TelegramConfig struct {
	BotToken string   `yaml:"botToken"`
	ChatIDs  []string `yaml:"chatIds"`
	AdminIDs []string `yaml:"adminIds"`
}

// ScanConfig controls the per-source scan and the cycle cadence.
type ScanConfig struct {
	// Keywords a title must contain to be a candidate.
	Keywords []string `yaml:"keywords"`
	// MaxAgeMinutes is the freshness window.
	MaxAgeMinutes float64 `yaml:"maxAgeMinutes"`
	// BacklogAgeFactor relaxes the window for backlog reconciliation.
	BacklogAgeFactor float64 `yaml:"backlogAgeFactor"`
	// SkipLeading cards are reserved for promoted slots.
	SkipLeading int `yaml:"skipLeading"`
	// MaxCards caps how deep into the page a scan goes.
	MaxCards int `yaml:"maxCards"`
	// OldStreak consecutive old listings abort the source scan.
	OldStreak int `yaml:"oldStreak"`
	// MaxParallel concurrent source scans per cycle.
	MaxParallel int `yaml:"maxParallel"`
	// ScrollCount lazy-load scrolls before reading the page.
	ScrollCount int           `yaml:"scrollCount"`
	PageTimeout time.Duration `yaml:"pageTimeout"`
	// ChromeBin overrides the browser binary path.
	ChromeBin string `yaml:"chromeBin"`

	FastInterval  time.Duration `yaml:"fastInterval"`
	SlowInterval  time.Duration `yaml:"slowInterval"`
	FloorFast     time.Duration `yaml:"floorFast"`
	FloorSlow     time.Duration `yaml:"floorSlow"`
	FallbackSleep time.Duration `yaml:"fallbackSleep"`
}

// NotifyConfig controls the delivery pipeline.
type NotifyConfig struct {
	// VeryFreshMinutes flags listings for the priority header.
	VeryFreshMinutes float64       `yaml:"veryFreshMinutes"`
	MaxAttempts      int           `yaml:"maxAttempts"`
	RetryBaseDelay   time.Duration `yaml:"retryBaseDelay"`
	QueueSize        int           `yaml:"queueSize"`
	Workers          int           `yaml:"workers"`
}

// LoggingConfig selects the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// AgeCacheSize bounds the in-memory age cache; AgeCacheValidity is how
// long a computed age stays reusable. Fixed alongside the other engine
// constants rather than per-deployment tunables.
const (
	AgeCacheSize     = 1000
	AgeCacheValidity = 20 * time.Minute
)

// Load reads YAML configuration (if present), then .env and environment
// overrides for secrets and paths.
func Load() Config {
	cfg := defaultConfig()

	if err := godotenv.Load(); err == nil {
		log.Printf("config: loaded .env")
	}

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(watchlistPathEnv); v != "" {
		c.Watchlist.Path = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv(chatIDsEnv); v != "" {
		c.Telegram.ChatIDs = splitList(v)
	}
	if v := os.Getenv(adminIDsEnv); v != "" {
		c.Telegram.AdminIDs = splitList(v)
	}
	if v := os.Getenv(chromeBinEnv); v != "" {
		c.Scan.ChromeBin = v
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func mergeConfig(base, override Config) Config {
	if override.Database.Path != "" {
		base.Database = override.Database
	}
	if override.Watchlist.Path != "" {
		base.Watchlist = override.Watchlist
	}

	if override.Telegram.BotToken != "" {
		base.Telegram.BotToken = override.Telegram.BotToken
	}
	if len(override.Telegram.ChatIDs) > 0 {
		base.Telegram.ChatIDs = override.Telegram.ChatIDs
	}
	if len(override.Telegram.AdminIDs) > 0 {
		base.Telegram.AdminIDs = override.Telegram.AdminIDs
	}

	if len(override.Scan.Keywords) > 0 {
		base.Scan.Keywords = override.Scan.Keywords
	}
	if override.Scan.MaxAgeMinutes > 0 {
		base.Scan.MaxAgeMinutes = override.Scan.MaxAgeMinutes
	}
	if override.Scan.BacklogAgeFactor > 0 {
		base.Scan.BacklogAgeFactor = override.Scan.BacklogAgeFactor
	}
	if override.Scan.SkipLeading > 0 {
		base.Scan.SkipLeading = override.Scan.SkipLeading
	}
	if override.Scan.MaxCards > 0 {
		base.Scan.MaxCards = override.Scan.MaxCards
	}
	if override.Scan.OldStreak > 0 {
		base.Scan.OldStreak = override.Scan.OldStreak
	}
	if override.Scan.MaxParallel > 0 {
		base.Scan.MaxParallel = override.Scan.MaxParallel
	}
	if override.Scan.ScrollCount > 0 {
		base.Scan.ScrollCount = override.Scan.ScrollCount
	}
	if override.Scan.PageTimeout > 0 {
		base.Scan.PageTimeout = override.Scan.PageTimeout
	}
	if override.Scan.ChromeBin != "" {
		base.Scan.ChromeBin = override.Scan.ChromeBin
	}
	if override.Scan.FastInterval > 0 {
		base.Scan.FastInterval = override.Scan.FastInterval
	}
	if override.Scan.SlowInterval > 0 {
		base.Scan.SlowInterval = override.Scan.SlowInterval
	}
	if override.Scan.FloorFast > 0 {
		base.Scan.FloorFast = override.Scan.FloorFast
	}
	if override.Scan.FloorSlow > 0 {
		base.Scan.FloorSlow = override.Scan.FloorSlow
	}
	if override.Scan.FallbackSleep > 0 {
		base.Scan.FallbackSleep = override.Scan.FallbackSleep
	}

	if override.Notify.VeryFreshMinutes > 0 {
		base.Notify.VeryFreshMinutes = override.Notify.VeryFreshMinutes
	}
	if override.Notify.MaxAttempts > 0 {
		base.Notify.MaxAttempts = override.Notify.MaxAttempts
	}
	if override.Notify.RetryBaseDelay > 0 {
		base.Notify.RetryBaseDelay = override.Notify.RetryBaseDelay
	}
	if override.Notify.QueueSize > 0 {
		base.Notify.QueueSize = override.Notify.QueueSize
	}
	if override.Notify.Workers > 0 {
		base.Notify.Workers = override.Notify.Workers
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Database:  DatabaseConfig{Path: "./data/olxmonitor.db"},
		Watchlist: WatchlistConfig{Path: "./data/urls.json"},
		Telegram:  TelegramConfig{},
		Scan: ScanConfig{
			Keywords:         []string{"defect", "piese", "nefunctional", "cod 43", "nu afiseaza", "artefacte", "donator"},
			MaxAgeMinutes:    20,
			BacklogAgeFactor: 1.5,
			SkipLeading:      2,
			MaxCards:         12,
			OldStreak:        2,
			MaxParallel:      4,
			ScrollCount:      2,
			PageTimeout:      25 * time.Second,
			FastInterval:     10 * time.Second,
			SlowInterval:     15 * time.Second,
			FloorFast:        5 * time.Second,
			FloorSlow:        10 * time.Second,
			FallbackSleep:    15 * time.Second,
		},
		Notify: NotifyConfig{
			VeryFreshMinutes: 3,
			MaxAttempts:      5,
			RetryBaseDelay:   3 * time.Second,
			QueueSize:        64,
			Workers:          2,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}
