package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

// Supported messaging platforms.
const (
	PlatformTelegram = "telegram"
	PlatformXMPP     = "xmpp"
)

// Supported quota stores.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// DefaultModels is the ordered candidate list tried when GEMINI_MODELS is unset.
var DefaultModels = []string{
	"gemini-1.0-pro-vision",
	"gemini-pro-vision",
	"gemini-1.5-flash",
	"gemini-1.0-pro",
}

type Config struct {
	Bot      BotConfig
	Telegram TelegramConfig
	XMPP     XMPPConfig
	Gemini   GeminiConfig
	Quota    QuotaConfig
	Redis    RedisConfig
	NATS     NATSConfig
	Server   ServerConfig
	Admin    AdminConfig
	Log      LogConfig
}

type BotConfig struct {
	Platform string
	Workers  int
}

type TelegramConfig struct {
	Token string
	Debug bool
}

type XMPPConfig struct {
	ComponentHost   string
	ComponentPort   int
	ComponentName   string
	ComponentSecret string
}

func (c XMPPConfig) ComponentAddr() string {
	return fmt.Sprintf("%s:%d", c.ComponentHost, c.ComponentPort)
}

type GeminiConfig struct {
	APIKey     string
	Models     []string
	ModelsFile string
	Timeout    time.Duration
}

type QuotaConfig struct {
	Store      string
	DailyLimit int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL string
}

// Enabled reports whether usage events should be published.
func (c NATSConfig) Enabled() bool {
	return c.URL != ""
}

type ServerConfig struct {
	Enabled bool
	Host    string
	Port    int
}

type AdminConfig struct {
	JWTSecret          string
	TokenExpiry        time.Duration
	CORSAllowedOrigins []string
	RateLimitPerMinute int
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Bot: BotConfig{
			Platform: strings.ToLower(k.String("bot.platform")),
			Workers:  k.Int("bot.workers"),
		},
		Telegram: TelegramConfig{
			Token: k.String("telegram.token"),
			Debug: k.Bool("telegram.debug"),
		},
		XMPP: XMPPConfig{
			ComponentHost:   k.String("xmpp.component.host"),
			ComponentPort:   k.Int("xmpp.component.port"),
			ComponentName:   k.String("xmpp.component.name"),
			ComponentSecret: k.String("xmpp.component.secret"),
		},
		Gemini: GeminiConfig{
			APIKey:     k.String("gemini.api.key"),
			Models:     splitList(k.String("gemini.models")),
			ModelsFile: k.String("gemini.catalog"),
		},
		Quota: QuotaConfig{
			Store:      strings.ToLower(k.String("quota.store")),
			DailyLimit: k.Int("quota.daily.limit"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		Server: ServerConfig{
			Enabled: k.String("server.enabled") != "false",
			Host:    k.String("server.host"),
			Port:    k.Int("server.port"),
		},
		Admin: AdminConfig{
			JWTSecret:          k.String("admin.jwt.secret"),
			CORSAllowedOrigins: splitList(k.String("admin.cors.origins")),
			RateLimitPerMinute: k.Int("admin.rate.limit"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
			File:   k.String("log.file"),
		},
	}

	// Apply defaults
	if cfg.Bot.Platform == "" {
		cfg.Bot.Platform = PlatformTelegram
	}
	if cfg.Bot.Workers == 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.XMPP.ComponentHost == "" {
		cfg.XMPP.ComponentHost = "localhost"
	}
	if cfg.XMPP.ComponentPort == 0 {
		cfg.XMPP.ComponentPort = 5275
	}
	if cfg.XMPP.ComponentName == "" {
		cfg.XMPP.ComponentName = "calories.localhost"
	}
	if cfg.Quota.Store == "" {
		cfg.Quota.Store = StoreMemory
	}
	if cfg.Quota.DailyLimit == 0 {
		cfg.Quota.DailyLimit = 3
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Admin.RateLimitPerMinute == 0 {
		cfg.Admin.RateLimitPerMinute = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Candidate models: catalog file wins over the env list, env list over defaults.
	if cfg.Gemini.ModelsFile != "" {
		models, err := LoadModelCatalog(cfg.Gemini.ModelsFile)
		if err != nil {
			return nil, fmt.Errorf("GEMINI_CATALOG %s: %w", cfg.Gemini.ModelsFile, err)
		}
		cfg.Gemini.Models = models
	}
	if len(cfg.Gemini.Models) == 0 {
		cfg.Gemini.Models = append([]string(nil), DefaultModels...)
	}

	// Parse durations
	timeoutStr := k.String("gemini.timeout")
	if timeoutStr == "" {
		timeoutStr = "60s"
	}
	cfg.Gemini.Timeout, err = time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("parsing gemini timeout: %w", err)
	}

	expiryStr := k.String("admin.token.expiry")
	if expiryStr == "" {
		expiryStr = "24h"
	}
	cfg.Admin.TokenExpiry, err = time.ParseDuration(expiryStr)
	if err != nil {
		return nil, fmt.Errorf("parsing admin token expiry: %w", err)
	}

	return cfg, nil
}

// ModelCatalog is the YAML document referenced by GEMINI_CATALOG.
//
//	models:
//	  - name: gemini-1.5-flash
//	  - name: gemini-1.0-pro-vision
//	    disabled: true
type ModelCatalog struct {
	Models []ModelEntry `yaml:"models"`
}

type ModelEntry struct {
	Name     string `yaml:"name"`
	Disabled bool   `yaml:"disabled"`
}

// LoadModelCatalog reads the ordered candidate list from a YAML file, skipping disabled entries.
func LoadModelCatalog(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model catalog: %w", err)
	}
	return ParseModelCatalog(data)
}

// ErrEmptyModelCatalog is returned when a catalog leaves no model to try.
var ErrEmptyModelCatalog = errors.New("model catalog has no enabled models")

func ParseModelCatalog(data []byte) ([]string, error) {
	var catalog ModelCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parsing model catalog: %w", err)
	}
	models := make([]string, 0, len(catalog.Models))
	for _, m := range catalog.Models {
		name := strings.TrimSpace(m.Name)
		if name == "" || m.Disabled {
			continue
		}
		models = append(models, name)
	}
	if len(models) == 0 {
		return nil, ErrEmptyModelCatalog
	}
	return models, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
