package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for problems that must stop the process before it serves anything.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// Platform and its credentials
	switch c.Bot.Platform {
	case PlatformTelegram:
		if c.Telegram.Token == "" {
			errs = append(errs, "TELEGRAM_TOKEN is required")
		}
	case PlatformXMPP:
		if c.XMPP.ComponentSecret == "" {
			errs = append(errs, "XMPP_COMPONENT_SECRET is required")
		}
		if c.XMPP.ComponentPort < 1 || c.XMPP.ComponentPort > 65535 {
			errs = append(errs, fmt.Sprintf("XMPP_COMPONENT_PORT must be 1–65535, got %d", c.XMPP.ComponentPort))
		}
	default:
		errs = append(errs, fmt.Sprintf("BOT_PLATFORM must be %q or %q, got %q", PlatformTelegram, PlatformXMPP, c.Bot.Platform))
	}
	if c.Bot.Workers < 1 {
		errs = append(errs, fmt.Sprintf("BOT_WORKERS must be positive, got %d", c.Bot.Workers))
	}

	// Model service
	if c.Gemini.APIKey == "" {
		errs = append(errs, "GEMINI_API_KEY is required")
	}
	if len(c.Gemini.Models) == 0 {
		errs = append(errs, "at least one model must be configured in GEMINI_MODELS or GEMINI_CATALOG")
	}
	if c.Gemini.Timeout < 0 {
		errs = append(errs, "GEMINI_TIMEOUT must not be negative")
	}

	// Quota
	if c.Quota.Store != StoreMemory && c.Quota.Store != StoreRedis {
		errs = append(errs, fmt.Sprintf("QUOTA_STORE must be %q or %q, got %q", StoreMemory, StoreRedis, c.Quota.Store))
	}
	if c.Quota.DailyLimit < 1 {
		errs = append(errs, fmt.Sprintf("QUOTA_DAILY_LIMIT must be positive, got %d", c.Quota.DailyLimit))
	}
	if c.Quota.Store == StoreRedis && (c.Redis.Port < 1 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	// Admin server
	if c.Server.Enabled {
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
		}
		if c.Admin.JWTSecret != "" && len(c.Admin.JWTSecret) < 32 {
			errs = append(errs, "ADMIN_JWT_SECRET must be at least 32 characters")
		}
		// Admin API disabled: warn only
		if c.Admin.JWTSecret == "" {
			slog.Warn("ADMIN_JWT_SECRET is empty, admin API routes are disabled")
		}
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
