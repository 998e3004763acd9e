package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{
			BotUsername:  "modfi_bot",
			SetupBaseURL: "https://modfi.ai/setup",
			SendRate:     25,
			SendBurst:    5,
		},
		Provider: ProviderConfig{
			Name:           "openrouter",
			APIBase:        "https://openrouter.ai/api/v1",
			DefaultModel:   "x-ai/grok-4-fast",
			FastModel:      "x-ai/grok-4-fast",
			Temperature:    0.7,
			TimeoutSeconds: 60,
			HistoryLimit:   10,
		},
		Features: FeaturesConfig{
			Streaming:           false,
			Cache:               true,
			Router:              true,
			DebugMetrics:        true,
			ComplexityThreshold: 1500,
		},
		Cache: CacheConfig{
			TTLSeconds: 90,
			MaxEntries: 500,
		},
		Etiquette: EtiquetteConfig{
			MinIntervalMS:   3000,
			HumanDeferMS:    5000,
			WindowSeconds:   60,
			MaxPerWindow:    8,
			MaxTrackedChats: 4096,
		},
		Typing: TypingConfig{
			IntervalMS: 4000,
		},
		Gateway: GatewayConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			WebhookPath:     "/telegram/webhook",
			DispatchTimeout: 120,
		},
		Database: DatabaseConfig{
			Mode:       "sqlite",
			SQLitePath: "~/.modbot/modbot.db",
		},
		Maintenance: MaintenanceConfig{
			PurgeSchedule: "0 * * * *",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: defaults plus env are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	// Secrets
	envStr("MODBOT_TELEGRAM_TOKEN", &c.Telegram.Token)
	envStr("MODBOT_WEBHOOK_SECRET", &c.Telegram.WebhookSecret)
	envStr("MODBOT_OPENROUTER_API_KEY", &c.Provider.APIKey)
	envStr("MODBOT_POSTGRES_DSN", &c.Database.PostgresDSN)

	// Chat platform
	envStr("MODBOT_TELEGRAM_API_SERVER", &c.Telegram.APIServer)
	envStr("MODBOT_TELEGRAM_PROXY", &c.Telegram.Proxy)
	envStr("MODBOT_BOT_USERNAME", &c.Telegram.BotUsername)
	envStr("MODBOT_SETUP_BASE_URL", &c.Telegram.SetupBaseURL)

	// Completion backend
	envStr("MODBOT_PROVIDER_API_BASE", &c.Provider.APIBase)
	envStr("MODBOT_MODEL", &c.Provider.DefaultModel)
	envStr("MODBOT_FAST_MODEL", &c.Provider.FastModel)
	envInt("MODBOT_PROVIDER_TIMEOUT", &c.Provider.TimeoutSeconds)

	// Feature flags
	envBool("MODBOT_STREAMING_ENABLED", &c.Features.Streaming)
	envBool("MODBOT_CACHE_ENABLED", &c.Features.Cache)
	envBool("MODBOT_ROUTER_ENABLED", &c.Features.Router)
	envBool("MODBOT_DEBUG_METRICS", &c.Features.DebugMetrics)
	envInt("MODBOT_COMPLEXITY_THRESHOLD", &c.Features.ComplexityThreshold)

	// Gateway host/port
	envStr("MODBOT_HOST", &c.Gateway.Host)
	if v := os.Getenv("MODBOT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}

	// Database
	envStr("MODBOT_DB_MODE", &c.Database.Mode)
	envStr("MODBOT_SQLITE_PATH", &c.Database.SQLitePath)
	if c.Database.PostgresDSN != "" && os.Getenv("MODBOT_DB_MODE") == "" {
		c.Database.Mode = "postgres"
	}

	// Telemetry
	envStr("MODBOT_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("MODBOT_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("MODBOT_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	envBool("MODBOT_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envBool("MODBOT_TELEMETRY_INSECURE", &c.Telemetry.Insecure)

	envStr("MODBOT_PURGE_SCHEDULE", &c.Maintenance.PurgeSchedule)
}

// Validate reports missing settings required to serve webhooks.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Telegram.Token == "" {
		return fmt.Errorf("MODBOT_TELEGRAM_TOKEN is not set")
	}
	if c.Provider.APIKey == "" {
		return fmt.Errorf("MODBOT_OPENROUTER_API_KEY is not set")
	}
	if c.Database.Mode == "postgres" && c.Database.PostgresDSN == "" {
		return fmt.Errorf("database mode is postgres but MODBOT_POSTGRES_DSN is not set")
	}
	return nil
}

// Hash returns a short SHA-256 hash of the non-secret config, logged at startup.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
