package config

import (
	"sync"
	"time"
)

// Config is the root configuration for the modbot webhook service.
type Config struct {
	Telegram    TelegramConfig    `json:"telegram"`
	Provider    ProviderConfig    `json:"provider"`
	Features    FeaturesConfig    `json:"features"`
	Cache       CacheConfig       `json:"cache"`
	Etiquette   EtiquetteConfig   `json:"etiquette"`
	Typing      TypingConfig      `json:"typing"`
	Gateway     GatewayConfig     `json:"gateway"`
	Database    DatabaseConfig    `json:"database,omitempty"`
	Telemetry   TelemetryConfig   `json:"telemetry,omitempty"`
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
	mu          sync.RWMutex
}

// TelegramConfig configures the chat platform side.
// Token is NEVER read from config.json (secret) — only from env MODBOT_TELEGRAM_TOKEN.
type TelegramConfig struct {
	Token          string  `json:"-"`
	APIServer      string  `json:"api_server,omitempty"`       // Bot API base URL (default: telego's api.telegram.org)
	Proxy          string  `json:"proxy,omitempty"`            // HTTP proxy for Bot API calls
	BotUsername    string  `json:"bot_username"`               // without "@", used for mention detection
	WebhookSecret  string  `json:"-"`                          // X-Telegram-Bot-Api-Secret-Token (env only)
	SetupBaseURL   string  `json:"setup_base_url,omitempty"`   // web setup page, token appended as ?token=
	SendRate       float64 `json:"send_rate,omitempty"`        // outbound Bot API calls per second (0 = unlimited)
	SendBurst      int     `json:"send_burst,omitempty"`
	ReplyToMessage bool    `json:"reply_to_message,omitempty"` // thread answers under the triggering message
}

// ProviderConfig configures the OpenAI-compatible completion backend.
type ProviderConfig struct {
	Name           string  `json:"name"`
	APIKey         string  `json:"-"` // from env MODBOT_OPENROUTER_API_KEY only
	APIBase        string  `json:"api_base"`
	DefaultModel   string  `json:"default_model"`
	FastModel      string  `json:"fast_model"` // model returned by the router when routing is enabled
	Temperature    float64 `json:"temperature"`
	TimeoutSeconds int     `json:"timeout_seconds"`
	HistoryLimit   int     `json:"history_limit"` // recent messages embedded in the prompt
}

// FeaturesConfig holds the feature flags.
type FeaturesConfig struct {
	Streaming           bool `json:"streaming"`
	Cache               bool `json:"cache"`
	Router              bool `json:"router"`
	DebugMetrics        bool `json:"debug_metrics"`
	ComplexityThreshold int  `json:"complexity_threshold"`
}

// CacheConfig sizes the group context cache.
type CacheConfig struct {
	TTLSeconds int `json:"ttl_seconds"`
	MaxEntries int `json:"max_entries"`
}

// TTL returns the configured entry lifetime.
func (c CacheConfig) TTL() time.Duration { return time.Duration(c.TTLSeconds) * time.Second }

// EtiquetteConfig holds the per-chat reply pacing rules.
type EtiquetteConfig struct {
	MinIntervalMS   int `json:"min_interval_ms"`   // halved for priority messages
	HumanDeferMS    int `json:"human_defer_ms"`    // non-priority replies wait this long after a human message
	WindowSeconds   int `json:"window_seconds"`
	MaxPerWindow    int `json:"max_per_window"`
	MaxTrackedChats int `json:"max_tracked_chats"` // bound on per-chat state entries
}

// TypingConfig configures the "typing…" heartbeat.
type TypingConfig struct {
	IntervalMS int `json:"interval_ms"`
}

// GatewayConfig configures the HTTP listener receiving webhook calls.
type GatewayConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	WebhookPath     string `json:"webhook_path"`
	DispatchTimeout int    `json:"dispatch_timeout_seconds"` // upper bound for one webhook dispatch
}

// DatabaseConfig selects the persistence backend.
// PostgresDSN is NEVER read from config.json (secret) — only from env MODBOT_POSTGRES_DSN.
type DatabaseConfig struct {
	Mode        string `json:"mode,omitempty"` // "sqlite" (default) or "postgres"
	PostgresDSN string `json:"-"`
	SQLitePath  string `json:"sqlite_path,omitempty"`
}

// IsPostgres returns true if persistence goes to Postgres.
func (d DatabaseConfig) IsPostgres() bool {
	return d.Mode == "postgres" && d.PostgresDSN != ""
}

// TelemetryConfig configures OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`     // e.g. "localhost:4317"
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext transport for local collectors
	ServiceName string            `json:"service_name,omitempty"` // default "modbot"
	Headers     map[string]string `json:"headers,omitempty"`
}

// MaintenanceConfig schedules background housekeeping.
type MaintenanceConfig struct {
	PurgeSchedule string `json:"purge_schedule,omitempty"` // cron expression for expired setup-session cleanup
}
