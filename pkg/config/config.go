// Package config loads and validates environment-driven configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// RoomsConfig holds the three Matrix room ids the bot operates in.
type RoomsConfig struct {
	Room1ID string // intake room: PDF drops and final replies
	Room2ID string // doctor room: widget, decision replies
	Room3ID string // scheduler room: appointment requests and replies
}

// MatrixConfig holds the chat transport configuration.
type MatrixConfig struct {
	HomeserverURL string
	BotUserID     string
	AccessToken   string
	SyncTimeout   time.Duration // long-poll timeout passed to /sync
	PollInterval  time.Duration // pause between poller iterations
}

// WebhookConfig holds the decision webhook configuration.
type WebhookConfig struct {
	PublicURL  string
	HMACSecret string
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// WorkerConfig controls the job worker pool.
type WorkerConfig struct {
	// Count is the number of worker goroutines per replica/pod. Each worker
	// independently claims and processes job batches.
	Count int

	// ClaimLimit is the maximum number of due jobs claimed per iteration.
	ClaimLimit int

	// PollInterval is the sleep applied when a claim returns no jobs.
	PollInterval time.Duration
}

// HTTPConfig controls the API server and all outbound HTTP clients.
type HTTPConfig struct {
	Port           string
	RequestTimeout time.Duration // per-request wall clock, outbound and inbound
}

// LLM runtime modes.
const (
	LLMModeDeterministic = "deterministic"
	LLMModeProvider      = "provider"
)

// LLMConfig selects the LLM runtime and its provider settings.
type LLMConfig struct {
	RuntimeMode  string // "deterministic" or "provider"
	OpenAIAPIKey string
	ModelLLM1    string
	ModelLLM2    string

	// LLM2Enabled toggles the suggestion stage. When off, the pipeline
	// persists a reconciled default suggestion instead of calling the model.
	LLM2Enabled bool
}

// BootstrapConfig controls first-run admin creation. AdminPassword and
// AdminPasswordFile are mutually exclusive; exactly one must be set when
// AdminEmail is set.
type BootstrapConfig struct {
	AdminEmail        string
	AdminPassword     string
	AdminPasswordFile string
}

// Config is the full resolved configuration of one process.
type Config struct {
	Rooms     RoomsConfig
	Matrix    MatrixConfig
	Webhook   WebhookConfig
	Database  DatabaseConfig
	Worker    WorkerConfig
	HTTP      HTTPConfig
	LLM       LLMConfig
	Bootstrap BootstrapConfig
	LogLevel  slog.Level
}

// Load reads configuration from the environment. Missing required variables
// and invalid combinations are returned as a single error so operators see
// the complete list at once.
func Load() (*Config, error) {
	var missing []string
	required := func(key string) string {
		val := os.Getenv(key)
		if val == "" {
			missing = append(missing, key)
		}
		return val
	}

	cfg := &Config{
		Rooms: RoomsConfig{
			Room1ID: required("ROOM1_ID"),
			Room2ID: required("ROOM2_ID"),
			Room3ID: required("ROOM3_ID"),
		},
		Matrix: MatrixConfig{
			HomeserverURL: required("MATRIX_HOMESERVER_URL"),
			BotUserID:     required("MATRIX_BOT_USER_ID"),
			AccessToken:   required("MATRIX_ACCESS_TOKEN"),
			SyncTimeout:   time.Duration(getEnvInt("MATRIX_SYNC_TIMEOUT_MS", 30000)) * time.Millisecond,
			PollInterval:  time.Duration(getEnvInt("MATRIX_POLL_INTERVAL_SECONDS", 2)) * time.Second,
		},
		Webhook: WebhookConfig{
			PublicURL:  required("WEBHOOK_PUBLIC_URL"),
			HMACSecret: required("WEBHOOK_HMAC_SECRET"),
		},
		Database: DatabaseConfig{
			URL:             required("DATABASE_URL"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Worker: WorkerConfig{
			Count:        getEnvInt("WORKER_COUNT", 2),
			ClaimLimit:   getEnvInt("WORKER_CLAIM_LIMIT", 10),
			PollInterval: time.Duration(getEnvInt("WORKER_POLL_INTERVAL_SECONDS", 2)) * time.Second,
		},
		HTTP: HTTPConfig{
			Port:           getEnvOrDefault("HTTP_PORT", "8080"),
			RequestTimeout: time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		LLM: LLMConfig{
			RuntimeMode:  getEnvOrDefault("LLM_RUNTIME_MODE", LLMModeDeterministic),
			OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
			ModelLLM1:    getEnvOrDefault("OPENAI_MODEL_LLM1", "gpt-4o"),
			ModelLLM2:    getEnvOrDefault("OPENAI_MODEL_LLM2", "gpt-4o"),
			LLM2Enabled:  getEnvOrDefault("LLM2_ENABLED", "true") != "false",
		},
		Bootstrap: BootstrapConfig{
			AdminEmail:        os.Getenv("BOOTSTRAP_ADMIN_EMAIL"),
			AdminPassword:     os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
			AdminPasswordFile: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD_FILE"),
		},
		LogLevel: ParseLogLevel(os.Getenv("LOG_LEVEL")),
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LLM.RuntimeMode {
	case LLMModeDeterministic:
	case LLMModeProvider:
		if c.LLM.OpenAIAPIKey == "" {
			return fmt.Errorf("LLM_RUNTIME_MODE=provider requires OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("invalid LLM_RUNTIME_MODE %q (expected %q or %q)",
			c.LLM.RuntimeMode, LLMModeDeterministic, LLMModeProvider)
	}

	if c.Bootstrap.AdminEmail != "" {
		hasInline := c.Bootstrap.AdminPassword != ""
		hasFile := c.Bootstrap.AdminPasswordFile != ""
		if hasInline == hasFile {
			return fmt.Errorf("exactly one of BOOTSTRAP_ADMIN_PASSWORD or BOOTSTRAP_ADMIN_PASSWORD_FILE must be set with BOOTSTRAP_ADMIN_EMAIL")
		}
	}

	if c.Worker.Count < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1, got %d", c.Worker.Count)
	}
	if c.Worker.ClaimLimit < 1 {
		return fmt.Errorf("WORKER_CLAIM_LIMIT must be at least 1, got %d", c.Worker.ClaimLimit)
	}
	return nil
}

// RoomIDs returns the configured rooms in intake, doctor, scheduler order.
func (c *Config) RoomIDs() []string {
	return []string{c.Rooms.Room1ID, c.Rooms.Room2ID, c.Rooms.Room3ID}
}

// ParseLogLevel maps a LOG_LEVEL string to a slog level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
