package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Algovate2025/telegram-support-bot/pkg/util"
)

// Config aggregates runtime configuration for the bot.
type Config struct {
	App        AppConfig
	Gateway    GatewayConfig
	Store      StoreConfig
	Outbox     OutboxConfig
	Escalation EscalationConfig
	Logger     LoggerConfig
}

// AppConfig controls the ops HTTP server.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	RequestTimeoutSeconds int
}

// GatewayConfig holds Telegram gateway values.
type GatewayConfig struct {
	BotToken       string
	SupportChatID  int64
	AdminIDs       []int64
	WelcomeMessage string
	TimeoutSeconds int
	PollSeconds    int
}

// StoreConfig holds durable store values. The database file, its WAL and the
// shared-memory index must live together on the same durable volume.
type StoreConfig struct {
	DataDir       string
	BusyTimeoutMS int
}

// OutboxConfig tunes delivery worker behavior.
type OutboxConfig struct {
	BatchLimit      int
	IntervalSeconds int
	RetryBaseSec    int
	RetryMaxSec     int
	RetryFactor     float64
	MaxAttempts     int
}

// EscalationConfig tunes the follow-up sweep.
type EscalationConfig struct {
	ThresholdNormalHours int
	ThresholdVIPHours    int
	Grace1Fraction       float64
	Grace2Fraction       float64
	SweepSeconds         int
	ArchiveAfterDays     int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// Load reads configuration from environment variables, applying defaults
// where possible. Missing required values fail the load.
func Load() (*Config, error) {
	_ = godotenv.Load()

	botToken := os.Getenv("BOT_TOKEN")
	if botToken == "" {
		return nil, util.NewConfigurationMissing("BOT_TOKEN")
	}

	supportChat, err := strconv.ParseInt(os.Getenv("SUPPORT_CHAT_ID"), 10, 64)
	if err != nil {
		return nil, util.NewConfigurationMissing("SUPPORT_CHAT_ID")
	}

	adminIDs, err := parseIDList(os.Getenv("ADMIN_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_IDS: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "telegram-support-bot"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Gateway: GatewayConfig{
			BotToken:       botToken,
			SupportChatID:  supportChat,
			AdminIDs:       adminIDs,
			WelcomeMessage: getEnv("WELCOME_MESSAGE", "Hey! Write me your question and I will get back to you as soon as possible."),
			TimeoutSeconds: getEnvAsInt("GATEWAY_TIMEOUT_SECONDS", 30),
			PollSeconds:    getEnvAsInt("GATEWAY_POLL_SECONDS", 25),
		},
		Store: StoreConfig{
			DataDir:       getEnv("DATA_DIR", "data"),
			BusyTimeoutMS: getEnvAsInt("SQLITE_BUSY_TIMEOUT_MS", 5000),
		},
		Outbox: OutboxConfig{
			BatchLimit:      getEnvAsInt("OUTBOX_BATCH_LIMIT", 20),
			IntervalSeconds: getEnvAsInt("OUTBOX_INTERVAL_SECONDS", 5),
			RetryBaseSec:    getEnvAsInt("RETRY_BASE_SECONDS", 5),
			RetryMaxSec:     getEnvAsInt("RETRY_MAX_SECONDS", 600),
			RetryFactor:     getEnvAsFloat("RETRY_FACTOR", 2.0),
			MaxAttempts:     getEnvAsInt("RETRY_MAX_ATTEMPTS", 10),
		},
		Escalation: EscalationConfig{
			ThresholdNormalHours: getEnvAsInt("FOLLOWUP_HOURS_NORMAL", 24),
			ThresholdVIPHours:    getEnvAsInt("FOLLOWUP_HOURS_VIP", 12),
			Grace1Fraction:       getEnvAsFloat("ESCALATION_GRACE1_FRACTION", 0.25),
			Grace2Fraction:       getEnvAsFloat("ESCALATION_GRACE2_FRACTION", 0.75),
			SweepSeconds:         getEnvAsInt("ESCALATION_SWEEP_SECONDS", 60),
			ArchiveAfterDays:     getEnvAsInt("ARCHIVE_AFTER_DAYS", 14),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// DatabasePath returns the SQLite file path inside the data directory.
func (s StoreConfig) DatabasePath() string {
	return filepath.Join(s.DataDir, "support.db")
}

// IsAdmin reports whether id belongs to the configured administrator set.
func (g GatewayConfig) IsAdmin(id int64) bool {
	for _, admin := range g.AdminIDs {
		if admin == id {
			return true
		}
	}
	return false
}

func parseIDList(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
