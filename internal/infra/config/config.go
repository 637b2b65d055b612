package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
type AppConfig struct {
	DatabaseURL string
	ListenAddr  string
	LogLevel    string
	Environment string

	// TickCronSpec drives the due-definition scan; hourly by default.
	TickCronSpec string
	TickWorkers  int
	// TickTimeout bounds one whole tick; DefinitionTimeout bounds one
	// definition's claim-and-generate work within it.
	TickTimeout       time.Duration
	DefinitionTimeout time.Duration
	// SendTimeout bounds a single channel delivery.
	SendTimeout time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	EmailFrom    string

	PushEndpoint  string
	PushServerKey string

	// TelegramToken is optional; the telegram channel is only wired
	// when it is present.
	TelegramToken string
}

// Load reads configuration from environment variables and .env file
// (if present). godotenv.Load will not override existing variables.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.ListenAddr = getEnvDefault("LISTEN_ADDR", ":8080")
	cfg.LogLevel = strings.ToLower(getEnvDefault("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getEnvDefault("ENVIRONMENT", "development"))

	cfg.TickCronSpec = getEnvDefault("TICK_CRON_SPEC", "0 * * * *")

	var err error
	if cfg.TickWorkers, err = getEnvInt("TICK_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.TickTimeout, err = getEnvDuration("TICK_TIMEOUT", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.DefinitionTimeout, err = getEnvDuration("DEFINITION_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SendTimeout, err = getEnvDuration("SEND_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	if cfg.SMTPPort, err = getEnvInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.EmailFrom = getEnvDefault("EMAIL_FROM", "alerts@localhost")

	cfg.PushEndpoint = getEnvDefault("PUSH_ENDPOINT", "https://fcm.googleapis.com/fcm/send")
	cfg.PushServerKey = os.Getenv("PUSH_SERVER_KEY")

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")

	return cfg, nil
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
