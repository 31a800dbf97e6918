package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

func init() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()
}

type Config struct {
	// Required
	TelegramBotToken string
	AgentAPIURL      string
	AgentAPIKey      string

	// Optional with defaults
	DBPath              string
	DefaultTimezone     string
	PollIntervalMinutes int

	// Optional integrations
	ResendAPIKey          string
	AlertEmailFrom        string
	AlertEmailTo          string
	GoogleCredentialsFile string
	GoogleTokenFile       string
}

func LoadFromEnv() *Config {
	cfg := &Config{
		// Required
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		AgentAPIURL:      os.Getenv("AGENT_API_URL"),
		AgentAPIKey:      os.Getenv("AGENT_API_KEY"),

		// Optional with defaults
		DBPath:              getEnvOrDefault("MAYORDOMO_DB_PATH", "./mayordomo.db"),
		DefaultTimezone:     getEnvOrDefault("MAYORDOMO_DEFAULT_TIMEZONE", "America/Santiago"),
		PollIntervalMinutes: getEnvAsIntOrDefault("MAYORDOMO_POLL_INTERVAL_MINUTES", 1),

		// Optional integrations
		ResendAPIKey:          os.Getenv("RESEND_API_KEY"),
		AlertEmailFrom:        os.Getenv("ALERT_EMAIL_FROM"),
		AlertEmailTo:          os.Getenv("ALERT_EMAIL_TO"),
		GoogleCredentialsFile: getEnvOrDefault("GOOGLE_CREDENTIALS_FILE", "./credentials.json"),
		GoogleTokenFile:       getEnvOrDefault("GOOGLE_TOKEN_FILE", "./token.json"),
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
