package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds the runtime settings read from the environment.
type Config struct {
	HTTPAddr         string `validate:"required"`
	DBDriver         string `validate:"oneof=mysql sqlite"`
	DBDSN            string `validate:"required_if=DBDriver mysql"`
	SQLitePath       string `validate:"required_if=DBDriver sqlite"`
	RabbitMQURL      string
	EventQueue       string `validate:"required"`
	JWTSecret        string `validate:"required,min=16"`
	TemplateDir      string
	ReminderSchedule string
	ReminderInterval time.Duration `validate:"gt=0"`
	LogLevel         string        `validate:"oneof=trace debug info warn warning error"`
	LogFormat        string        `validate:"oneof=text json"`
}

// Load reads the configuration. Call godotenv.Load before it to pick up a
// .env file.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		DBDriver:         strings.ToLower(getEnv("DB_DRIVER", "mysql")),
		DBDSN:            os.Getenv("DB_DSN"),
		SQLitePath:       getEnv("SQLITE_PATH", "data/review.db"),
		RabbitMQURL:      os.Getenv("RABBITMQ_URL"),
		EventQueue:       getEnv("EVENT_QUEUE", "assignment_events"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		TemplateDir:      getEnv("TEMPLATE_DIR", "templates"),
		ReminderSchedule: getEnv("REMINDER_SCHEDULE", "@every 1h"),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}
	interval, err := time.ParseDuration(getEnv("REMINDER_INTERVAL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid REMINDER_INTERVAL: %w", err)
	}
	cfg.ReminderInterval = interval
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
