package common

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds everything the application reads from the environment.
// It is built once in main and handed to each module; nothing reads
// os.Getenv after startup.
type Config struct {
	SessionSecret     string // required, no fallback
	DatabaseFile      string
	AnalyticsDatabase string // empty disables analytics
	Port              string

	SMTPHost     string // empty disables order emails
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
}

// LoadConfig reads .env (if present) and the environment.
// The session secret has no default: the original deployment shipped a
// hard-coded fallback key, which is exactly what we refuse to do here.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		SessionSecret:     os.Getenv("SESSION_SECRET"),
		DatabaseFile:      os.Getenv("DATABASE_FILE"),
		AnalyticsDatabase: os.Getenv("ANALYTICS_DATABASE_FILE"),
		Port:              os.Getenv("PORT"),
		SMTPHost:          os.Getenv("SMTP_HOST"),
		SMTPPort:          os.Getenv("SMTP_PORT"),
		SMTPUser:          os.Getenv("SMTP_USER"),
		SMTPPassword:      os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:          os.Getenv("SMTP_FROM"),
	}

	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET environment variable not set")
	}
	if cfg.DatabaseFile == "" {
		cfg.DatabaseFile = "bookhaven.db"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	return cfg, nil
}
