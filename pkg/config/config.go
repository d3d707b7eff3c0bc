package config

import (
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	AppEnv               string
	Port                 string
	FrontendURL          string
	AdminUsername        string
	AdminPassword        string
	JWTSecret            string
	DatabasePath         string
	SendGridAPIKey       string
	AlertEmailFrom       string
	AlertEmailTo         string
	EnableScheduler      bool
	CheckIntervalMinutes int
}

// Load reads configuration from environment variables
func Load() *Config {
	enableScheduler := os.Getenv("ENABLE_SCHEDULER") == "true"

	return &Config{
		AppEnv:               getEnv("APP_ENV", "development"),
		Port:                 getEnv("PORT", "8080"),
		FrontendURL:          getEnv("FRONTEND_URL", "http://localhost:3000"),
		AdminUsername:        getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:        getEnv("ADMIN_PASSWORD", "defaultPasswordLaterProvided"),
		JWTSecret:            getEnv("JWT_SECRET", "change-this-secret-in-production"),
		DatabasePath:         getEnv("DATABASE_PATH", "./data/etfs.db"),
		SendGridAPIKey:       os.Getenv("SENDGRID_API_KEY"),
		AlertEmailFrom:       os.Getenv("ALERT_EMAIL_FROM"),
		AlertEmailTo:         os.Getenv("ALERT_EMAIL_TO"),
		EnableScheduler:      enableScheduler,
		CheckIntervalMinutes: getEnvInt("CHECK_INTERVAL_MINUTES", 15),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}
