package common

import (
	"os"

	"github.com/joho/godotenv"
)

// Config holds service configuration, loaded from environment variables.
type Config struct {
	Port         string
	DatabasePath string

	// CRM backend the wizard submits to
	CRMBaseURL string
	CRMToken   string

	// Shared secret for verifying inbound bearer tokens
	JWTSecret string
}

// LoadConfig reads configuration from the environment, loading a local .env
// file first when one exists.
func LoadConfig() *Config {
	godotenv.Load()

	return &Config{
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "lot_import.db"),
		CRMBaseURL:   getEnv("CRM_BASE_URL", "http://localhost:9000"),
		CRMToken:     getEnv("CRM_TOKEN", ""),
		JWTSecret:    getEnv("JWT_SECRET", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
