package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds every runtime setting, loaded once from the environment.
type AppConfig struct {
	Port         string
	DatabasePath string
	LogLevel     string

	JWTSecret          string
	CSRFAuthKey        []byte
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	MaxImportSizeBytes int64

	MaxProjectsPerUser        int
	MaxTransactionsPerProject int

	SimulationCacheTTL time.Duration

	FrontendBaseURL string
}

// Cfg is the global configuration instance, set by LoadConfig.
var Cfg *AppConfig

// LoadConfig populates Cfg from the environment, reading a .env file from the
// working directory or its parent when one exists. Missing required secrets
// abort startup.
func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		// Common when the server runs from the backend/ subdirectory.
		errEnv = godotenv.Load("../.env")
	}
	switch {
	case errEnv == nil:
		log.Println(".env file loaded.")
	case os.IsNotExist(errEnv):
		log.Println("No .env file found; relying on OS environment variables.")
	default:
		log.Printf("Warning: could not read .env file: %v. Relying on OS environment variables.", errEnv)
	}

	Cfg = &AppConfig{
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "./capsim.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		JWTSecret:          getRequiredEnv("JWT_SECRET"),
		CSRFAuthKey:        []byte(getRequiredEnv("CSRF_AUTH_KEY")),
		AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 60*time.Minute),
		RefreshTokenExpiry: getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 168*time.Hour),
		MaxImportSizeBytes: getEnvAsInt64("MAX_IMPORT_SIZE_BYTES", 5*1024*1024),

		MaxProjectsPerUser:        getEnvAsInt("MAX_PROJECTS_PER_USER", 20),
		MaxTransactionsPerProject: getEnvAsInt("MAX_TRANSACTIONS_PER_PROJECT", 500),

		SimulationCacheTTL: getEnvAsDuration("SIMULATION_CACHE_TTL", 10*time.Minute),

		FrontendBaseURL: getEnv("APP_BASE_URL", "http://localhost:3000"),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, FrontendURL=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.FrontendBaseURL)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getRequiredEnv(key string) string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		log.Fatalf("FATAL: required environment variable %s is not set.", key)
	}
	return value
}

func getEnvAsInt(key string, fallback int) int {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	log.Printf("Invalid integer for %s (%q), using default %d", key, s, fallback)
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	log.Printf("Invalid integer for %s (%q), using default %d", key, s, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	if v, err := time.ParseDuration(s); err == nil {
		return v
	}
	log.Printf("Invalid duration for %s (%q), using default %s", key, s, fallback)
	return fallback
}
