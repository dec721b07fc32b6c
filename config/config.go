package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string
	// DatabaseURL selects Postgres storage. Empty keeps everything in memory.
	DatabaseURL      string
	DBConnectRetries int
	JWTSecret        string
	LogLevel         string
	MinEditLevel     int
	CORSOrigin       string
	ShutdownTimeout  time.Duration
}

func Load() Config {
	return Config{
		Addr:             getenv("ADDR", ":8080"),
		DatabaseURL:      getenv("DATABASE_URL", ""),
		DBConnectRetries: getenvInt("DB_CONNECT_RETRIES", 5),
		JWTSecret:        getenv("JWT_SECRET", ""),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		MinEditLevel:     getenvInt("MIN_EDIT_LEVEL", 2),
		CORSOrigin:       getenv("CORS_ORIGIN", "*"),
		ShutdownTimeout:  time.Duration(getenvInt("SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second,
	}
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := getenv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
