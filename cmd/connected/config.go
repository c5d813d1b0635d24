package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the terminal client needs, read from the
// environment with an optional .env file for development.
type Config struct {
	// BaseURL is the Connected backend, e.g. http://localhost:5000.
	BaseURL string
	// UserID and Token are the injected identity, when the launcher knows
	// it. They take precedence over the persisted credential.
	UserID string
	Token  string
	// CredentialFile is the persisted credential location.
	CredentialFile string
	// RedisAddr, when set, stores the credential in Redis instead of the
	// file.
	RedisAddr string
	// HistoryDB is the local SQLite history cache; empty disables caching.
	HistoryDB string
	// PollInterval is how often the open conversation is refreshed.
	PollInterval time.Duration
}

// loadConfig reads the environment into a Config, applying defaults. A .env
// file is honored when present and silently skipped otherwise.
func loadConfig() (Config, error) {
	_ = godotenv.Load()

	pollSeconds, err := strconv.Atoi(getEnv("CONNECTED_POLL_SECONDS", "10"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid CONNECTED_POLL_SECONDS: %w", err)
	}

	home, _ := os.UserHomeDir()
	cfg := Config{
		BaseURL:        getEnv("CONNECTED_BASE_URL", "http://localhost:5000"),
		UserID:         os.Getenv("CONNECTED_USER_ID"),
		Token:          os.Getenv("CONNECTED_TOKEN"),
		CredentialFile: getEnv("CONNECTED_CREDENTIAL_FILE", filepath.Join(home, ".config", "connected", "credential.json")),
		RedisAddr:      os.Getenv("CONNECTED_REDIS_ADDR"),
		HistoryDB:      getEnv("CONNECTED_HISTORY_DB", filepath.Join(home, ".local", "share", "connected", "history.db")),
		PollInterval:   time.Duration(pollSeconds) * time.Second,
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
