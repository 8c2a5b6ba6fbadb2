package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Server
	BindAddr string

	// Database
	DatabaseURL string

	// Solana
	SolanaRPCURL         string
	ProgramID            string
	AuthorityPubkey      string
	AuthorityKeypairPath string

	// Internal/admin auth
	InternalHMACSecret string

	// Match windows
	JoinTimeoutSeconds   int64
	SettleTimeoutSeconds int64

	// Worker polling
	FinalizerPollMs      int64
	TimeoutWatcherPollMs int64
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		Environment: getEnv("APP_ENV", "development"),

		BindAddr: getEnv("APP_BIND_ADDR", "0.0.0.0:8080"),

		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/solduel?sslmode=disable"),

		SolanaRPCURL:         getEnv("SOLANA_RPC_URL", "http://localhost:8899"),
		ProgramID:            getEnv("PROGRAM_ID", ""),
		AuthorityPubkey:      getEnv("AUTHORITY_PUBKEY", ""),
		AuthorityKeypairPath: getEnv("AUTHORITY_KEYPAIR_PATH", ""),

		InternalHMACSecret: getEnv("INTERNAL_HMAC_SECRET", ""),

		JoinTimeoutSeconds:   getEnvInt64("JOIN_TIMEOUT_SECONDS", 300),
		SettleTimeoutSeconds: getEnvInt64("SETTLE_TIMEOUT_SECONDS", 3600),

		FinalizerPollMs:      getEnvInt64("FINALIZER_POLL_MS", 2000),
		TimeoutWatcherPollMs: getEnvInt64("TIMEOUT_WATCHER_POLL_MS", 10000),
	}
}

// Validate checks the variables the workers cannot run without.
func (c *Config) Validate() error {
	required := map[string]string{
		"DATABASE_URL":           c.DatabaseURL,
		"PROGRAM_ID":             c.ProgramID,
		"AUTHORITY_PUBKEY":       c.AuthorityPubkey,
		"AUTHORITY_KEYPAIR_PATH": c.AuthorityKeypairPath,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("missing env var %s", name)
		}
	}
	if c.JoinTimeoutSeconds <= 0 || c.SettleTimeoutSeconds <= 0 {
		return fmt.Errorf("JOIN_TIMEOUT_SECONDS and SETTLE_TIMEOUT_SECONDS must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}
