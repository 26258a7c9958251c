package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Server
	Port string
	Env  string
	// Empty allows any origin.
	CORSAllowedOrigins []string

	// Database
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string
	DBTxTimeout time.Duration

	// JWT (verification only; tokens are issued by the identity service)
	JWTSecret string

	// Locking for dividend runs. Empty RedisAddr selects the in-process locker.
	RedisAddr       string
	RedisPassword   string
	LockWaitTimeout time.Duration
	LockTTL         time.Duration

	// Field encryption for shareholder PII
	FieldEncryptionSecret string

	// API keys (comma-separated, newest first) for automated statement
	// uploads. Empty disables the endpoint.
	PipelineAPIKey string

	// Bank statement inbox. Empty BankInboxDir disables the jobs.
	BankInboxDir      string
	BankInboxCoopID   string
	BankInboxSchedule string
	BankInboxWatch    bool
	BankInboxWorkers  int
}

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	config := &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		CORSAllowedOrigins: getList("CORS_ALLOWED_ORIGINS"),

		// Database
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "coopledger"),
		DBPassword:  getEnv("DB_PASSWORD", "coopledger"),
		DBName:      getEnv("DB_NAME", "coopledger"),
		DBSSLMode:   getEnv("DB_SSLMODE", "disable"),
		DBTxTimeout: getDuration("DB_TX_TIMEOUT", 30*time.Second),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "fallback-secret-key-for-dev-only"),

		// Locking
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		LockWaitTimeout: getDuration("LOCK_WAIT_TIMEOUT", 10*time.Second),
		LockTTL:         getDuration("LOCK_TTL", 2*time.Minute),

		FieldEncryptionSecret: getEnv("FIELD_ENCRYPTION_SECRET", "fallback-field-secret-for-dev-only"),
		PipelineAPIKey:        getEnv("PIPELINE_API_KEY", ""),

		// Bank inbox
		BankInboxDir:      getEnv("BANK_INBOX_DIR", ""),
		BankInboxCoopID:   getEnv("BANK_INBOX_COOP_ID", ""),
		BankInboxSchedule: getEnv("BANK_INBOX_SCHEDULE", "*/15 * * * *"),
		BankInboxWatch:    getBool("BANK_INBOX_WATCH", false),
		BankInboxWorkers:  getInt("BANK_INBOX_WORKERS", 2),
	}

	appConfig = config
	return config, nil
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		var err error
		appConfig, err = Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	return appConfig
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getList(key string) []string {
	var out []string
	for _, v := range strings.Split(getEnv(key, ""), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %s\n", key, raw, defaultValue)
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		log.Printf("Warning: invalid %s value '%s', falling back to %d\n", key, raw, defaultValue)
		return defaultValue
	}
	return n
}

func getBool(key string, defaultValue bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return b
}
