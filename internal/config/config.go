package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	ClinicTZ      string
	CORSOrigins   []string

	// Clinic backend REST API
	BackendBaseURL       string
	BackendAPIKey        string
	BackendTimeout       time.Duration
	BackendReadRetries   int
	BackendRetryBaseWait time.Duration
	ListPageSize         int

	// Patient -> plan resolution cache
	PlanCacheTTL     time.Duration
	PlanCacheBackend string // "memory" or "redis"
	RedisAddr        string
	RedisPassword    string
	RedisTLS         bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		ClinicTZ:    getEnv("CLINIC_TZ", "Local"),
		CORSOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),

		BackendBaseURL:       getEnv("BACKEND_BASE_URL", "http://localhost:3000"),
		BackendAPIKey:        getEnv("BACKEND_API_KEY", ""),
		BackendTimeout:       getEnvAsDuration("BACKEND_TIMEOUT", 15*time.Second),
		BackendReadRetries:   getEnvAsInt("BACKEND_READ_RETRIES", 2),
		BackendRetryBaseWait: getEnvAsDuration("BACKEND_RETRY_BASE_WAIT", 250*time.Millisecond),
		ListPageSize:         getEnvAsInt("BACKEND_LIST_PAGE_SIZE", 500),

		PlanCacheTTL:     getEnvAsDuration("PLAN_CACHE_TTL", 5*time.Minute),
		PlanCacheBackend: strings.ToLower(strings.TrimSpace(getEnv("PLAN_CACHE_BACKEND", "memory"))),
		RedisAddr:        getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisTLS:         getEnvAsBool("REDIS_TLS", false),
	}
}

func splitCSV(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
