package config

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var (
	settings *Settings
	once     sync.Once
)

// Settings holds process-level options, separate from the project
// configuration file.
type Settings struct {
	Port         string
	DatabasePath string
	CorsOrigins  string

	// PollInterval drives the control-plane status broadcast ticker.
	PollInterval time.Duration

	// HealthDeadline and HealthPollInterval bound post-deploy verification.
	HealthDeadline     time.Duration
	HealthPollInterval time.Duration

	// NonInteractive treats every confirmation prompt as declined.
	NonInteractive bool
}

// LoadSettings reads process settings from the environment once.
func LoadSettings() *Settings {
	once.Do(func() {
		_ = godotenv.Load()

		settings = &Settings{
			Port:               getEnv("STACKPILOT_PORT", "4050"),
			DatabasePath:       getEnv("STACKPILOT_DB", "stackpilot.db"),
			CorsOrigins:        getEnv("STACKPILOT_CORS_ORIGINS", "http://localhost:3000"),
			PollInterval:       getEnvDuration("STACKPILOT_POLL_INTERVAL", 10*time.Second),
			HealthDeadline:     getEnvDuration("STACKPILOT_HEALTH_DEADLINE", 3*time.Minute),
			HealthPollInterval: getEnvDuration("STACKPILOT_HEALTH_POLL_INTERVAL", 5*time.Second),
			NonInteractive:     getEnvBool("STACKPILOT_NON_INTERACTIVE", false),
		}
	})
	return settings
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
