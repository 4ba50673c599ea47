package config

import (
	"os"
	"strings"
)

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// GetEnv returns the value of an environment variable or a default value if not set.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvironment returns the current environment (development, staging,
// production) from REQFLOW_SERVER_ENVIRONMENT, lowercased. Defaults to
// development if not set. loadConfig seeds the server.environment
// default from this so pre-config callers and the loaded config agree.
func GetEnvironment() string {
	env := GetEnv("REQFLOW_SERVER_ENVIRONMENT", EnvDevelopment)
	return strings.ToLower(env)
}
