package env

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var Env map[string]string

func GetEnv(key, def string) string {
	// First check our loaded Env map
	if val, ok := Env[key]; ok {
		return val
	}
	// Fallback to OS environment variables (for Docker/tests)
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetEnvInt returns def when the key is unset or not an integer.
func GetEnvInt(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(GetEnv(key, "")))
	if err != nil {
		return def
	}
	return v
}

// GetEnvBool accepts the usual strconv spellings (1, true, TRUE, ...).
func GetEnvBool(key string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(GetEnv(key, "")))
	if err != nil {
		return def
	}
	return v
}

// SetupEnvFile loads the first .env found. A missing file is not an error:
// containers configure everything through the process environment.
func SetupEnvFile() string {
	envFiles := []string{
		".env",          // Current directory
		"../../.env",    // From cmd/server to project root
		"../../../.env", // Fallback for deeper nesting
	}

	for _, envFile := range envFiles {
		loaded, err := godotenv.Read(envFile)
		if err == nil {
			Env = loaded
			return envFile
		}
	}

	Env = map[string]string{}
	return ""
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
