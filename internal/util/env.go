package util

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/laedsonzzz/DialogAI-Qualidade-sub001/pkg/logger"

	"github.com/joho/godotenv"
)

func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using system environment variables")
	}
}

func GetEnv(key string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return ""
	}
	return value
}

func GetEnvString(key string, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return defaultValue
	}

	return value
}

func GetEnvNumeric(key string, defaultValue int) float64 {
	value, exists := os.LookupEnv(key)
	if !exists {
		return float64(defaultValue)
	}
	returnValue, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return float64(defaultValue)
	}

	return returnValue
}

// GetEnvInt is GetEnvNumeric truncated to an int.
func GetEnvInt(key string, defaultValue int) int {
	return int(GetEnvNumeric(key, defaultValue))
}

func GetEnvBool(key string, defaultValue bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1":
		return true
	case "false", "0":
		return false
	}

	return defaultValue
}

// GetEnvList splits a comma separated value, dropping empty entries.
func GetEnvList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GetEnvDuration reads a numeric value and scales it by unit.
func GetEnvDuration(key string, defaultValue int, unit time.Duration) time.Duration {
	return time.Duration(GetEnvNumeric(key, defaultValue) * float64(unit))
}
