package utils

import (
	"os"
	"strconv"
	"time"
)

// Getenv retrieves the value of the environment variable named by the key.
// If the variable is not present or its value is empty, Getenv returns the fallback string.
func Getenv(key, fallback string) string {
	value := os.Getenv(key)
	if len(value) == 0 {
		return fallback
	}
	return value
}

// GetenvInt is Getenv for integer settings. Unparseable values fall back.
func GetenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		LogWarn("Ignoring non-integer environment value", map[string]interface{}{"key": key, "value": value})
		return fallback
	}
	return n
}

// GetenvBool accepts anything strconv.ParseBool does.
func GetenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		LogWarn("Ignoring non-boolean environment value", map[string]interface{}{"key": key, "value": value})
		return fallback
	}
	return b
}

// GetenvDuration parses values such as "60s" or "15m".
func GetenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		LogWarn("Ignoring invalid duration environment value", map[string]interface{}{"key": key, "value": value})
		return fallback
	}
	return d
}
