package utils

import (
	"os"
	"strconv"
)

// Getenv returns the environment variable named by key, or fallback when it
// is unset or empty.
func Getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

// GetenvBool parses the environment variable as a boolean; unset, empty or
// unparseable values return fallback.
func GetenvBool(key string, fallback bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return value
}
