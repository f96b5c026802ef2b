package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// GetString returns the string value of key, or defaultValue when the key is
// missing or not a string.
func GetString(c Config, key, defaultValue string) string {
	val, err := c.Get(key)
	if err != nil {
		return defaultValue
	}
	switch v := val.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	return defaultValue
}

// GetInt accepts YAML ints, JSON numbers and numeric strings.
func GetInt(c Config, key string, defaultValue int) int {
	val, err := c.Get(key)
	if err != nil {
		return defaultValue
	}
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return defaultValue
}

func GetBool(c Config, key string, defaultValue bool) bool {
	val, err := c.Get(key)
	if err != nil {
		return defaultValue
	}
	switch v := val.(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return defaultValue
}

// GetDuration accepts Go duration strings ("30s", "5m") or a plain number of seconds.
func GetDuration(c Config, key string, defaultValue time.Duration) time.Duration {
	val, err := c.Get(key)
	if err != nil {
		return defaultValue
	}
	switch v := val.(type) {
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	case string:
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return defaultValue
}
