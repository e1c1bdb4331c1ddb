// Package env reads the handful of process settings consulted before config.Load runs.
package env

import (
	"os"
	"strconv"
	"strings"
)

func lookup[T any](key string, fallback T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return fallback
	}
	v, err := parse(raw)
	if err != nil {
		return fallback
	}
	return v
}

// Get returns the trimmed value of key, or fallback when it is unset or blank.
func Get(key, fallback string) string {
	return lookup(key, fallback, func(s string) (string, error) { return s, nil })
}

// Bool falls back on unset and malformed values alike.
func Bool(key string, fallback bool) bool {
	return lookup(key, fallback, strconv.ParseBool)
}
