package main

import (
	"strings"
	"time"
)

type Config struct {
	LogLevel       string `env:"LOG_LEVEL,default=info"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`

	// PhoneNumber is the raw login input; it goes through the resolver like
	// any user-entered string.
	PhoneNumber        string `env:"PHONE_NUMBER,required=true"`
	DefaultCountryCode string `env:"DEFAULT_COUNTRY_CODE,default=1"`
	// PlaceholderPrefixes is comma-separated; empty means the built-in list.
	PlaceholderPrefixes string `env:"PLACEHOLDER_PREFIXES"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=5s"`
	MismatchTolerance int           `env:"MISMATCH_TOLERANCE,default=2"`
	FailureCeiling    int           `env:"FAILURE_CEILING,default=5"`
	BackoffBase       time.Duration `env:"BACKOFF_BASE,default=200ms"`
	BackoffMax        time.Duration `env:"BACKOFF_MAX,default=5s"`
}

func (c Config) placeholderPrefixes(fallback []string) []string {
	if strings.TrimSpace(c.PlaceholderPrefixes) == "" {
		return fallback
	}
	parts := strings.Split(c.PlaceholderPrefixes, ",")
	prefixes := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}
