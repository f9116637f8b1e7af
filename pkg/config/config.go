// Package config resolves server configuration from environment
// variables, the only configuration surface the server supports.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cuemby/vaultwarren/pkg/log"
)

// Config holds every environment-tunable server setting.
type Config struct {
	StorageBackend    string
	StoragePath       string
	BindAddr          string
	LeaseScanInterval time.Duration
	AuditFilePath     string
	DisableMlock      bool
	LogLevel          log.Level
}

// FromEnv reads configuration from the process environment, applying the
// same defaults the original deployment scripts relied on.
func FromEnv() Config {
	return Config{
		StorageBackend:    getEnv("STORAGE_BACKEND", "memory"),
		StoragePath:       getEnv("STORAGE_PATH", "./data"),
		BindAddr:          getEnv("BIND_ADDR", "127.0.0.1:8200"),
		LeaseScanInterval: getDurationSeconds("LEASE_SCAN_INTERVAL_SECS", 60*time.Second),
		AuditFilePath:     getEnv("AUDIT_FILE_PATH", ""),
		DisableMlock:      getBool("DISABLE_MLOCK", false),
		LogLevel:          log.Level(getEnv("LOG_LEVEL", string(log.InfoLevel))),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDurationSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return time.Duration(secs) * time.Second
}
