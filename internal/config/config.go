// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for all server settings.
//
// IMPORTANT: When changing values, only modify this file.
// All other parts of the codebase should reference these values.
package config

import (
	"os"
	"strconv"
)

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port: 3000,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}

	return cfg
}

// =============================================================================
// SNAPSHOT PERSISTENCE
// =============================================================================

// SnapshotConfig holds snapshot persistence settings.
type SnapshotConfig struct {
	Dir string // Directory for per-world snapshot files
}

// DefaultSnapshot returns the default snapshot configuration.
func DefaultSnapshot() SnapshotConfig {
	return SnapshotConfig{
		Dir: "data/snapshots",
	}
}

// SnapshotFromEnv returns snapshot configuration with environment variable overrides.
func SnapshotFromEnv() SnapshotConfig {
	cfg := DefaultSnapshot()

	if dir := os.Getenv("SNAPSHOT_DIR"); dir != "" {
		cfg.Dir = dir
	}

	return cfg
}

// =============================================================================
// ADMIN SEEDING
// =============================================================================

// AdminConfig holds the bootstrap admin account settings.
type AdminConfig struct {
	Username string
	Password string
}

// AdminFromEnv returns the admin account seed from the environment. An empty
// username disables seeding.
func AdminFromEnv() AdminConfig {
	return AdminConfig{
		Username: os.Getenv("ADMIN_USERNAME"),
		Password: os.Getenv("ADMIN_PASSWORD"),
	}
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server   ServerConfig
	Snapshot SnapshotConfig
	Admin    AdminConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Server:   ServerFromEnv(),
		Snapshot: SnapshotFromEnv(),
		Admin:    AdminFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
