package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration for the service.
type Config struct {
	Port     string
	Database DatabaseConfig
	Sync     SyncConfig
	HTTP     HTTPConfig
	Metrics  MetricsConfig
	Log      LogConfig
}

// DatabaseConfig selects and locates the entity repository.
type DatabaseConfig struct {
	Driver     string
	URL        string
	SQLitePath string
}

// SyncConfig tunes the live view reconciler.
type SyncConfig struct {
	// GameID scopes the view to a single game; empty tracks every in-progress game.
	GameID            string
	ReconnectInitial  Duration
	ReconnectMax      Duration
	SeedAttempts      int
	ResyncOnReconnect bool
	FeedPingInterval  Duration
}

// HTTPConfig holds browser-facing HTTP settings.
type HTTPConfig struct {
	CORSOrigins []string
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present; real
// environment variables win over it.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:     envOrDefault(envPort, defaultPort),
		Database: loadDatabase(),
		Sync:     loadSync(),
		HTTP:     loadHTTP(),
		Metrics:  loadMetrics(),
		Log: LogConfig{
			Level:  envOrDefault(envLogLevel, defaultLogLevel),
			Format: envOrDefault(envLogFormat, defaultLogFormat),
		},
	}
}

// Validate reports configuration that cannot produce a working repository.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("%s is required for driver %q", envDatabaseURL, DriverPostgres)
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("%s is required for driver %q", envSQLitePath, DriverSQLite)
		}
	default:
		return fmt.Errorf("unsupported %s %q (expected %s or %s)", envDBDriver, c.Database.Driver, DriverPostgres, DriverSQLite)
	}
	if c.Sync.ReconnectMax < c.Sync.ReconnectInitial {
		return fmt.Errorf("%s must not be shorter than %s", envReconnectMax, envReconnectInitial)
	}
	return nil
}

func loadDatabase() DatabaseConfig {
	return DatabaseConfig{
		Driver:     strings.ToLower(envOrDefault(envDBDriver, defaultDriver)),
		URL:        envOrDefault(envDatabaseURL, ""),
		SQLitePath: envOrDefault(envSQLitePath, defaultSQLitePath),
	}
}

func loadSync() SyncConfig {
	return SyncConfig{
		GameID:            strings.TrimSpace(envOrDefault(envLiveGameID, "")),
		ReconnectInitial:  durationEnvOrDefault(envReconnectInitial, defaultReconnectInitial),
		ReconnectMax:      durationEnvOrDefault(envReconnectMax, defaultReconnectMax),
		SeedAttempts:      intEnvOrDefault(envSeedAttempts, defaultSeedAttempts),
		ResyncOnReconnect: boolEnvOrDefault(envResyncOnReconnect, defaultResyncOnReconnect),
		FeedPingInterval:  durationEnvOrDefault(envFeedPingInterval, defaultFeedPingInterval),
	}
}

func loadHTTP() HTTPConfig {
	return HTTPConfig{
		CORSOrigins: listEnvOrDefault(envCORSOrigins, defaultCORSOrigins),
	}
}
