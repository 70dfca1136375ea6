package config

import "time"

const (
	envPort              = "PORT"
	envDBDriver          = "DB_DRIVER"
	envDatabaseURL       = "DATABASE_URL"
	envSQLitePath        = "SQLITE_PATH"
	envLiveGameID        = "LIVE_GAME_ID"
	envReconnectInitial  = "RECONNECT_INITIAL"
	envReconnectMax      = "RECONNECT_MAX"
	envSeedAttempts      = "SEED_ATTEMPTS"
	envResyncOnReconnect = "RESYNC_ON_RECONNECT"
	envFeedPingInterval  = "FEED_PING_INTERVAL"
	envCORSOrigins       = "CORS_ALLOWED_ORIGINS"
	envMetricsPort       = "METRICS_PORT"
	envMetricsOn         = "METRICS_ENABLED"
	envOtelEndpoint      = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envOtelService       = "OTEL_SERVICE_NAME"
	envOtelInsecure      = "OTEL_EXPORTER_OTLP_INSECURE"
	envLogLevel          = "LOG_LEVEL"
	envLogFormat         = "LOG_FORMAT"

	defaultPort        = "4000"
	defaultDriver      = DriverSQLite
	defaultSQLitePath  = "livescores.db"
	defaultMetricsPort = "9090"
	// First retry after a channel error; doubles up to defaultReconnectMax.
	defaultReconnectInitial  = 500 * Duration(time.Millisecond)
	defaultReconnectMax      = 30 * Duration(time.Second)
	defaultSeedAttempts      = 5
	defaultResyncOnReconnect = true
	// lib/pq recommends pinging an idle listener about every 90 seconds.
	defaultFeedPingInterval = 90 * Duration(time.Second)
	defaultCORSOrigins      = "*"
	defaultLogLevel         = "info"
	defaultLogFormat        = "text"
)

// Supported repository drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)
