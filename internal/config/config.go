package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Auth gateway modes.
const (
	AuthModeJWT       = "jwt"
	AuthModeDirectory = "directory"
)

// Config holds edit-session-service configuration.
type Config struct {
	AppEnv   string // APP_ENV
	AppHost  string // APP_HOST
	HTTPPort string // APP_PORT or HTTP_PORT
	LogLevel string // LOG_LEVEL

	// Session lifecycle
	SessionIdleTTL         time.Duration // SESSION_TTL_MINUTES
	SessionMaxLifetime     time.Duration // MAX_SESSION_LIFETIME_MINUTES
	MaxSessionsPerUser     int           // MAX_SESSIONS_PER_USER
	SessionCleanupInterval time.Duration // SESSION_CLEANUP_INTERVAL_MINUTES

	// WebSocket
	WSReadBufferSize  int
	WSWriteBufferSize int
	WSMaxMessageSize  int64

	// Launch documents
	TempFilesDir   string // TEMP_FILES_DIR
	PublicFilesURL string // PUBLIC_FILES_URL

	// External converter service
	ConverterURL string // CONVERTER_URL

	// Auth gateway
	AuthMode  string // AUTH_MODE: jwt | directory
	JWTSecret string // JWT_SECRET (jwt mode)
	AuthDB    struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}
}

// Load loads config from environment (.env if present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	idleTTL, _ := strconv.Atoi(getEnv("SESSION_TTL_MINUTES", "30"))
	maxLifetime, _ := strconv.Atoi(getEnv("MAX_SESSION_LIFETIME_MINUTES", "120"))
	maxSessions, _ := strconv.Atoi(getEnv("MAX_SESSIONS_PER_USER", "2"))
	cleanupEvery, _ := strconv.Atoi(getEnv("SESSION_CLEANUP_INTERVAL_MINUTES", "20"))
	readBuf, _ := strconv.Atoi(getEnv("WS_READ_BUFFER_SIZE", "4096"))
	writeBuf, _ := strconv.Atoi(getEnv("WS_WRITE_BUFFER_SIZE", "4096"))
	maxMsg, _ := strconv.ParseInt(getEnv("WS_MAX_MESSAGE_SIZE", "10485760"), 10, 64)

	cfg := &Config{
		AppEnv:                 getEnv("APP_ENV", "development"),
		AppHost:                getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort:               firstEnv("APP_PORT", "HTTP_PORT", "8091"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		SessionIdleTTL:         time.Duration(idleTTL) * time.Minute,
		SessionMaxLifetime:     time.Duration(maxLifetime) * time.Minute,
		MaxSessionsPerUser:     maxSessions,
		SessionCleanupInterval: time.Duration(cleanupEvery) * time.Minute,
		WSReadBufferSize:       readBuf,
		WSWriteBufferSize:      writeBuf,
		WSMaxMessageSize:       maxMsg,
		TempFilesDir:           getEnv("TEMP_FILES_DIR", os.TempDir()),
		PublicFilesURL:         getEnv("PUBLIC_FILES_URL", ""),
		ConverterURL:           getEnv("CONVERTER_URL", ""),
		AuthMode:               getEnv("AUTH_MODE", AuthModeJWT),
		JWTSecret:              getEnv("JWT_SECRET", ""),
	}
	cfg.AuthDB.Host = getEnv("AUTH_DB_HOST", "localhost")
	cfg.AuthDB.Port = getEnv("AUTH_DB_PORT", "5432")
	cfg.AuthDB.User = getEnv("AUTH_DB_USER", "postgres")
	cfg.AuthDB.Password = getEnv("AUTH_DB_PASSWORD", "")
	cfg.AuthDB.Database = getEnv("AUTH_DB_DATABASE", "personnel_directory")
	cfg.AuthDB.SSLMode = getEnv("AUTH_DB_SSLMODE", "disable")
	return cfg, nil
}

// Validate checks required fields and production safety.
func (c *Config) Validate() error {
	if c.ConverterURL == "" {
		return errors.New("config: CONVERTER_URL is required")
	}
	if c.PublicFilesURL == "" {
		return errors.New("config: PUBLIC_FILES_URL is required")
	}
	switch c.AuthMode {
	case AuthModeJWT:
		if c.JWTSecret == "" {
			return errors.New("config: JWT_SECRET is required in jwt auth mode")
		}
	case AuthModeDirectory:
		if c.AuthDB.Host == "" || c.AuthDB.Database == "" {
			return errors.New("config: AUTH_DB_HOST and AUTH_DB_DATABASE are required in directory auth mode")
		}
		if c.AppEnv == "production" && c.AuthDB.Password == "" {
			return errors.New("config: in production AUTH_DB_PASSWORD is required")
		}
	default:
		return errors.New("config: AUTH_MODE must be jwt or directory")
	}
	if c.SessionIdleTTL <= 0 || c.SessionMaxLifetime <= 0 {
		return errors.New("config: session TTLs must be positive")
	}
	if c.SessionMaxLifetime < c.SessionIdleTTL {
		return errors.New("config: MAX_SESSION_LIFETIME_MINUTES must not be below SESSION_TTL_MINUTES")
	}
	return nil
}

// AuthDSN returns the personnel directory connection string for lib/pq.
func (c *Config) AuthDSN() string {
	return "host=" + c.AuthDB.Host +
		" port=" + c.AuthDB.Port +
		" user=" + c.AuthDB.User +
		" password=" + c.AuthDB.Password +
		" dbname=" + c.AuthDB.Database +
		" sslmode=" + c.AuthDB.SSLMode
}

// Addr returns listen address for HTTP server.
func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	keys := keysAndDef[:len(keysAndDef)-1]
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
