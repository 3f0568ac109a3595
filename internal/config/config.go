package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates every setting of the API server.
type Config struct {
	Server    ServerConfig
	Mongo     MongoConfig
	Directory DirectoryConfig
	Redis     RedisConfig
	Sessions  SessionConfig
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	mongo, err := loadMongoConfig()
	if err != nil {
		return nil, err
	}

	directory, err := loadDirectoryConfig()
	if err != nil {
		return nil, err
	}

	redis, err := loadRedisConfig()
	if err != nil {
		return nil, err
	}

	sessions, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		Mongo:     mongo,
		Directory: directory,
		Redis:     redis,
		Sessions:  sessions,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr           string
	LogLevel       string
	AllowedOrigins []string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	addr := port
	if !strings.Contains(port, ":") {
		// Accept both "8080" and ":8080" / "127.0.0.1:8080".
		if strings.Contains(port, " ") {
			return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
		}
		addr = ":" + port
	}

	return ServerConfig{
		Addr:           addr,
		LogLevel:       strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		AllowedOrigins: parseListEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}, nil
}

// MongoConfig describes the document store. An empty URI selects the
// in-memory store.
type MongoConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// Enabled reports whether a MongoDB URI was provided.
func (c MongoConfig) Enabled() bool {
	return c.URI != ""
}

func loadMongoConfig() (MongoConfig, error) {
	timeout, err := parseSecondsEnv("MONGODB_TIMEOUT", 10*time.Second)
	if err != nil {
		return MongoConfig{}, err
	}

	return MongoConfig{
		URI:      strings.TrimSpace(os.Getenv("MONGODB_URI")),
		Database: getEnvOrDefault("MONGODB_DATABASE", "eunoia_mental_health"),
		Timeout:  timeout,
	}, nil
}

// DirectoryConfig describes the relational users database.
type DirectoryConfig struct {
	Driver string
	DSN    string
}

// Enabled reports whether a users database was configured.
func (c DirectoryConfig) Enabled() bool {
	return c.DSN != ""
}

func loadDirectoryConfig() (DirectoryConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("DATABASE_DRIVER", "postgres"))
	switch driver {
	case "postgres", "sqlite":
	default:
		return DirectoryConfig{}, fmt.Errorf("invalid DATABASE_DRIVER value %q", driver)
	}

	return DirectoryConfig{
		Driver: driver,
		DSN:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
	}, nil
}

// RedisConfig describes the history cache.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	TTL      time.Duration
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

func loadRedisConfig() (RedisConfig, error) {
	db, err := parseOptionalIntEnv("REDIS_DB")
	if err != nil {
		return RedisConfig{}, err
	}
	ttl, err := parseSecondsEnv("HISTORY_CACHE_TTL", time.Minute)
	if err != nil {
		return RedisConfig{}, err
	}

	cfg := RedisConfig{
		Addr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		Username: strings.TrimSpace(os.Getenv("REDIS_USERNAME")),
		Password: os.Getenv("REDIS_PASSWORD"),
		TTL:      ttl,
	}
	if db != nil {
		cfg.DB = *db
	}
	return cfg, nil
}

// SessionConfig controls the idle session reaper.
type SessionConfig struct {
	IdleTimeout time.Duration
	ReaperSpec  string
}

func loadSessionConfig() (SessionConfig, error) {
	idle := 30
	if override, err := parseOptionalIntEnv("SESSION_IDLE_MINUTES"); err != nil {
		return SessionConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return SessionConfig{}, fmt.Errorf("invalid SESSION_IDLE_MINUTES value %d", *override)
		}
		idle = *override
	}

	return SessionConfig{
		IdleTimeout: time.Duration(idle) * time.Minute,
		ReaperSpec:  getEnvOrDefault("SESSION_REAPER_SPEC", "*/5 * * * *"),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseSecondsEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	seconds, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if seconds == nil {
		return defaultValue, nil
	}
	if *seconds < 0 {
		return 0, fmt.Errorf("invalid %s value %d", key, *seconds)
	}
	return time.Duration(*seconds) * time.Second, nil
}

func parseListEnv(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}

	var values []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
