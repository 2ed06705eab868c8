/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// StoreBackend selects where session queues are persisted.
type StoreBackend string

const (
	StoreMemory StoreBackend = "memory"
	StoreRedis  StoreBackend = "redis"
	StoreSQL    StoreBackend = "sql"
)

// EventBusBackend selects how session events fan out.
type EventBusBackend string

const (
	EventBusMemory EventBusBackend = "memory"
	EventBusRedis  EventBusBackend = "redis"
	EventBusNATS   EventBusBackend = "nats"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment   string
	LogLevel      string
	LogBufferSize int
	HTTPBind      string
	HTTPPort      int
	JWTSigningKey string
	ConfigFile    string

	// Session store
	StoreBackend StoreBackend
	DBBackend    DatabaseBackend
	DBDSN        string
	QueueTTL     time.Duration // Redis only; 0 keeps queues until deleted

	// Redis, shared by the store and the event bus
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Event fan-out
	EventBusBackend EventBusBackend
	NATSURL         string
	NodeID          string

	// Discord
	DiscordToken    string
	DiscordClientID string
	TestGuilds      []string

	// Lavalink
	LavalinkHost     string
	LavalinkPort     int
	LavalinkPassword string
	LavalinkSecure   bool
	SearchPrefix     string

	// Playback timing
	IdleTimeout      time.Duration
	HandshakeTimeout time.Duration
	ReconnectTimeout time.Duration
	MaxConnectResets int
	NotifyTimeout    time.Duration

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads .env files, an optional YAML file and environment variables,
// applies defaults, and validates the result. Values already present in the
// process environment always win.
func Load() (*Config, error) {
	env := getEnvAny([]string{"TONELIST_ENV", "NODE_ENV"}, "development")
	if err := loadDotenv(env); err != nil {
		return nil, err
	}
	env = getEnvAny([]string{"TONELIST_ENV", "NODE_ENV"}, "development")

	src := source{}
	path := getEnvAny([]string{"TONELIST_CONFIG_FILE"}, "")
	if path != "" {
		file, err := readFile(path)
		if err != nil {
			return nil, err
		}
		src.file = file
	}

	cfg := &Config{
		Environment:   env,
		ConfigFile:    path,
		LogLevel:      src.str([]string{"TONELIST_LOG_LEVEL", "LOG_LEVEL"}, ""),
		LogBufferSize: src.int([]string{"TONELIST_LOG_BUFFER_SIZE"}, 2000),
		HTTPBind:      src.str([]string{"TONELIST_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:      src.int([]string{"TONELIST_HTTP_PORT", "PORT"}, 8080),
		JWTSigningKey: src.str([]string{"TONELIST_JWT_SIGNING_KEY", "AUTH_SECRET"}, ""),

		StoreBackend: StoreBackend(src.str([]string{"TONELIST_STORE_BACKEND"}, string(StoreMemory))),
		DBBackend:    DatabaseBackend(src.str([]string{"TONELIST_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:        src.str([]string{"TONELIST_DB_DSN"}, "tonelist.db"),
		QueueTTL:     time.Duration(src.int([]string{"TONELIST_QUEUE_TTL_HOURS"}, 0)) * time.Hour,

		RedisAddr:     src.str([]string{"TONELIST_REDIS_ADDR", "REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: src.str([]string{"TONELIST_REDIS_PASSWORD", "REDIS_PASSWORD"}, ""),
		RedisDB:       src.int([]string{"TONELIST_REDIS_DB", "REDIS_DB"}, 0),

		EventBusBackend: EventBusBackend(src.str([]string{"TONELIST_EVENTBUS_BACKEND"}, string(EventBusMemory))),
		NATSURL:         src.str([]string{"TONELIST_NATS_URL", "NATS_URL"}, "nats://localhost:4222"),
		NodeID:          src.str([]string{"TONELIST_NODE_ID"}, ""),

		DiscordToken:    src.str([]string{"TONELIST_DISCORD_TOKEN", "DISCORD_TOKEN"}, ""),
		DiscordClientID: src.str([]string{"TONELIST_DISCORD_CLIENT_ID", "DISCORD_CLIENT_ID"}, ""),
		TestGuilds:      splitList(src.str([]string{"TONELIST_TEST_GUILDS", "BOT_TEST_GUILDS"}, "")),

		LavalinkHost:     src.str([]string{"TONELIST_LAVALINK_HOST", "LAVA_HOST"}, "localhost"),
		LavalinkPort:     src.int([]string{"TONELIST_LAVALINK_PORT", "LAVA_PORT"}, 2333),
		LavalinkPassword: src.str([]string{"TONELIST_LAVALINK_PASSWORD", "LAVA_PASSWORD"}, "youshallnotpass"),
		LavalinkSecure:   src.bool([]string{"TONELIST_LAVALINK_SECURE", "LAVA_SECURE"}, false),
		SearchPrefix:     src.str([]string{"TONELIST_SEARCH_PREFIX"}, "ytsearch"),

		IdleTimeout:      time.Duration(src.int([]string{"TONELIST_IDLE_TIMEOUT_SECONDS"}, 300)) * time.Second,
		HandshakeTimeout: time.Duration(src.int([]string{"TONELIST_HANDSHAKE_TIMEOUT_SECONDS"}, 5)) * time.Second,
		ReconnectTimeout: time.Duration(src.int([]string{"TONELIST_RECONNECT_TIMEOUT_SECONDS"}, 5)) * time.Second,
		MaxConnectResets: src.int([]string{"TONELIST_MAX_CONNECT_RESETS"}, 5),
		NotifyTimeout:    time.Duration(src.int([]string{"TONELIST_NOTIFY_TIMEOUT_SECONDS"}, 10)) * time.Second,

		TracingEnabled:    src.bool([]string{"TONELIST_TRACING_ENABLED"}, false),
		OTLPEndpoint:      src.str([]string{"TONELIST_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: src.float([]string{"TONELIST_TRACING_SAMPLE_RATE"}, 1.0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and required keys.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreMemory, StoreRedis, StoreSQL:
	default:
		return fmt.Errorf("unsupported store backend %q", c.StoreBackend)
	}

	if c.StoreBackend == StoreSQL {
		if c.DBBackend != DatabasePostgres && c.DBBackend != DatabaseMySQL && c.DBBackend != DatabaseSQLite {
			return fmt.Errorf("unsupported database backend %q", c.DBBackend)
		}
		if c.DBDSN == "" {
			return fmt.Errorf("TONELIST_DB_DSN must be provided for the sql store")
		}
	}

	switch c.EventBusBackend {
	case EventBusMemory, EventBusRedis, EventBusNATS:
	default:
		return fmt.Errorf("unsupported event bus backend %q", c.EventBusBackend)
	}

	if c.DiscordToken == "" {
		return fmt.Errorf("TONELIST_DISCORD_TOKEN or DISCORD_TOKEN must be provided")
	}

	if c.LavalinkPort <= 0 || c.LavalinkPort > 65535 {
		return fmt.Errorf("invalid lavalink port %d", c.LavalinkPort)
	}

	if c.IdleTimeout <= 0 || c.HandshakeTimeout <= 0 || c.ReconnectTimeout <= 0 {
		return fmt.Errorf("idle, handshake and reconnect timeouts must be positive")
	}

	if strings.EqualFold(c.Environment, "production") && c.JWTSigningKey == "" {
		return fmt.Errorf("TONELIST_JWT_SIGNING_KEY must be provided in production")
	}

	return nil
}

// HTTPAddr returns the listen address for the HTTP server.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// loadDotenv reads .env.local, .env.<environment> and .env in that order.
// godotenv never overrides variables that are already set, so earlier files
// and the real environment take precedence.
func loadDotenv(environment string) error {
	files := []string{".env.local"}
	if environment != "" {
		files = append(files, ".env."+environment)
	}
	files = append(files, ".env")

	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// readFile parses a flat YAML mapping of environment keys to values.
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			out[k] = strings.Join(parts, ",")
		case nil:
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out, nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// source resolves keys against the environment first and the config file second.
type source struct {
	file map[string]string
}

func (s source) str(keys []string, def string) string {
	if v := getEnvAny(keys, ""); v != "" {
		return v
	}
	for _, k := range keys {
		if v := s.file[k]; v != "" {
			return v
		}
	}
	return def
}

func (s source) int(keys []string, def int) int {
	if v := s.str(keys, ""); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func (s source) bool(keys []string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(s.str(keys, "")))
	if v == "true" || v == "1" || v == "yes" {
		return true
	}
	if v == "false" || v == "0" || v == "no" {
		return false
	}
	return def
}

func (s source) float(keys []string, def float64) float64 {
	if v := s.str(keys, ""); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

// getEnvAny returns the first set environment variable value from keys, or def.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}
