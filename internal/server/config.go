// Package server provides configuration helpers that define runtime defaults,
// validation, and room seeding parameters for the session service.
package server

import (
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds the server configuration settings including security controls
// and the room seeding knobs.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
	RoomCount      int
	RoomCapacity   int
	StaticDir      string
}

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 512,
		RoomCount:      5,
		RoomCapacity:   10,
	}
}

func sanitizeConfig(cfg Config) Config {
	cfg.Port = normalizePort(cfg.Port)

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 512
	}
	if cfg.RoomCount <= 0 {
		cfg.RoomCount = 5
	}
	if cfg.RoomCapacity <= 0 {
		cfg.RoomCapacity = 10
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// normalizePort accepts both ":8080" and bare "8080" values, the latter being
// what a PORT environment variable usually carries.
func normalizePort(port string) string {
	if port == "" {
		return ":8080"
	}
	if !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		defaultCfg := defaultConfig()
		sanitizeConfig(defaultCfg)
		return
	}

	sanitized := Config{
		Port:           cfg.Port,
		AllowedOrigins: append([]string(nil), cfg.AllowedOrigins...),
		MaxMessageSize: cfg.MaxMessageSize,
		RoomCount:      cfg.RoomCount,
		RoomCapacity:   cfg.RoomCapacity,
		StaticDir:      cfg.StaticDir,
	}
	sanitizeConfig(sanitized)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}
	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}
	if count := os.Getenv("ROOM_COUNT"); count != "" {
		cfg.RoomCount = parseIntValue(count, cfg.RoomCount)
	}
	if capacity := os.Getenv("ROOM_CAPACITY"); capacity != "" {
		cfg.RoomCapacity = parseIntValue(capacity, cfg.RoomCapacity)
	}
	if dir := os.Getenv("STATIC_DIR"); dir != "" {
		cfg.StaticDir = dir
	}

	return &cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}
