// Package server provides configuration helpers that define runtime defaults,
// validation, and environment loading for the chat service.
package server

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// DefaultPort is the TCP port shared by the server and the client.
const DefaultPort = 2111

// Config holds the server configuration settings.
type Config struct {
	Host              string        `env:"CHAT_HOST"`
	Port              int           `env:"CHAT_PORT" validate:"min=1,max=65535"`
	AdvertisedAddress string        `env:"CHAT_ADVERTISED_ADDRESS"`
	WebSocketAddr     string        `env:"CHAT_WS_ADDR"`
	AllowedOrigins    string        `env:"CHAT_ALLOWED_ORIGINS"`
	SSHAddr           string        `env:"CHAT_SSH_ADDR"`
	SSHHostKeyFile    string        `env:"CHAT_SSH_HOST_KEY"`
	OutboxSize        int           `env:"CHAT_OUTBOX_SIZE" validate:"min=1"`
	MaxLineLength     int           `env:"CHAT_MAX_LINE_LENGTH" validate:"min=64"`
	WriteTimeout      time.Duration `env:"CHAT_WRITE_TIMEOUT" validate:"min=0"`
	PresenceSchedule  string        `env:"CHAT_PRESENCE_SCHEDULE"`
	ShutdownTimeout   time.Duration `env:"CHAT_SHUTDOWN_TIMEOUT" validate:"min=0"`
	LogLevel          string        `env:"CHAT_LOG_LEVEL" validate:"oneof=panic fatal error warn warning info debug trace"`
}

// DefaultConfig returns a Config populated with default values for all settings.
func DefaultConfig() Config {
	return Config{
		Port:             DefaultPort,
		AllowedOrigins:   "http://localhost:8080",
		OutboxSize:       256,
		MaxLineLength:    4096,
		WriteTimeout:     10 * time.Second,
		PresenceSchedule: "@every 1m",
		ShutdownTimeout:  5 * time.Second,
		LogLevel:         "info",
	}
}

// LoadConfig reads an optional dotenv file (".env" when none is given) and
// then the process environment on top of the defaults. The returned Config is
// usable even when err reports a validation problem: offending values are
// reset to their defaults.
func LoadConfig(files ...string) (Config, error) {
	_ = godotenv.Load(files...)

	cfg := DefaultConfig()
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg.Sanitize(), err
	}
	return cfg, nil
}

// Validate checks the field constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Sanitize replaces out-of-range values with defaults.
func (c Config) Sanitize() Config {
	def := DefaultConfig()
	if c.Port <= 0 || c.Port > 65535 {
		c.Port = def.Port
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = def.OutboxSize
	}
	if c.MaxLineLength < 64 {
		c.MaxLineLength = def.MaxLineLength
	}
	if c.WriteTimeout < 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	switch strings.ToLower(c.LogLevel) {
	case "panic", "fatal", "error", "warn", "warning", "info", "debug", "trace":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = def.LogLevel
	}
	return c
}

// ListenAddr is the TCP address the chat listener binds.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Origins splits the comma separated allow-list.
func (c Config) Origins() []string {
	if strings.TrimSpace(c.AllowedOrigins) == "" {
		return nil
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
