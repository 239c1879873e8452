// Package config loads relay configuration from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. Nested keys use a double
// underscore: CHATRELAY_SERVER__PORT sets server.port.
const EnvPrefix = "CHATRELAY_"

// DefaultPath is read when no config path is given.
const DefaultPath = "config.yaml"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Chat      ChatConfig      `koanf:"chat"`
	Storage   StorageConfig   `koanf:"storage"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Tokens    TokensConfig    `koanf:"tokens"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
}

// UpstreamConfig locates the hosted chatbot. The API key may reference other
// variables as ${NAME}.
type UpstreamConfig struct {
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`
}

type ChatConfig struct {
	TurnTimeout      time.Duration `koanf:"turn_timeout"`
	MaxMessageLength int           `koanf:"max_message_length"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // memory, sqlite
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

type TokensConfig struct {
	Encoding string `koanf:"encoding"`
}

var defaults = map[string]any{
	"server.port":             3001,
	"server.request_timeout":  "90s",
	"server.allowed_origins":  []string{"*"},
	"upstream.base_url":       "https://api.dify.ai/v1",
	"chat.turn_timeout":       "60s",
	"chat.max_message_length": 2000,
	"storage.type":            "memory",
	"storage.sqlite.path":     "chatrelay.db",
	"telemetry.service_name":  "chatrelay",
	"tokens.encoding":         "cl100k_base",
}

// legacyEnv lists the variables older deployments used, in order of
// preference. They apply only when the key is otherwise unset.
var legacyEnv = map[string][]string{
	"upstream.base_url": {"XPECTRUM_API_BASE_URL", "DIFY_API_BASE_URL"},
	"upstream.api_key":  {"XPECTRUM_API_KEY", "DIFY_API_KEY"},
	"server.port":       {"PORT"},
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (DefaultPath when empty), then the environment. A missing
// file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for key, vars := range legacyEnv {
		if k.Exists(key) {
			continue
		}
		for _, name := range vars {
			if v := os.Getenv(name); v != "" {
				if err := k.Set(key, v); err != nil {
					return nil, err
				}
				break
			}
		}
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, v); err != nil {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Upstream.APIKey = substituteEnvVars(cfg.Upstream.APIKey)
	cfg.Upstream.BaseURL = substituteEnvVars(cfg.Upstream.BaseURL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps CHATRELAY_CHAT__TURN_TIMEOUT to chat.turn_timeout. List values
// are comma separated.
func envKey(key, value string) (string, any) {
	key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "__", ".")
	if key == "server.allowed_origins" {
		parts := strings.Split(value, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return key, out
	}
	return key, value
}

// Validate reports settings the relay cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	switch c.Storage.Type {
	case "memory":
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return errors.New("storage.sqlite.path is required for sqlite storage")
		}
	default:
		return fmt.Errorf("unknown storage.type %q", c.Storage.Type)
	}
	if c.Chat.TurnTimeout <= 0 {
		return errors.New("chat.turn_timeout must be positive")
	}
	if c.Chat.MaxMessageLength <= 0 {
		return errors.New("chat.max_message_length must be positive")
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
