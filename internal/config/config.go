// Package config loads the toolbake.yaml (or .toml, .json) project file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// FileNames are the config files looked up in a project directory, in order.
var FileNames = []string{"toolbake.yaml", "toolbake.yml", "toolbake.toml", "toolbake.json"}

// Snapshot store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// ErrUnsupportedFormat is returned for config files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Config is the project configuration shared by the CLI commands.
type Config struct {
	// Tools is the directory holding tool definitions, relative to the config file.
	Tools    string        `mapstructure:"tools"`
	LogLevel string        `mapstructure:"log_level"`
	Runtime  RuntimeConfig `mapstructure:"runtime"`
	Sessions SessionConfig `mapstructure:"sessions"`
	Redis    RedisConfig   `mapstructure:"redis"`
	Server   ServerConfig  `mapstructure:"server"`
	MCP      MCPConfig     `mapstructure:"mcp"`
}

type RuntimeConfig struct {
	// Deadline bounds every run. Zero disables it.
	Deadline    time.Duration `mapstructure:"deadline"`
	LogCapacity int           `mapstructure:"log_capacity"`
	NoticeTTL   time.Duration `mapstructure:"notice_ttl"`
	// Remote enables http(s) module references in requestCapability.
	Remote bool `mapstructure:"remote"`
	// Processes points to a process capability file.
	Processes string `mapstructure:"processes"`
}

type SessionConfig struct {
	Store string        `mapstructure:"store"`
	Path  string        `mapstructure:"path"`
	TTL   time.Duration `mapstructure:"ttl"`
	// EncryptionKey is a base64 AES-256 key. Empty disables encryption.
	EncryptionKey  string   `mapstructure:"encryption_key"`
	FallbackKeys   []string `mapstructure:"fallback_keys"`
	RedactPatterns []string `mapstructure:"redact"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
	// Tools stores tool definitions in Redis instead of the tools directory.
	Tools bool `mapstructure:"tools"`
	// Lock serializes session operations across processes.
	Lock bool `mapstructure:"lock"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MCPConfig struct {
	Transport string `mapstructure:"transport"`
	Port      int    `mapstructure:"port"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Tools:    ".",
		LogLevel: "info",
		Runtime: RuntimeConfig{
			LogCapacity: 200,
			NoticeTTL:   5 * time.Second,
		},
		Sessions: SessionConfig{
			Store: StoreFile,
			Path:  filepath.Join(".toolbake", "sessions"),
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Server: ServerConfig{Port: 8080},
		MCP:    MCPConfig{Transport: "stdio", Port: 8081},
	}
}

// Find returns the first config file present in dir, or "".
func Find(dir string) string {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Load reads path over the defaults. Relative paths inside the file are
// resolved against the file's directory. An empty path returns Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	raw := map[string]any{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	case ".toml":
		err = toml.Unmarshal(data, &raw)
	case ".json":
		err = json.Unmarshal(data, &raw)
	default:
		return cfg, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := decode(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}

	base := filepath.Dir(path)
	cfg.Tools = resolve(base, cfg.Tools)
	cfg.Sessions.Path = resolve(base, cfg.Sessions.Path)
	if cfg.Runtime.Processes != "" {
		cfg.Runtime.Processes = resolve(base, cfg.Runtime.Processes)
	}
	return cfg, nil
}

func decode(raw map[string]any, out *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
