package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ProcessConfig represents the configuration for an allowed command.
type ProcessConfig struct {
	Name        string            `yaml:"name" json:"name" toml:"name"`
	Command     string            `yaml:"command" json:"command" toml:"command"`
	Args        []string          `yaml:"args" json:"args" toml:"args"`
	Environment map[string]string `yaml:"env" json:"env" toml:"env"`
	Description string            `yaml:"description" json:"description" toml:"description"`
}

// ConfigFile represents the structure of a processes file.
type ConfigFile struct {
	Processes []ProcessConfig `yaml:"processes" json:"processes" toml:"processes"`
}

// LoadConfig reads a configuration file (YAML, JSON or TOML) and returns a
// map of process names to configs. A missing file means no processes.
func LoadConfig(path string) (map[string]ProcessConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]ProcessConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read processes config: %w", err)
	}

	var cfg ConfigFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	case ".toml":
		_, err = toml.Decode(string(data), &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	procs := make(map[string]ProcessConfig)
	for _, p := range cfg.Processes {
		if p.Name == "" {
			continue
		}
		procs[p.Name] = p
	}
	return procs, nil
}
