// Package file stores tools and session snapshots on the local filesystem.
package file

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/toolbake/pkg/domain"
)

// ErrUnsupportedFormat is returned for file extensions without a codec.
var ErrUnsupportedFormat = errors.New("unsupported tool file format")

// Extensions lists the tool file extensions, in lookup order.
var Extensions = []string{".yaml", ".yml", ".json", ".toml"}

// Decode parses a tool document. The format is chosen by ext.
func Decode(ext string, data []byte) (*domain.Tool, error) {
	var tool domain.Tool
	var err error
	switch strings.ToLower(ext) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		err = dec.Decode(&tool)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &tool)
	case ".toml":
		_, err = toml.Decode(string(data), &tool)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode tool: %w", err)
	}
	return &tool, nil
}

// Encode renders a tool in the format chosen by ext.
func Encode(ext string, tool *domain.Tool) ([]byte, error) {
	switch strings.ToLower(ext) {
	case ".json":
		return json.MarshalIndent(tool, "", "  ")
	case ".yaml", ".yml":
		return yaml.Marshal(tool)
	case ".toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(tool); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

// ReadTool loads a tool file. A tool without an ID takes the file name.
func ReadTool(path string) (*domain.Tool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ext := filepath.Ext(path)
	tool, err := Decode(ext, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if tool.ID == "" {
		tool.ID = strings.TrimSuffix(filepath.Base(path), ext)
	}
	return tool, nil
}
