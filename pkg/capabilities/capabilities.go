// Package capabilities provides the built-in capability manifest.
//
// Each capability is a Go value whose exported methods are callable from
// handlers. JavaScript sees method names with a lower-case first letter:
//
//	const y = await requestCapability("yaml");
//	return { out: y.stringify(y.parse(inputWidgets.src)) };
package capabilities

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/toolbake/pkg/registry"
)

// Names of the built-in capabilities.
const (
	NameUUID     = "uuid"
	NameYAML     = "yaml"
	NameTOML     = "toml"
	NameHash     = "hash"
	NameBase64   = "base64"
	NameMarkdown = "markdown"
)

// Entries returns the built-in manifest entries.
func Entries() []registry.Entry {
	return []registry.Entry{
		{Name: NameUUID, URL: "builtin://uuid", Load: registry.Value(UUID{})},
		{Name: NameYAML, URL: "builtin://yaml", Load: registry.Value(YAML{})},
		{Name: NameTOML, URL: "builtin://toml", Load: registry.Value(TOML{})},
		{Name: NameHash, URL: "builtin://hash", Load: registry.Value(Hash{})},
		{Name: NameBase64, URL: "builtin://base64", Load: registry.Value(Base64{})},
		{Name: NameMarkdown, URL: "builtin://markdown", Load: registry.Value(&Markdown{Width: 80})},
	}
}

// Manifest returns a manifest holding the built-in capabilities plus extra.
func Manifest(extra ...registry.Entry) *registry.Manifest {
	return registry.NewManifest(append(Entries(), extra...)...)
}

// UUID generates and checks UUIDs.
type UUID struct{}

// V4 returns a random UUID.
func (UUID) V4() string { return uuid.NewString() }

// Valid reports whether s parses as a UUID.
func (UUID) Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// Normalize returns the canonical form of s.
func (UUID) Normalize(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// YAML parses and renders YAML documents.
type YAML struct{}

// Parse decodes a YAML document.
func (YAML) Parse(src string) (any, error) {
	var out any
	if err := yaml.Unmarshal([]byte(src), &out); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	return out, nil
}

// Stringify encodes v as YAML.
func (YAML) Stringify(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("yaml: %w", err)
	}
	return string(data), nil
}

// TOML parses and renders TOML documents.
type TOML struct{}

// Parse decodes a TOML document into a record.
func (TOML) Parse(src string) (map[string]any, error) {
	out := map[string]any{}
	if _, err := toml.Decode(src, &out); err != nil {
		return nil, fmt.Errorf("toml: %w", err)
	}
	return out, nil
}

// Stringify encodes a record as TOML.
func (TOML) Stringify(v map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(v); err != nil {
		return "", fmt.Errorf("toml: %w", err)
	}
	return buf.String(), nil
}

// Hash computes hex digests of text.
type Hash struct{}

func (Hash) Md5(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (Hash) Sha1(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (Hash) Sha256(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (Hash) Sha512(s string) string {
	sum := sha512.Sum512([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Base64 encodes and decodes text.
type Base64 struct{}

func (Base64) Encode(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func (Base64) Decode(s string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (Base64) EncodeURL(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }

func (Base64) DecodeURL(s string) (string, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Markdown renders markdown for terminals.
type Markdown struct {
	Width int
}

// Render returns markdown styled with ANSI escapes.
func (m *Markdown) Render(src string) (string, error) {
	return m.render(src, glamour.WithStandardStyle("dark"))
}

// Plain returns markdown laid out as plain text.
func (m *Markdown) Plain(src string) (string, error) {
	return m.render(src, glamour.WithStandardStyle("notty"))
}

func (m *Markdown) render(src string, style glamour.TermRendererOption) (string, error) {
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(m.Width))
	if err != nil {
		return "", err
	}
	return r.Render(src)
}
