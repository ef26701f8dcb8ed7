// Package config resolves a site's configuration document and command-line overrides
// into one immutable Settings value.
package config

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/mllt/internal/foundation/errors"
)

// DefaultFile is the configuration file looked up when none is given.
const DefaultFile = "mllt.toml"

// Document is the configuration document as written by the user. Pointer fields record
// whether an option was present in the file, which Resolve needs for precedence.
type Document struct {
	Site   SiteTable      `toml:"site" yaml:"site"`
	Params map[string]any `toml:"params" yaml:"params"`

	// path of the file the document was loaded from; empty for in-memory documents.
	path string
}

// SiteTable is the [site] table.
type SiteTable struct {
	BaseURL      *string `toml:"baseURL,omitempty" yaml:"baseURL,omitempty"`
	PublishDir   *string `toml:"publishdir,omitempty" yaml:"publishdir,omitempty"`
	Content      *string `toml:"content,omitempty" yaml:"content,omitempty"`
	Theme        *string `toml:"theme,omitempty" yaml:"theme,omitempty"`
	Assets       *string `toml:"assets,omitempty" yaml:"assets,omitempty"`
	Strict       *bool   `toml:"strict,omitempty" yaml:"strict,omitempty"`
	Prune        *bool   `toml:"prune,omitempty" yaml:"prune,omitempty"`
	AssetCompare *string `toml:"asset_compare,omitempty" yaml:"asset_compare,omitempty"`
	Workers      *int    `toml:"workers,omitempty" yaml:"workers,omitempty"`
}

// Path returns the file the document was loaded from.
func (d *Document) Path() string { return d.path }

// Dir returns the directory file-supplied relative paths are resolved against.
func (d *Document) Dir() string {
	if d.path == "" {
		return ""
	}
	return filepath.Dir(d.path)
}

// Load reads and decodes the configuration file at configPath. Environment variables
// from .env and .env.local next to the file are loaded first (existing variables win)
// and ${VAR} references in the file are expanded before decoding.
func Load(configPath string) (*Document, error) {
	if configPath == "" {
		configPath = DefaultFile
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, errors.ConfigError("configuration file not found").
			WithContext("file", configPath).
			Build()
	}

	loadEnvFiles(filepath.Dir(configPath))

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read configuration file").
			Fatal().
			WithContext("file", configPath).
			Build()
	}

	doc, err := Parse(data, formatFor(configPath))
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to parse configuration file").
			Fatal().
			WithContext("file", configPath).
			Build()
	}

	abs, err := filepath.Abs(configPath)
	if err != nil {
		abs = configPath
	}
	doc.path = abs
	return doc, nil
}

// Format identifies the syntax of a configuration document.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

func formatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// Parse decodes an in-memory document after expanding environment references.
func Parse(data []byte, format Format) (*Document, error) {
	expanded := os.ExpandEnv(string(data))

	var doc Document
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(strings.NewReader(expanded))
		if err := dec.Decode(&doc); err != nil && err != io.EOF {
			return nil, fmt.Errorf("yaml: %w", err)
		}
	default:
		md, err := toml.Decode(expanded, &doc)
		if err != nil {
			return nil, err
		}
		for _, key := range md.Undecoded() {
			// params is decoded into a map, so only unknown [site] keys land here.
			if len(key) > 0 && key[0] == "site" {
				slog.Warn("Ignoring unknown configuration key", "key", key.String())
			}
		}
	}

	if doc.Params == nil {
		doc.Params = map[string]any{}
	}
	return &doc, nil
}

// Encode writes the document as TOML.
func (d *Document) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func loadEnvFiles(dir string) {
	for _, name := range []string{".env", ".env.local"} {
		envPath := filepath.Join(dir, name)
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err != nil {
			slog.Warn("Failed to load environment file", "path", envPath, "error", err)
			continue
		}
		slog.Debug("Loaded environment variables", "path", envPath)
	}
}
