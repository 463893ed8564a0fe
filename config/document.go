// Package config contains the value host configuration model together with
// loading, schema validation and validity checks of configuration documents.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// Format identifies the encoding of a configuration document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// FormatFromPath derives the document format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

// LokiConfig configures optional Loki integration for logging.
type LokiConfig struct {
	Enabled bool              `json:"enabled,omitempty"`
	URL     string            `json:"url,omitempty"`
	Labels  map[string]string `json:"labels,omitempty"`
}

// LoggingConfig encapsulates runtime logging options.
type LoggingConfig struct {
	Level  string     `json:"level,omitempty"`
	Format string     `json:"format,omitempty"`
	Loki   LokiConfig `json:"loki,omitempty"`
}

// TelemetryConfig configures runtime telemetry exporters.
type TelemetryConfig struct {
	Enabled  bool   `json:"enabled,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// Document is the root of a configuration file. A form is usually described
// by two documents, one owned by the business logic and one by the UI.
type Document struct {
	ValueHosts   []*ValueHostConfig           `json:"valueHosts,omitempty"`
	Culture      string                       `json:"culture,omitempty"`
	Localization map[string]map[string]string `json:"localization,omitempty"`
	Logging      LoggingConfig                `json:"logging,omitempty"`
	Telemetry    TelemetryConfig              `json:"telemetry,omitempty"`
	Source       string                       `json:"-"`
}

// Find returns the value host config named name.
func (d *Document) Find(name string) (*ValueHostConfig, bool) {
	if d == nil {
		return nil, false
	}
	for _, vh := range d.ValueHosts {
		if vh != nil && vh.Name == name {
			return vh, true
		}
	}
	return nil, false
}

// Load reads, validates and decodes the configuration file from disk.
func Load(path string) (*Document, error) {
	if path == "" {
		return nil, errors.New("config path must not be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	format, err := FormatFromPath(abs)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", abs, err)
	}
	doc, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", abs, err)
	}
	doc.Source = abs
	return doc, nil
}

// Parse decodes and validates a document given in format.
func Parse(data []byte, format Format) (*Document, error) {
	raw := map[string]interface{}{}
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, fmt.Errorf("decode toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}
	if err := validateDocument(raw); err != nil {
		return nil, err
	}
	var doc Document
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &doc,
		TagName:     "json",
		ErrorUnused: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}

// Encode renders doc in format.
func Encode(doc *Document, format Format) ([]byte, error) {
	if doc == nil {
		return nil, errors.New("document must not be nil")
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	switch format {
	case FormatJSON:
		return append(data, '\n'), nil
	case FormatYAML, FormatTOML:
		var generic map[string]interface{}
		if err := json.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("re-decode document: %w", err)
		}
		if format == FormatYAML {
			out, err := yaml.Marshal(generic)
			if err != nil {
				return nil, fmt.Errorf("encode yaml: %w", err)
			}
			return out, nil
		}
		var buf strings.Builder
		if err := toml.NewEncoder(&buf).Encode(generic); err != nil {
			return nil, fmt.Errorf("encode toml: %w", err)
		}
		return []byte(buf.String()), nil
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}
}
