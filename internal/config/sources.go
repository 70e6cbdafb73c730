package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"econbot/internal/model"
)

// SourceDef describes one configured producer.
type SourceDef struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Category string `yaml:"category"`
	URL      string `yaml:"url"`

	// table sources only
	Rows      string            `yaml:"rows"`
	Columns   map[string]int    `yaml:"columns"`
	Selectors map[string]string `yaml:"selectors"`
	Tag       string            `yaml:"tag"`
	UserAgent string            `yaml:"user_agent"`

	Limit int    `yaml:"limit"`
	Lang  string `yaml:"lang"`
	// Unavailable publishes a "data unavailable" section when the fetch fails.
	Unavailable bool `yaml:"unavailable"`
	Disabled    bool `yaml:"disabled"`
}

type sourcesFile struct {
	Sources []SourceDef `yaml:"sources"`
}

func LoadSources(path string) ([]SourceDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources: %w", err)
	}

	return ParseSources(data)
}

// ParseSources decodes and validates a source list. Disabled entries are dropped.
func ParseSources(data []byte) ([]SourceDef, error) {
	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse sources: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Sources))
	defs := make([]SourceDef, 0, len(file.Sources))

	for i, def := range file.Sources {
		def.Name = strings.TrimSpace(def.Name)
		def.Kind = strings.ToLower(strings.TrimSpace(def.Kind))

		if def.Name == "" {
			return nil, fmt.Errorf("source #%d: name is required", i+1)
		}
		if _, ok := seen[def.Name]; ok {
			return nil, fmt.Errorf("source %s: duplicate name", def.Name)
		}
		seen[def.Name] = struct{}{}

		if def.URL == "" {
			return nil, fmt.Errorf("source %s: url is required", def.Name)
		}
		if _, err := model.ParseCategory(def.Category); err != nil {
			return nil, fmt.Errorf("source %s: %w", def.Name, err)
		}

		switch def.Kind {
		case "rss":
		case "table":
			if len(def.Columns) == 0 && len(def.Selectors) == 0 {
				return nil, fmt.Errorf("source %s: table needs columns or selectors", def.Name)
			}
		default:
			return nil, fmt.Errorf("source %s: unknown kind %q", def.Name, def.Kind)
		}

		if def.Disabled {
			continue
		}
		defs = append(defs, def)
	}

	return defs, nil
}
