package config

import (
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// Scoped identifies a tracker for hierarchical lookup. Both names are tried
// before the default table, case-insensitively.
type Scoped interface {
	Name() string
	Abbrev() string
}

const defaultSection = "default"

// Config is a parsed configuration document. The zero value behaves like an
// empty document, every lookup falling through to the supplied default.
type Config struct {
	sections map[string]map[string]interface{}
}

// Load reads and parses the TOML document at path.
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	raw := make(map[string]interface{})
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{sections: make(map[string]map[string]interface{})}
	for name, value := range raw {
		table, ok := value.(map[string]interface{})
		if !ok {
			continue
		}
		section := make(map[string]interface{}, len(table))
		for key, v := range table {
			section[strings.ToLower(key)] = v
		}
		cfg.sections[strings.ToLower(name)] = section
	}
	return cfg, nil
}

// lookup returns the raw value for key, walking the tracker name table, the
// abbreviation table, then [default]. Presence wins over truthiness: a key
// set to false in a more specific table shadows any default.
func (c *Config) lookup(tracker Scoped, key string) (interface{}, bool) {
	if c == nil || c.sections == nil {
		return nil, false
	}

	key = strings.ToLower(key)
	scopes := []string{defaultSection}
	if tracker != nil {
		scopes = []string{
			strings.ToLower(tracker.Name()),
			strings.ToLower(tracker.Abbrev()),
			defaultSection,
		}
	}
	for _, scope := range scopes {
		if section, ok := c.sections[scope]; ok {
			if value, ok := section[key]; ok {
				return value, true
			}
		}
	}
	return nil, false
}

// GetString returns the configured string for key or fallback.
func (c *Config) GetString(tracker Scoped, key, fallback string) string {
	value, ok := c.lookup(tracker, key)
	if !ok {
		return fallback
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fallback
}

// GetBool returns the configured boolean for key or fallback. An explicit
// false is returned as false even when fallback is true.
func (c *Config) GetBool(tracker Scoped, key string, fallback bool) bool {
	value, ok := c.lookup(tracker, key)
	if !ok {
		return fallback
	}
	if b, ok := value.(bool); ok {
		return b
	}
	return fallback
}

// GetInt returns the configured integer for key or fallback. TOML integers
// decode as int64.
func (c *Config) GetInt(tracker Scoped, key string, fallback int) int {
	value, ok := c.lookup(tracker, key)
	if !ok {
		return fallback
	}
	switch n := value.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return fallback
}

// Has reports whether key is set in any scope visible to tracker.
func (c *Config) Has(tracker Scoped, key string) bool {
	_, ok := c.lookup(tracker, key)
	return ok
}

// Section names a bare config table (e.g. "img_uploaders") so it can be used
// with the Scoped lookup helpers.
type Section string

func (s Section) Name() string   { return string(s) }
func (s Section) Abbrev() string { return string(s) }
