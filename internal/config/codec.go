package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ParseYAML decodes, defaults and validates a YAML configuration.
// Unknown fields are rejected.
func ParseYAML(data []byte) (*GraphConfig, error) {
	var c GraphConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, errors.Wrap(err, "decode yaml config")
	}
	return finish(&c)
}

// ParseJSON decodes, defaults and validates a JSON configuration.
func ParseJSON(data []byte) (*GraphConfig, error) {
	var c GraphConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "decode json config")
	}
	return finish(&c)
}

func finish(c *GraphConfig) (*GraphConfig, error) {
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads a configuration file. Files ending in .json are parsed as
// JSON, everything else as YAML.
func Load(path string) (*GraphConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseJSON(data)
	}
	return ParseYAML(data)
}

// MarshalYAMLBytes encodes the configuration as YAML.
func (c *GraphConfig) MarshalYAMLBytes() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "encode yaml config")
	}
	return out, nil
}

// ToJSON encodes the configuration as indented JSON.
func (c *GraphConfig) ToJSON() ([]byte, error) {
	out, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encode json config")
	}
	return out, nil
}
