// Package config loads bst2go settings from TOML or YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
	"tlog.app/go/errors"

	"github.com/chazu/bst2go/pkg/compiler"
)

// Config holds compiler and driver settings.
type Config struct {
	// Package is the Go package of generated files.
	Package string `toml:"package" yaml:"package"`

	// Type is the name of the generated style struct.
	Type string `toml:"type" yaml:"type"`

	// Runtime is the import path of the bstrt interfaces.
	Runtime string `toml:"runtime" yaml:"runtime"`

	EntryMax  int `toml:"entry_max" yaml:"entry_max"`
	GlobalMax int `toml:"global_max" yaml:"global_max"`

	Optimize bool `toml:"optimize" yaml:"optimize"`

	// Cache is the SQLite file caching generated code. Empty disables it.
	Cache string `toml:"cache" yaml:"cache"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	return &Config{
		Package:   compiler.DefaultPackage,
		Type:      compiler.DefaultTypeName,
		Runtime:   compiler.DefaultRuntimePath,
		EntryMax:  compiler.DefaultEntryMax,
		GlobalMax: compiler.DefaultGlobalMax,
		Optimize:  true,
	}
}

// Load reads a config file. The format follows the extension: .toml, .yaml
// or .yml. Keys missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	c := Default()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, c)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		return nil, errors.New("config %v: unsupported format %q", path, ext)
	}

	if err != nil {
		return nil, errors.Wrap(err, "parse config %v", path)
	}

	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "config %v", path)
	}

	return c, nil
}

// Validate checks the settings are usable.
func (c *Config) Validate() error {
	if c.Package == "" {
		return errors.New("package is empty")
	}
	if c.Type == "" {
		return errors.New("type is empty")
	}
	if c.EntryMax <= 0 || c.GlobalMax <= 0 {
		return errors.New("entry_max and global_max must be positive")
	}
	return nil
}

// CompilerOptions converts the settings for the compiler.
func (c *Config) CompilerOptions() compiler.Options {
	return compiler.Options{
		Package:     c.Package,
		TypeName:    c.Type,
		RuntimePath: c.Runtime,
		EntryMax:    c.EntryMax,
		GlobalMax:   c.GlobalMax,
		NoOptimize:  !c.Optimize,
	}
}

// Fingerprint identifies the settings that affect generated code.
func (c *Config) Fingerprint() string {
	return fmt.Sprintf("%s|%s|%s|%d|%d|%t", c.Package, c.Type, c.Runtime, c.EntryMax, c.GlobalMax, c.Optimize)
}

// Marshal encodes the config in the format named by ext.
func (c *Config) Marshal(ext string) ([]byte, error) {
	switch strings.TrimPrefix(strings.ToLower(ext), ".") {
	case "toml":
		return toml.Marshal(c)
	case "yaml", "yml":
		return yaml.Marshal(c)
	}
	return nil, errors.New("unsupported format %q", ext)
}
