package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brettbedarf/isofs/internal/util"
	"gopkg.in/yaml.v3"
)

// Bytes per MB
const MB = 1024 * 1024

// Default configuration constants. See [Config] for field descriptions.
const (
	// DefaultMaxSize is the total byte budget shared by every file
	DefaultMaxSize = 64 * MB

	// DefaultMaxNodes is the node budget; the root directory takes one slot
	DefaultMaxNodes = 4096

	// DefaultMinSector is the smallest chunk allocation above the 16 byte bucket
	DefaultMinSector = 4096

	// DefaultMaxSector is the chunk size files are split into
	DefaultMaxSector = 65536

	// Uses 31 bits (2^31 - 1 = 2,147,483,647) to ensure compatibility with libfuse
	// and avoid signed integer overflow.
	DefaultMaxFH = (1 << 31) - 1

	// DefaultAttrTimeout is the attribute cache timeout in seconds
	DefaultAttrTimeout = 1.0

	// DefaultEntryTimeout is the directory entry cache timeout in seconds
	DefaultEntryTimeout = 1.0

	DefaultLogLvl = util.InfoLevel
	DefaultFsName = "isofs"
	DefaultName   = "isofs"
)

// CLI style verbosity values accepted by [ConfigOverride.LogLvl]
const (
	ErrorVerbose = iota + 1
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// Config contains runtime configuration values for the isolated filesystem.
type Config struct {
	MountOptions
	LogLvl util.LogLevel // Internal log level (Default info)

	MaxSize   uint64 // Total bytes files may reserve (Default 64MB)
	MaxNodes  uint64 // Total nodes including the root directory (Default 4096)
	MinSector int    // Smallest bucketed chunk allocation, power of two (Default 4096)
	MaxSector int    // File chunk size, power of two >= MinSector (Default 65536)

	// NOTE: Low-level FUSE config (strongly recommend defaults unless you really know what you're doing):

	MaxFH        int     // Maximum file handle value for FUSE compatibility (Default 2147483647)
	AttrTimeout  float64 // Attribute cache timeout in seconds (Default 1.0)
	EntryTimeout float64 // Directory entry cache timeout in seconds (Default 1.0)
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
type ConfigOverride struct {
	Debug        *bool    `yaml:"debug,omitempty" json:"debug,omitempty"`
	FsName       *string  `yaml:"fs_name,omitempty" json:"fs_name,omitempty"`
	Name         *string  `yaml:"name,omitempty" json:"name,omitempty"`
	LogLvl       *int     `yaml:"verbose,omitempty" json:"verbose,omitempty"` // CLI verbosity 1 (error) .. 5 (trace)
	MaxSize      *uint64  `yaml:"max_size,omitempty" json:"max_size,omitempty"`
	MaxNodes     *uint64  `yaml:"max_nodes,omitempty" json:"max_nodes,omitempty"`
	MinSector    *int     `yaml:"min_sector,omitempty" json:"min_sector,omitempty"`
	MaxSector    *int     `yaml:"max_sector,omitempty" json:"max_sector,omitempty"`
	MaxFH        *int     `yaml:"max_fh,omitempty" json:"max_fh,omitempty"`
	AttrTimeout  *float64 `yaml:"attr_timeout,omitempty" json:"attr_timeout,omitempty"`
	EntryTimeout *float64 `yaml:"entry_timeout,omitempty" json:"entry_timeout,omitempty"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	return &Config{
		MountOptions: MountOptions{
			FsName: DefaultFsName,
			Name:   DefaultName,
		},
		LogLvl:       DefaultLogLvl,
		MaxSize:      DefaultMaxSize,
		MaxNodes:     DefaultMaxNodes,
		MinSector:    DefaultMinSector,
		MaxSector:    DefaultMaxSector,
		MaxFH:        DefaultMaxFH,
		AttrTimeout:  DefaultAttrTimeout,
		EntryTimeout: DefaultEntryTimeout,
	}
}

// NewConfig creates a Config from the defaults with override applied.
// A nil override yields the defaults.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.Debug != nil {
		c.Debug = *override.Debug
	}
	if override.FsName != nil {
		c.FsName = *override.FsName
	}
	if override.Name != nil {
		c.Name = *override.Name
	}
	if override.LogLvl != nil {
		c.LogLvl = util.LevelFromVerbosity(*override.LogLvl)
	}
	if override.MaxSize != nil {
		c.MaxSize = *override.MaxSize
	}
	if override.MaxNodes != nil {
		c.MaxNodes = *override.MaxNodes
	}
	if override.MinSector != nil {
		c.MinSector = *override.MinSector
	}
	if override.MaxSector != nil {
		c.MaxSector = *override.MaxSector
	}
	if override.MaxFH != nil {
		c.MaxFH = *override.MaxFH
	}
	if override.AttrTimeout != nil {
		c.AttrTimeout = *override.AttrTimeout
	}
	if override.EntryTimeout != nil {
		c.EntryTimeout = *override.EntryTimeout
	}
}

// Validate reports configuration values the filesystem cannot run with.
func (c *Config) Validate() error {
	if !isPow2(c.MinSector) || !isPow2(c.MaxSector) {
		return fmt.Errorf("sector sizes must be powers of two (min %d, max %d)", c.MinSector, c.MaxSector)
	}
	if c.MinSector < 16 || c.MinSector > c.MaxSector {
		return fmt.Errorf("sector sizes must satisfy 16 <= min <= max (min %d, max %d)", c.MinSector, c.MaxSector)
	}
	if c.MaxFH < 1 {
		return fmt.Errorf("max_fh must be positive, got %d", c.MaxFH)
	}
	return nil
}

func isPow2(v int) bool {
	return v > 0 && v&(v-1) == 0
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
// This is a convenience function that combines NewDefaultConfig, LoadConfigOverrideFile, and Merge.
func NewConfigFromFile(path string) (*Config, error) {
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	return NewConfig(override), nil
}
