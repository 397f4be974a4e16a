package config

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	DefaultVersionConstraint = ">= 5.0.0, < 6.0.0"
	DefaultAllocator         = "go"
	DefaultChunkSize         = 16 * 1024
	DefaultMaxBodies         = 1024
	DefaultLogLevel          = "info"
	DefaultDataDir           = "reports"
)

type Config struct {
	// Library is the engine shared library. Empty means search the platform
	// default names.
	Library           string `yaml:"library"`
	VersionConstraint string `yaml:"version_constraint"`
	Allocator         string `yaml:"allocator"`
	ChunkSize         int    `yaml:"chunk_size"`
	PoisonOnRelease   bool   `yaml:"poison_on_release"`
	MaxBodies         int    `yaml:"max_bodies"`
	LogLevel          string `yaml:"log_level"`
	DataDir           string `yaml:"data_dir"`
}

func DefaultConfig() *Config {
	return &Config{
		VersionConstraint: DefaultVersionConstraint,
		Allocator:         DefaultAllocator,
		ChunkSize:         DefaultChunkSize,
		MaxBodies:         DefaultMaxBodies,
		LogLevel:          DefaultLogLevel,
		DataDir:           DefaultDataDir,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if _, err := c.Constraint(); err != nil {
		return err
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.MaxBodies <= 0 {
		return fmt.Errorf("max_bodies must be positive, got %d", c.MaxBodies)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Constraint parses the accepted engine version range.
func (c *Config) Constraint() (*semver.Constraints, error) {
	cs, err := semver.NewConstraint(c.VersionConstraint)
	if err != nil {
		return nil, fmt.Errorf("version_constraint %q: %w", c.VersionConstraint, err)
	}
	return cs, nil
}

func (c *Config) Level() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}
