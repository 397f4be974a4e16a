package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Allocator != "go" {
		t.Errorf("expected go allocator, got %s", cfg.Allocator)
	}
	cs, _ := cfg.Constraint()
	if cs.String() == "" {
		t.Error("expected a parsed constraint")
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jph.yaml")
	cfg := DefaultConfig()
	cfg.Library = "/opt/jolt/libjoltc.so"
	cfg.PoisonOnRelease = true
	cfg.LogLevel = "debug"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if *got != *cfg {
		t.Errorf("loaded %+v, want %+v", got, cfg)
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("library: libjoltc.so\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ChunkSize != DefaultChunkSize || cfg.Library != "libjoltc.so" {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad constraint", func(c *Config) { c.VersionConstraint = "not a version" }},
		{"zero chunk", func(c *Config) { c.ChunkSize = 0 }},
		{"zero bodies", func(c *Config) { c.MaxBodies = 0 }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "warn"
	lvl, err := cfg.Level()
	if err != nil || lvl != zapcore.WarnLevel {
		t.Errorf("level = %v, %v", lvl, err)
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("debug")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if !cfg.PoisonOnRelease {
		t.Error("debug preset should poison released memory")
	}
	cfg.LogLevel = "error"
	if Presets["debug"].LogLevel != "debug" {
		t.Error("GetPreset must return a copy")
	}
	for _, name := range ListPresets() {
		if err := GetPreset(name).Validate(); err != nil {
			t.Errorf("preset %s invalid: %v", name, err)
		}
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	if GetPreset("nonexistent") != nil {
		t.Error("expected nil for nonexistent preset")
	}
}

func TestWatchReportsWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jph.yaml")
	if err := Save(path, DefaultConfig()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, err := Watch(ctx, 0, path)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.LogLevel = "debug"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	select {
	case ch := <-changes:
		abs, _ := filepath.Abs(path)
		if ch.Path != abs {
			t.Errorf("change for %s, want %s", ch.Path, abs)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	for range changes {
	}
}
