package config

import "sort"

// Presets are named starting points for common runs.
var Presets = map[string]*Config{
	"debug": {
		VersionConstraint: DefaultVersionConstraint,
		Allocator:         "go",
		ChunkSize:         4 * 1024,
		PoisonOnRelease:   true,
		MaxBodies:         DefaultMaxBodies,
		LogLevel:          "debug",
		DataDir:           DefaultDataDir,
	},
	"release": {
		VersionConstraint: DefaultVersionConstraint,
		Allocator:         "libc",
		ChunkSize:         64 * 1024,
		MaxBodies:         65536,
		LogLevel:          "warn",
		DataDir:           DefaultDataDir,
	},
	"bench": {
		VersionConstraint: DefaultVersionConstraint,
		Allocator:         "pages",
		ChunkSize:         64 * 1024,
		MaxBodies:         65536,
		LogLevel:          "error",
		DataDir:           DefaultDataDir,
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := *p
	return &cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
