// Package config loads classmap settings from defaults, a TOML file,
// CLASSMAP_* environment variables and command-line flags, in increasing
// order of priority.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/phobologic/classmap/internal/analyze"
	"github.com/phobologic/classmap/internal/classify"
	"github.com/phobologic/classmap/internal/discover"
	"github.com/phobologic/classmap/internal/lang"
	"github.com/phobologic/classmap/internal/logging"
)

// FileName is the config file looked up in the analysis root when no
// explicit path is given.
const FileName = ".classmap.toml"

const envPrefix = "CLASSMAP_"

// Config holds every setting. Extension keys are written without the
// leading dot ("gvy" = "groovy").
type Config struct {
	Languages       []string            `koanf:"languages"`
	Extensions      map[string]string   `koanf:"extensions"`
	Exclude         []string            `koanf:"exclude"`
	SkipTests       bool                `koanf:"skip_tests"`
	MaxFiles        int                 `koanf:"max_files"`
	MaxFileSize     int64               `koanf:"max_file_size"`
	Workers         int                 `koanf:"workers"`
	CacheSize       int                 `koanf:"cache_size"`
	Format          string              `koanf:"format"`
	MaxNodes        int                 `koanf:"max_nodes"`
	DependencyMode  bool                `koanf:"dependency_mode"`
	PrivatePrefixes map[string][]string `koanf:"private_prefixes"`
	AbstractMarkers map[string][]string `koanf:"abstract_markers"`
	Snapshot        string              `koanf:"snapshot"`
	LogLevel        string              `koanf:"log_level"`
	Debounce        time.Duration       `koanf:"debounce"`
}

// Output formats.
const (
	FormatTOON = "toon"
	FormatJSON = "json"
)

// listKeys are split on commas when set through the environment.
var listKeys = map[string]bool{
	"languages": true,
	"exclude":   true,
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"languages":        []string{},
		"exclude":          []string{},
		"skip_tests":       false,
		"max_files":        0,
		"max_file_size":    analyze.DefaultMaxFileSize,
		"workers":          0,
		"cache_size":       analyze.DefaultCacheSize,
		"format":           FormatTOON,
		"max_nodes":        0,
		"dependency_mode":  false,
		"private_prefixes": map[string]interface{}{"python": []string{"__"}},
		"snapshot":         ".classmap-snapshot.json",
		"log_level":        "warn",
		"debounce":         500 * time.Millisecond,
	}
}

// RegisterFlags defines the flags that override config keys.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (default: "+FileName+" in the analyzed root)")
	fs.StringSliceP("languages", "l", nil, "languages to include (python, java, groovy)")
	fs.StringSlice("exclude", nil, "glob patterns of paths to skip")
	fs.Bool("skip-tests", false, "skip test files")
	fs.Int("max-files", 0, "maximum number of files to analyze")
	fs.Int64("max-file-size", analyze.DefaultMaxFileSize, "skip files larger than this many bytes")
	fs.IntP("workers", "j", 0, "parsing goroutines (default: number of CPUs)")
	fs.String("format", FormatTOON, "output format: toon or json")
	fs.IntP("max-nodes", "n", 0, "keep only the top-ranked graph nodes")
	fs.Bool("dependency-mode", false, "report typed parameters as dependency instead of association")
	fs.String("snapshot", "", "snapshot file (.json, .yaml or .db)")
	fs.String("log-level", "warn", "log level: debug, info, warn or error")
	fs.Duration("debounce", 500*time.Millisecond, "watch mode debounce interval")
}

// Load resolves the configuration for root. configPath, when set, must
// exist; otherwise root/.classmap.toml is read if present. fs may be nil.
func Load(root, configPath string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(makeMapProvider(defaults()), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	path := configPath
	if path == "" {
		path = filepath.Join(root, FileName)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// 3. Environment variables, e.g. CLASSMAP_MAX_FILES=100
	if err := k.Load(env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
		if listKeys[key] {
			return key, splitList(value)
		}
		return key, value
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if fs != nil {
		if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if f.Name == "config" || f.Name == "help" {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(fs, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	for _, name := range c.Languages {
		if _, ok := lang.Languages[name]; !ok {
			return fmt.Errorf("unsupported language %q", name)
		}
	}

	exts := make(map[string]string, len(c.Extensions))
	for ext, name := range c.Extensions {
		if _, ok := lang.Languages[name]; !ok {
			return fmt.Errorf("extension %q: unsupported language %q", ext, name)
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = name
	}
	c.Extensions = exts

	c.Format = strings.ToLower(c.Format)
	if c.Format != FormatTOON && c.Format != FormatJSON {
		return fmt.Errorf("unknown format %q (want %s or %s)", c.Format, FormatTOON, FormatJSON)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.MaxFiles < 0 || c.MaxNodes < 0 || c.Workers < 0 {
		return errors.New("max_files, max_nodes and workers must not be negative")
	}
	if c.Debounce <= 0 {
		return fmt.Errorf("debounce must be positive, got %s", c.Debounce)
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	level, _ := logging.ParseLevel(c.LogLevel)
	return level
}

// AnalyzeOptions converts the config into analyzer options.
func (c *Config) AnalyzeOptions(log *slog.Logger) analyze.Options {
	return analyze.Options{
		Discover: discover.Options{
			Languages:  c.Languages,
			Extensions: c.Extensions,
			Exclude:    c.Exclude,
			SkipTests:  c.SkipTests,
		},
		Classify: classify.Options{
			PrivatePrefixes:    c.PrivatePrefixes,
			ParamsAsDependency: c.DependencyMode,
		},
		Markers:     c.AbstractMarkers,
		Workers:     c.Workers,
		MaxFiles:    c.MaxFiles,
		MaxFileSize: c.MaxFileSize,
		CacheSize:   c.CacheSize,
		Logger:      log,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
