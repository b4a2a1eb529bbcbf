// Package config loads dyngen settings from a YAML file, an optional .env
// file and DYNGEN_* environment variables, in that order of precedence
// (later wins). Command-line flags override all of them.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/dyngen/internal/solver"
)

const (
	DefaultBuildDir  = "build"
	DefaultBuildMode = "lazy"
	DefaultStore     = ".dyngen/history.db"
	DefaultCacheSize = 64
)

// Environment variables read by ApplyEnv.
const (
	EnvBuildDir  = "DYNGEN_BUILD_DIR"
	EnvBuildMode = "DYNGEN_BUILD_MODE"
	EnvStore     = "DYNGEN_STORE"
	EnvDebug     = "DYNGEN_DEBUG"
	EnvCacheSize = "DYNGEN_CACHE_SIZE"
)

type Config struct {
	BuildDir  string          `yaml:"build_dir"`
	BuildMode string          `yaml:"build_mode"`
	Store     string          `yaml:"store"`
	CacheSize int             `yaml:"cache_size"`
	Debug     bool            `yaml:"debug"`
	Solver    solver.Settings `yaml:"solver"`
}

func DefaultConfig() *Config {
	return &Config{
		BuildDir:  DefaultBuildDir,
		BuildMode: DefaultBuildMode,
		Store:     DefaultStore,
		CacheSize: DefaultCacheSize,
		Solver:    solver.DefaultSettings(),
	}
}

// Load reads a YAML config file over the defaults. Fields missing from the
// file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
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

// Resolve builds the effective configuration. path may be empty, in which
// case only defaults, .env and the environment apply. A missing .env file
// is not an error.
func Resolve(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from DYNGEN_* variables. Empty values are
// ignored.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvBuildDir)); v != "" {
		c.BuildDir = v
	}
	if v := strings.TrimSpace(getenv(EnvBuildMode)); v != "" {
		c.BuildMode = v
	}
	if v := strings.TrimSpace(getenv(EnvStore)); v != "" {
		c.Store = v
	}
	if v := strings.TrimSpace(getenv(EnvDebug)); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDebug, err)
		}
		c.Debug = debug
	}
	if v := strings.TrimSpace(getenv(EnvCacheSize)); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 {
			return fmt.Errorf("%s: %q is not a positive integer", EnvCacheSize, v)
		}
		c.CacheSize = size
	}
	return nil
}
