// Package config resolves the server's startup configuration.
//
// Every setting follows the same precedence: explicit command-line value,
// then environment variable, then default. The result is computed once in
// main and passed by value to the components that need it; nothing in
// the server mutates it afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted when no flag is given
const (
	EnvConfigPath = "AST_GREP_CONFIG"
	EnvBinary     = "AST_GREP_BIN"
	EnvHistoryDB  = "AST_GREP_HISTORY_DB"
	EnvTimeout    = "AST_GREP_TIMEOUT"
)

var (
	ErrConfigNotFound    = errors.New("config file does not exist")
	ErrConfigIsDirectory = errors.New("config path is a directory")
	// ErrConfigUnparsable is reported through Config.Warnings, never returned by Load
	ErrConfigUnparsable = errors.New("config file is not valid YAML")
)

// BuiltinLanguages are the languages ast-grep supports out of the box
var BuiltinLanguages = []string{
	"bash", "c", "cpp", "csharp", "css", "elixir", "go", "haskell", "html",
	"java", "javascript", "json", "jsx", "kotlin", "lua", "nix", "php",
	"python", "ruby", "rust", "scala", "solidity", "swift", "tsx",
	"typescript", "yaml",
}

// Options holds explicitly provided values; empty fields fall back to the environment
type Options struct {
	ConfigPath string
	Binary     string
	HistoryDB  string
	Timeout    time.Duration
	Verbose    bool
}

// Config is the resolved, read-only server configuration
type Config struct {
	ConfigPath      string        // sgconfig.yaml passed to every invocation, may be empty
	Binary          string        // ast-grep executable, may be empty for the default
	HistoryDB       string        // invocation history database, empty disables history
	Timeout         time.Duration // per-invocation limit, zero for none
	Verbose         bool
	CustomLanguages []string // from the config file's customLanguages section
	Warnings        []error  // non-fatal problems found while loading
}

// sgConfig is the subset of sgconfig.yaml the server reads
type sgConfig struct {
	CustomLanguages map[string]any `yaml:"customLanguages"`
}

// Load resolves opts against the environment and validates the config file
func Load(opts Options) (*Config, error) {
	return load(opts, os.Getenv)
}

func load(opts Options, getenv func(string) string) (*Config, error) {
	cfg := &Config{
		ConfigPath: firstNonEmpty(opts.ConfigPath, getenv(EnvConfigPath)),
		Binary:     firstNonEmpty(opts.Binary, getenv(EnvBinary)),
		HistoryDB:  firstNonEmpty(opts.HistoryDB, getenv(EnvHistoryDB)),
		Timeout:    opts.Timeout,
		Verbose:    opts.Verbose,
	}

	if cfg.Timeout == 0 {
		if raw := getenv(EnvTimeout); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid %s value %q: %w", EnvTimeout, raw, err)
			}
			cfg.Timeout = d
		}
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative, got %s", cfg.Timeout)
	}

	if cfg.ConfigPath != "" {
		langs, err := readCustomLanguages(cfg.ConfigPath)
		switch {
		case errors.Is(err, ErrConfigUnparsable):
			cfg.Warnings = append(cfg.Warnings, err)
		case err != nil:
			return nil, err
		}
		cfg.CustomLanguages = langs
	}

	return cfg, nil
}

// readCustomLanguages validates path and returns its custom language names.
// A file that is not valid YAML yields ErrConfigUnparsable and no languages;
// the file is still passed to ast-grep, which reports its own errors on use.
func readCustomLanguages(path string) ([]string, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrConfigIsDirectory, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var sg sgConfig
	if err := yaml.Unmarshal(data, &sg); err != nil {
		return nil, fmt.Errorf("%w: %s: custom languages ignored: %v", ErrConfigUnparsable, path, err)
	}

	langs := make([]string, 0, len(sg.CustomLanguages))
	for name := range sg.CustomLanguages {
		langs = append(langs, name)
	}
	sort.Strings(langs)
	return langs, nil
}

// Languages returns the builtin and custom languages, sorted and deduplicated
func (c *Config) Languages() []string {
	seen := make(map[string]struct{}, len(BuiltinLanguages)+len(c.CustomLanguages))
	langs := make([]string, 0, len(BuiltinLanguages)+len(c.CustomLanguages))
	for _, list := range [][]string{BuiltinLanguages, c.CustomLanguages} {
		for _, l := range list {
			if _, ok := seen[l]; ok {
				continue
			}
			seen[l] = struct{}{}
			langs = append(langs, l)
		}
	}
	sort.Strings(langs)
	return langs
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
