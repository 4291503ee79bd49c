package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Locator LocatorConfig
	Output  OutputConfig
	GoTest  GoTestConfig
	History HistoryConfig
	Log     LogConfig
}

type LocatorConfig struct {
	Suffixes []string `toml:"suffixes"`
}

type OutputConfig struct {
	Path string `toml:"path"`
}

type GoTestConfig struct {
	Root           string `toml:"root"`
	MaxOutputLines int    `toml:"max_output_lines"`
}

type HistoryConfig struct {
	DBPath   string `toml:"db_path"`
	KeepRuns int    `toml:"keep_runs"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type LoadResult struct {
	Config   Config
	Warnings []string
}

func DefaultConfig() Config {
	return Config{
		Locator: LocatorConfig{
			Suffixes: []string{"_spec.rb", "_test.go"},
		},
		GoTest: GoTestConfig{
			Root:           ".",
			MaxOutputLines: 200,
		},
		History: HistoryConfig{
			DBPath:   "~/.local/state/failloc/history.db",
			KeepRuns: 50,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "failloc", "config.toml")
}

func Load() (*LoadResult, error) {
	return LoadFrom(DefaultConfigPath())
}

func LoadFrom(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &LoadResult{Config: DefaultConfig()}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	result, err := LoadFromString(string(data))
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return result, nil
}

var knownTopLevel = map[string]bool{
	"locator": true,
	"output":  true,
	"gotest":  true,
	"history": true,
	"log":     true,
}

func LoadFromString(data string) (*LoadResult, error) {
	result := &LoadResult{Config: DefaultConfig()}

	if data == "" {
		return result, nil
	}

	var raw map[string]any
	if _, err := toml.Decode(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	for key := range raw {
		if !knownTopLevel[key] {
			result.Warnings = append(result.Warnings, fmt.Sprintf("unknown config key: %q", key))
		}
	}

	var tf tomlFile
	if _, err := toml.Decode(data, &tf); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	mergeFromRaw(&result.Config, &tf, raw)

	if err := validate(&result.Config); err != nil {
		return nil, err
	}

	return result, nil
}

type tomlFile struct {
	Locator *LocatorConfig `toml:"locator"`
	Output  *OutputConfig  `toml:"output"`
	GoTest  *GoTestConfig  `toml:"gotest"`
	History *HistoryConfig `toml:"history"`
	Log     *LogConfig     `toml:"log"`
}

// mergeFromRaw copies only the keys present in the file, so that zero values
// in the decoded structs never clobber defaults.
func mergeFromRaw(cfg *Config, tf *tomlFile, raw map[string]any) {
	if tf.Locator != nil {
		if section, ok := rawSection(raw, "locator"); ok {
			if _, exists := section["suffixes"]; exists {
				cfg.Locator.Suffixes = tf.Locator.Suffixes
			}
		}
	}
	if tf.Output != nil {
		if section, ok := rawSection(raw, "output"); ok {
			if _, exists := section["path"]; exists {
				cfg.Output.Path = tf.Output.Path
			}
		}
	}
	if tf.GoTest != nil {
		if section, ok := rawSection(raw, "gotest"); ok {
			if _, exists := section["root"]; exists {
				cfg.GoTest.Root = tf.GoTest.Root
			}
			if _, exists := section["max_output_lines"]; exists {
				cfg.GoTest.MaxOutputLines = tf.GoTest.MaxOutputLines
			}
		}
	}
	if tf.History != nil {
		if section, ok := rawSection(raw, "history"); ok {
			if _, exists := section["db_path"]; exists {
				cfg.History.DBPath = tf.History.DBPath
			}
			if _, exists := section["keep_runs"]; exists {
				cfg.History.KeepRuns = tf.History.KeepRuns
			}
		}
	}
	if tf.Log != nil {
		if section, ok := rawSection(raw, "log"); ok {
			if _, exists := section["level"]; exists {
				cfg.Log.Level = tf.Log.Level
			}
			if _, exists := section["format"]; exists {
				cfg.Log.Format = tf.Log.Format
			}
		}
	}
}

func rawSection(raw map[string]any, key string) (map[string]any, bool) {
	v, ok := raw[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func validate(cfg *Config) error {
	var errs []string

	if len(cfg.Locator.Suffixes) == 0 {
		errs = append(errs, "locator suffixes must not be empty")
	}
	for i, s := range cfg.Locator.Suffixes {
		if strings.TrimSpace(s) == "" {
			errs = append(errs, fmt.Sprintf("locator suffixes[%d] must not be blank", i))
		}
	}

	if cfg.GoTest.Root == "" {
		errs = append(errs, "gotest root must not be empty")
	}
	if cfg.GoTest.MaxOutputLines < 1 {
		errs = append(errs, fmt.Sprintf("gotest max_output_lines must be positive, got %d", cfg.GoTest.MaxOutputLines))
	}

	if cfg.History.KeepRuns < 1 {
		errs = append(errs, fmt.Sprintf("history keep_runs must be positive, got %d", cfg.History.KeepRuns))
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log level must be debug, info, warn or error, got %q", cfg.Log.Level))
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("log format must be console or json, got %q", cfg.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation error: %s", strings.Join(errs, "; "))
	}
	return nil
}
