package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config holds the sttpl command configuration
type Config struct {
	General  GeneralConfig  `toml:"general" yaml:"general"`
	Template TemplateConfig `toml:"template" yaml:"template"`
	Watch    WatchConfig    `toml:"watch" yaml:"watch"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	LogLevel string `toml:"log_level" yaml:"log_level"`
}

// TemplateConfig holds lexer and writer settings
type TemplateConfig struct {
	StartDelimiter string `toml:"start_delimiter" yaml:"start_delimiter"`
	StopDelimiter  string `toml:"stop_delimiter" yaml:"stop_delimiter"`
	LineWidth      int    `toml:"line_width" yaml:"line_width"`
	Newline        string `toml:"newline" yaml:"newline"`
	Extension      string `toml:"extension" yaml:"extension"`
}

// WatchConfig holds settings for render --watch
type WatchConfig struct {
	Interval Duration `toml:"interval" yaml:"interval"`
}

// Duration wraps time.Duration for TOML and YAML parsing
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Load reads a TOML file, or a YAML file when the extension is .yaml or .yml
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv loads configuration from the STTPL_CONFIG environment variable
// or the first default location that exists. With neither it returns the
// defaults.
func LoadFromEnv() (*Config, error) {
	path := os.Getenv("STTPL_CONFIG")
	if path == "" {
		defaultPaths := []string{
			"./sttpl.toml",
			"./sttpl.yaml",
			filepath.Join(os.Getenv("HOME"), ".config/sttpl/config.toml"),
		}
		for _, p := range defaultPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path == "" {
		return Default(), nil
	}

	return Load(path)
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	if c.General.LogLevel == "" {
		c.General.LogLevel = "info"
	}
	if c.Template.StartDelimiter == "" {
		c.Template.StartDelimiter = "<"
	}
	if c.Template.StopDelimiter == "" {
		c.Template.StopDelimiter = ">"
	}
	if c.Template.Newline == "" {
		c.Template.Newline = "\n"
	}
	if c.Template.Extension == "" {
		c.Template.Extension = ".st"
	}
	if c.Watch.Interval.Duration == 0 {
		c.Watch.Interval.Duration = time.Second
	}
}

// Validate checks that the delimiters are single characters and the line
// width is not negative
func (c *Config) Validate() error {
	if utf8.RuneCountInString(c.Template.StartDelimiter) != 1 {
		return fmt.Errorf("start_delimiter must be one character, got %q", c.Template.StartDelimiter)
	}
	if utf8.RuneCountInString(c.Template.StopDelimiter) != 1 {
		return fmt.Errorf("stop_delimiter must be one character, got %q", c.Template.StopDelimiter)
	}
	if c.Template.LineWidth < 0 {
		return fmt.Errorf("line_width must not be negative, got %d", c.Template.LineWidth)
	}
	return nil
}

// Delimiters returns the start and stop delimiter runes
func (c *Config) Delimiters() (rune, rune) {
	start, _ := utf8.DecodeRuneInString(c.Template.StartDelimiter)
	stop, _ := utf8.DecodeRuneInString(c.Template.StopDelimiter)
	return start, stop
}
