// Package config loads quire's settings through viper.
//
// Values come from a YAML file (.quire.yml by default), QUIRE_ environment
// variables and command-line flags bound by the CLI. Load applies defaults
// for anything left unset and validates the result.
package config

import (
	stderrors "errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/quire/internal/errors"
	"github.com/conneroisu/quire/internal/logging"
	"github.com/conneroisu/quire/internal/markdown"
)

// Defaults used when a key is unset.
const (
	DefaultPort                   = 8080
	DefaultHost                   = "localhost"
	DefaultContentPath            = "content"
	DefaultFeedItems              = 20
	DefaultDebounce               = 100 * time.Millisecond
	DefaultRescanInterval         = 5 * time.Minute
	DefaultDegradedRescanInterval = 30 * time.Second
)

type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Content ContentConfig `yaml:"content" mapstructure:"content"`
	Render  RenderConfig  `yaml:"render" mapstructure:"render"`
	Feed    FeedConfig    `yaml:"feed" mapstructure:"feed"`
	Watch   WatchConfig   `yaml:"watch" mapstructure:"watch"`
	Journal JournalConfig `yaml:"journal" mapstructure:"journal"`
	Search  SearchConfig  `yaml:"search" mapstructure:"search"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	Host           string   `yaml:"host" mapstructure:"host"`
	BaseURL        string   `yaml:"base_url" mapstructure:"base_url"`
	StaticPath     string   `yaml:"static_path" mapstructure:"static_path"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

type ContentConfig struct {
	Path       string   `yaml:"path" mapstructure:"path"`
	Ignore     []string `yaml:"ignore" mapstructure:"ignore"`
	Drafts     bool     `yaml:"drafts" mapstructure:"drafts"`
	Extensions []string `yaml:"extensions" mapstructure:"extensions"`
	Workers    int      `yaml:"workers" mapstructure:"workers"`
}

type RenderConfig struct {
	HighlightStyle string `yaml:"highlight_style" mapstructure:"highlight_style"`
}

type FeedConfig struct {
	Title       string `yaml:"title" mapstructure:"title"`
	Description string `yaml:"description" mapstructure:"description"`
	MaxItems    int    `yaml:"max_items" mapstructure:"max_items"`
	Author      string `yaml:"author" mapstructure:"author"`
}

type WatchConfig struct {
	Enabled                bool          `yaml:"enabled" mapstructure:"enabled"`
	Debounce               time.Duration `yaml:"debounce" mapstructure:"debounce"`
	RescanInterval         time.Duration `yaml:"rescan_interval" mapstructure:"rescan_interval"`
	DegradedRescanInterval time.Duration `yaml:"degraded_rescan_interval" mapstructure:"degraded_rescan_interval"`
}

type JournalConfig struct {
	// Path of the SQLite history database. Empty disables the journal.
	Path string `yaml:"path" mapstructure:"path"`
}

type SearchConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	// File receives a JSON copy of every log record when set.
	File string `yaml:"file" mapstructure:"file"`
}

// ValidationError names the offending key.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// Load reads the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads configuration from v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "unreadable configuration: "+err.Error())
	}

	// Bools default to true, so only an explicit setting may turn them off.
	config.Watch.Enabled = !v.IsSet("watch.enabled") || v.GetBool("watch.enabled")
	config.Search.Enabled = !v.IsSet("search.enabled") || v.GetBool("search.enabled")

	if !v.IsSet("server.port") {
		config.Server.Port = DefaultPort
	}
	if config.Server.Host == "" {
		config.Server.Host = DefaultHost
	}
	if config.Server.BaseURL == "" {
		config.Server.BaseURL = fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)
	}
	config.Server.BaseURL = strings.TrimRight(config.Server.BaseURL, "/")

	if config.Content.Path == "" {
		config.Content.Path = DefaultContentPath
	}
	if len(config.Content.Extensions) == 0 {
		config.Content.Extensions = []string{".md", ".markdown"}
	}

	if config.Render.HighlightStyle == "" {
		config.Render.HighlightStyle = markdown.DefaultStyle
	}

	if config.Feed.Title == "" {
		config.Feed.Title = "quire"
	}
	if !v.IsSet("feed.max_items") {
		config.Feed.MaxItems = DefaultFeedItems
	}

	if !v.IsSet("watch.debounce") {
		config.Watch.Debounce = DefaultDebounce
	}
	if !v.IsSet("watch.rescan_interval") {
		config.Watch.RescanInterval = DefaultRescanInterval
	}
	if !v.IsSet("watch.degraded_rescan_interval") {
		config.Watch.DegradedRescanInterval = DefaultDegradedRescanInterval
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}

	if err := validateConfig(&config); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "invalid configuration: "+err.Error())
	}

	return &config, nil
}

// validateConfig validates configuration values for correctness
func validateConfig(config *Config) error {
	// Allow 0 for system-assigned ports in testing.
	if config.Server.Port < 0 || config.Server.Port > 65535 {
		return &ValidationError{Field: "server.port", Value: config.Server.Port,
			Message: fmt.Sprintf("port %d is not in valid range 0-65535", config.Server.Port)}
	}
	if strings.ContainsAny(config.Server.Host, ";&|$`()<>\"'\\ ") {
		return &ValidationError{Field: "server.host", Value: config.Server.Host,
			Message: "host contains invalid characters"}
	}

	u, err := url.Parse(config.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Field: "server.base_url", Value: config.Server.BaseURL,
			Message: "must be an absolute http(s) URL"}
	}

	if err := validatePath(config.Content.Path); err != nil {
		return &ValidationError{Field: "content.path", Value: config.Content.Path, Message: err.Error()}
	}
	if config.Server.StaticPath != "" {
		if err := validatePath(config.Server.StaticPath); err != nil {
			return &ValidationError{Field: "server.static_path", Value: config.Server.StaticPath, Message: err.Error()}
		}
	}
	if config.Content.Workers < 0 {
		return &ValidationError{Field: "content.workers", Value: config.Content.Workers,
			Message: "must not be negative"}
	}

	if !markdown.KnownStyle(config.Render.HighlightStyle) {
		return &ValidationError{Field: "render.highlight_style", Value: config.Render.HighlightStyle,
			Message: "unknown highlight style"}
	}

	if config.Feed.MaxItems < 1 {
		return &ValidationError{Field: "feed.max_items", Value: config.Feed.MaxItems,
			Message: "must be at least 1"}
	}

	if config.Watch.Debounce <= 0 {
		return &ValidationError{Field: "watch.debounce", Value: config.Watch.Debounce,
			Message: "must be positive"}
	}
	if config.Watch.RescanInterval < 0 {
		return &ValidationError{Field: "watch.rescan_interval", Value: config.Watch.RescanInterval,
			Message: "must not be negative"}
	}
	if config.Watch.DegradedRescanInterval <= 0 {
		return &ValidationError{Field: "watch.degraded_rescan_interval", Value: config.Watch.DegradedRescanInterval,
			Message: "must be positive"}
	}

	if _, err := logging.ParseLevel(config.Log.Level); err != nil {
		return &ValidationError{Field: "log.level", Value: config.Log.Level, Message: err.Error()}
	}
	if config.Log.Format != "text" && config.Log.Format != "json" {
		return &ValidationError{Field: "log.format", Value: config.Log.Format,
			Message: "must be text or json"}
	}
	if config.Log.File != "" {
		if err := validatePath(config.Log.File); err != nil {
			return &ValidationError{Field: "log.file", Value: config.Log.File, Message: err.Error()}
		}
	}

	return nil
}

// validatePath rejects empty paths and paths containing shell metacharacters.
// Absolute and parent-relative paths are allowed; the content root commonly
// lives outside the working directory.
func validatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)
	if strings.ContainsAny(cleanPath, ";&|$`<>\"'\x00") {
		return fmt.Errorf("path contains invalid characters: %s", path)
	}

	return nil
}

// DefaultConfigFile is read from the working directory when no file is named.
const DefaultConfigFile = ".quire.yml"

// ConfigFileEnv names an alternative config file.
const ConfigFileEnv = "QUIRE_CONFIG_FILE"

// ConfigFile resolves which file to read: the flag value, then the
// environment, then the default.
func ConfigFile(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(ConfigFileEnv); env != "" {
		return env
	}

	return DefaultConfigFile
}

func envReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}

// Configure points v at the config file and the QUIRE_ environment. A
// missing file is tolerated; a malformed one is not.
func Configure(v *viper.Viper, file string) error {
	v.SetConfigFile(file)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("QUIRE")
	v.SetEnvKeyReplacer(envReplacer())
	v.AutomaticEnv()

	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		var notFound viper.ConfigFileNotFoundError
		if stderrors.As(err, &notFound) {
			return nil
		}

		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "reading "+file+": "+err.Error())
	}

	return nil
}

// envKeys are bound explicitly so QUIRE_ variables work without a file.
var envKeys = []string{
	"server.port", "server.host", "server.base_url", "server.static_path", "server.allowed_origins",
	"content.path", "content.ignore", "content.drafts", "content.extensions", "content.workers",
	"render.highlight_style",
	"feed.title", "feed.description", "feed.max_items", "feed.author",
	"watch.enabled", "watch.debounce", "watch.rescan_interval", "watch.degraded_rescan_interval",
	"journal.path",
	"search.enabled",
	"log.level", "log.format", "log.file",
}
