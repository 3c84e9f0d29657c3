// Package config provides configuration management for siteforge projects
// using Viper for flexible configuration loading from files, environment
// variables, and command-line flags.
//
// The configuration system supports YAML files, environment variable overrides
// with the SITEFORGE_ prefix, defaults that mirror the stock template project
// layout, and validation of every path the pipeline reads or deletes. The
// central piece is the PathTable, the immutable mapping from asset category to
// source globs and destination directory that every task is constructed from.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Root is the project directory every relative path is resolved against.
	Root       string              `yaml:"-" mapstructure:"-"`
	BuildRoot  string              `yaml:"build_root" mapstructure:"build_root"`
	OutputRoot string              `yaml:"output_root" mapstructure:"output_root"`
	Paths      map[string]PathSpec `yaml:"paths" mapstructure:"paths"`
	Server     ServerConfig        `yaml:"server" mapstructure:"server"`
	Reload     ReloadConfig        `yaml:"reload" mapstructure:"reload"`
	Styles     StylesConfig        `yaml:"styles" mapstructure:"styles"`
	Scripts    ScriptsConfig       `yaml:"scripts" mapstructure:"scripts"`
	Views      ViewsConfig         `yaml:"views" mapstructure:"views"`
	Images     ImagesConfig        `yaml:"images" mapstructure:"images"`
	Build      BuildConfig         `yaml:"build" mapstructure:"build"`
	Cleanup    CleanupConfig       `yaml:"cleanup" mapstructure:"cleanup"`
	Logging    LoggingConfig       `yaml:"logging" mapstructure:"logging"`

	table PathTable
}

type ServerConfig struct {
	Engine    string `yaml:"engine" mapstructure:"engine"`
	Host      string `yaml:"host" mapstructure:"host"`
	Port      int    `yaml:"port" mapstructure:"port"`
	PHPBinary string `yaml:"php_binary" mapstructure:"php_binary"`
}

type ReloadConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Host    string `yaml:"host" mapstructure:"host"`
	// Port 0 picks the first free port after the page server port.
	Port int `yaml:"port" mapstructure:"port"`
}

type StylesConfig struct {
	Browsers     []string `yaml:"browsers" mapstructure:"browsers"`
	// Cascade is accepted for compatibility with autoprefixer options and
	// ignored: prefixed declarations are never visually aligned.
	Cascade      bool     `yaml:"cascade" mapstructure:"cascade"`
	Grid         bool     `yaml:"grid" mapstructure:"grid"`
	IncludePaths []string `yaml:"include_paths" mapstructure:"include_paths"`
}

type ScriptsConfig struct {
	Target string `yaml:"target" mapstructure:"target"`
	Minify bool   `yaml:"minify" mapstructure:"minify"`
}

type ViewsConfig struct {
	Pretty    bool           `yaml:"pretty" mapstructure:"pretty"`
	Extension string         `yaml:"extension" mapstructure:"extension"`
	Data      map[string]any `yaml:"data" mapstructure:"data"`
}

type ImagesConfig struct {
	Interlaced bool `yaml:"interlaced" mapstructure:"interlaced"`
	// CacheBytes bounds the in-memory layer of the optimization cache.
	CacheBytes int64 `yaml:"cache_bytes" mapstructure:"cache_bytes"`
}

type BuildConfig struct {
	CacheDir   string        `yaml:"cache_dir" mapstructure:"cache_dir"`
	WatchDelay time.Duration `yaml:"watch_delay" mapstructure:"watch_delay"`
}

type CleanupConfig struct {
	Placeholders []string `yaml:"placeholders" mapstructure:"placeholders"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultPlaceholders lists the marker files shipped with the template
// project, plus the template's own repository metadata.
var DefaultPlaceholders = []string{
	"build/fonts/empty.txt",
	"build/images/empty.png",
	"build/sounds/empty.txt",
	"build/videos/empty.txt",
	"build/views/blocks/empty.pug",
	"build/views/layout/empty.pug",
	"build/styles/themes/empty.txt",
	"build/styles/vendors/empty.txt",
	"build/styles/pages/empty.txt",
	"LICENSE",
	"README.md",
	".git",
}

// Default returns the configuration of the stock template project.
func Default() *Config {
	cfg := &Config{
		Root:       ".",
		BuildRoot:  "build",
		OutputRoot: "public",
		Paths:      DefaultPathTable().raw(),
		Server: ServerConfig{
			Engine:    EnginePHP,
			Host:      "localhost",
			Port:      3000,
			PHPBinary: "php",
		},
		Reload: ReloadConfig{Enabled: true, Host: "localhost"},
		Styles: StylesConfig{
			Browsers: []string{"last 2 versions"},
			Cascade:  false,
			Grid:     true,
		},
		Scripts: ScriptsConfig{Target: "es2015", Minify: true},
		Views:   ViewsConfig{Pretty: true, Extension: ".php"},
		Images:  ImagesConfig{Interlaced: true, CacheBytes: 64 << 20},
		Build: BuildConfig{
			CacheDir:   ".siteforge/cache",
			WatchDelay: 200 * time.Millisecond,
		},
		Cleanup: CleanupConfig{Placeholders: append([]string(nil), DefaultPlaceholders...)},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
	cfg.table = NewPathTable(parseRaw(cfg.Paths))
	return cfg
}

const (
	EnginePHP    = "php"
	EngineStatic = "static"
)

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom builds a validated Config from v, filling every unset value with
// the template project defaults.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	def := Default()

	cfg.Root = v.GetString("root")
	if cfg.Root == "" {
		cfg.Root = def.Root
	}
	if cfg.BuildRoot == "" {
		cfg.BuildRoot = def.BuildRoot
	}
	if cfg.OutputRoot == "" {
		cfg.OutputRoot = def.OutputRoot
	}

	// Merge path table entries one category at a time so a config file can
	// override a single destination without restating the whole table.
	paths := def.Paths
	for name, spec := range cfg.Paths {
		base := paths[name]
		if len(spec.Sources) > 0 {
			base.Sources = spec.Sources
			if len(spec.Watch) == 0 {
				base.Watch = nil
			}
		}
		if spec.Dest != "" {
			base.Dest = spec.Dest
		}
		if len(spec.Watch) > 0 {
			base.Watch = spec.Watch
		}
		paths[name] = base
	}
	cfg.Paths = paths

	if cfg.Server.Engine == "" {
		cfg.Server.Engine = def.Server.Engine
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = def.Server.Host
	}
	if !v.IsSet("server.port") {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Server.PHPBinary == "" {
		cfg.Server.PHPBinary = def.Server.PHPBinary
	}

	if !v.IsSet("reload.enabled") {
		cfg.Reload.Enabled = def.Reload.Enabled
	}
	if cfg.Reload.Host == "" {
		cfg.Reload.Host = def.Reload.Host
	}

	if len(cfg.Styles.Browsers) == 0 {
		cfg.Styles.Browsers = def.Styles.Browsers
	}
	if !v.IsSet("styles.grid") {
		cfg.Styles.Grid = def.Styles.Grid
	}

	if cfg.Scripts.Target == "" {
		cfg.Scripts.Target = def.Scripts.Target
	}
	if !v.IsSet("scripts.minify") {
		cfg.Scripts.Minify = def.Scripts.Minify
	}

	if !v.IsSet("views.pretty") {
		cfg.Views.Pretty = def.Views.Pretty
	}
	if cfg.Views.Extension == "" {
		cfg.Views.Extension = def.Views.Extension
	}
	if !strings.HasPrefix(cfg.Views.Extension, ".") {
		cfg.Views.Extension = "." + cfg.Views.Extension
	}

	if !v.IsSet("images.interlaced") {
		cfg.Images.Interlaced = def.Images.Interlaced
	}
	if cfg.Images.CacheBytes <= 0 {
		cfg.Images.CacheBytes = def.Images.CacheBytes
	}

	if cfg.Build.CacheDir == "" {
		cfg.Build.CacheDir = def.Build.CacheDir
	}
	if cfg.Build.WatchDelay <= 0 {
		cfg.Build.WatchDelay = def.Build.WatchDelay
	}

	if !v.IsSet("cleanup.placeholders") {
		cfg.Cleanup.Placeholders = def.Cleanup.Placeholders
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = v.GetString("log-level")
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = v.GetString("log-format")
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}

	cfg.table = NewPathTable(parseRaw(cfg.Paths))

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// PathTable returns the immutable category table.
func (c *Config) PathTable() PathTable {
	return c.table
}

// Abs resolves a project-relative path against Root.
func (c *Config) Abs(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(c.Root, rel)
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validatePath(config.BuildRoot); err != nil {
		return fmt.Errorf("build_root: %w", err)
	}
	if err := validatePath(config.OutputRoot); err != nil {
		return fmt.Errorf("output_root: %w", err)
	}
	if filepath.Clean(config.OutputRoot) == "." {
		return fmt.Errorf("output_root must not be the project root")
	}
	if within(config.BuildRoot, config.OutputRoot) {
		return fmt.Errorf("output_root %q must not contain build_root %q", config.OutputRoot, config.BuildRoot)
	}

	if err := config.table.Validate(config.OutputRoot); err != nil {
		return fmt.Errorf("paths: %w", err)
	}

	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if config.Reload.Port < 0 || config.Reload.Port > 65535 {
		return fmt.Errorf("reload port %d is not in valid range 0-65535", config.Reload.Port)
	}

	if err := validatePath(config.Build.CacheDir); err != nil {
		return fmt.Errorf("build.cache_dir: %w", err)
	}

	for _, p := range config.Cleanup.Placeholders {
		if err := validatePath(p); err != nil {
			return fmt.Errorf("cleanup placeholder %q: %w", p, err)
		}
	}

	switch config.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unsupported log format %q (supported: console, json)", config.Logging.Format)
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	switch config.Engine {
	case EnginePHP, EngineStatic:
	default:
		return fmt.Errorf("unknown engine %q (supported: %s, %s)", config.Engine, EnginePHP, EngineStatic)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(config.Host, char) {
			return fmt.Errorf("host contains dangerous character: %s", char)
		}
		if strings.Contains(config.PHPBinary, char) {
			return fmt.Errorf("php_binary contains dangerous character: %s", char)
		}
	}

	return nil
}

// validatePath validates a project-relative file path
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	if filepath.IsAbs(path) {
		return fmt.Errorf("path must be relative: %s", path)
	}

	cleanPath := filepath.ToSlash(filepath.Clean(path))
	if cleanPath == ".." || strings.HasPrefix(cleanPath, "../") || strings.Contains(cleanPath, "/../") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}

// within reports whether child equals parent or lies beneath it.
func within(child, parent string) bool {
	c := filepath.ToSlash(filepath.Clean(child))
	p := filepath.ToSlash(filepath.Clean(parent))
	return c == p || strings.HasPrefix(c, p+"/")
}
