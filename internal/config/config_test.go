package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(v *viper.Viper)
		expectError bool
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name:  "defaults",
			setup: func(v *viper.Viper) {},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "public", cfg.OutputRoot)
				assert.Equal(t, 3000, cfg.Server.Port)
				assert.Equal(t, EnginePHP, cfg.Server.Engine)
				assert.True(t, cfg.Reload.Enabled)
				assert.True(t, cfg.Styles.Grid)
				assert.False(t, cfg.Styles.Cascade)
				assert.Equal(t, []string{"last 2 versions"}, cfg.Styles.Browsers)
				assert.Equal(t, ".php", cfg.Views.Extension)
				assert.Equal(t, 200*time.Millisecond, cfg.Build.WatchDelay)
				assert.Equal(t, 8, cfg.PathTable().Len())
			},
		},
		{
			name: "cascade is accepted",
			setup: func(v *viper.Viper) {
				v.Set("styles.cascade", true)
			},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Styles.Cascade)
				assert.True(t, cfg.Styles.Grid)
			},
		},
		{
			name: "single destination override keeps other sources",
			setup: func(v *viper.Viper) {
				v.Set("paths.styles.dest", "public/css")
			},
			check: func(t *testing.T, cfg *Config) {
				spec, ok := cfg.PathTable().Lookup(Styles)
				require.True(t, ok)
				assert.Equal(t, "public/css", spec.Dest)
				assert.Equal(t, []string{"build/styles/**/*.scss"}, spec.Sources)
			},
		},
		{
			name: "explicit false booleans survive defaults",
			setup: func(v *viper.Viper) {
				v.Set("styles.grid", false)
				v.Set("reload.enabled", false)
				v.Set("server.engine", EngineStatic)
			},
			check: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Styles.Grid)
				assert.False(t, cfg.Reload.Enabled)
				assert.Equal(t, EngineStatic, cfg.Server.Engine)
			},
		},
		{
			name: "extension without dot",
			setup: func(v *viper.Viper) {
				v.Set("views.extension", "html")
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, ".html", cfg.Views.Extension)
			},
		},
		{
			name: "destination outside output root",
			setup: func(v *viper.Viper) {
				v.Set("paths.fonts.dest", "assets/fonts")
			},
			expectError: true,
		},
		{
			name: "output root is project root",
			setup: func(v *viper.Viper) {
				v.Set("output_root", ".")
			},
			expectError: true,
		},
		{
			name: "traversal in source",
			setup: func(v *viper.Viper) {
				v.Set("paths.videos.src", []string{"../secret/*"})
			},
			expectError: true,
		},
		{
			name: "unknown engine",
			setup: func(v *viper.Viper) {
				v.Set("server.engine", "nginx")
			},
			expectError: true,
		},
		{
			name: "invalid port type",
			setup: func(v *viper.Viper) {
				v.Set("server.port", "invalid_port")
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			tt.setup(v)

			cfg, err := LoadFrom(v)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, cfg)
			tt.check(t, cfg)
		})
	}
}

func TestLoadUsesGlobalViper(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	viper.Set("server.port", 8080)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestPathTableLookupReturnsCopy(t *testing.T) {
	table := DefaultPathTable()

	spec, ok := table.Lookup(Views)
	require.True(t, ok)
	spec.Sources[0] = "mutated"
	spec.Dest = "elsewhere"

	again, _ := table.Lookup(Views)
	assert.Equal(t, "build/views/*.pug", again.Sources[0])
	assert.Equal(t, "public", again.Dest)
}

func TestPathSpecWatchPatterns(t *testing.T) {
	table := DefaultPathTable()

	views, _ := table.Lookup(Views)
	assert.Equal(t, []string{"build/views/**/*.pug"}, views.WatchPatterns())

	styles, _ := table.Lookup(Styles)
	assert.Equal(t, styles.Sources, styles.WatchPatterns())
}

func TestPathTableValidate(t *testing.T) {
	tests := []struct {
		name    string
		specs   map[Category]PathSpec
		wantErr string
	}{
		{
			name:  "default layout",
			specs: DefaultPathTable().specsForTest(),
		},
		{
			name:    "no sources",
			specs:   map[Category]PathSpec{Fonts: {Dest: "public/fonts"}},
			wantErr: "no source patterns",
		},
		{
			name:    "only exclusions",
			specs:   map[Category]PathSpec{Fonts: {Sources: []string{"!build/fonts/*"}, Dest: "public/fonts"}},
			wantErr: "only exclusion patterns",
		},
		{
			name:    "sibling of output root",
			specs:   map[Category]PathSpec{Fonts: {Sources: []string{"build/fonts/*"}, Dest: "publicity"}},
			wantErr: "outside output root",
		},
		{
			name:    "absolute dest",
			specs:   map[Category]PathSpec{Fonts: {Sources: []string{"build/fonts/*"}, Dest: "/tmp/fonts"}},
			wantErr: "must be relative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewPathTable(tt.specs).Validate("public")
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"build/styles", false},
		{"build/images/*.{png,jpg}", false},
		{"", true},
		{"../outside", true},
		{"build/../../outside", true},
		{"/etc/passwd", true},
		{"build;rm -rf", true},
		{"build/$HOME", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := validatePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func (t PathTable) specsForTest() map[Category]PathSpec {
	return t.specs
}
