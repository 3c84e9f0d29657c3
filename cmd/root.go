package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/siteforge/internal/config"
	"github.com/conneroisu/siteforge/internal/logging"
)

var (
	cfgFile string
	// configErr holds a configuration file that exists but cannot be read.
	configErr error
)

var rootCmd = &cobra.Command{
	Use:   "siteforge",
	Short: "Build and live-reload a Pug, SCSS and PHP template site",
	Long: `siteforge compiles the build/ tree of a template project into public/:
Pug views to PHP pages, SCSS to prefixed CSS, modern JavaScript to ES2015,
optimized images and copied fonts, sounds and videos. While developing it
serves public/ through PHP's built-in server and reloads the browser when
sources change.

Quick Start:
  siteforge init          Scaffold the template project
  siteforge               Clean, build everything and serve
  siteforge watch         Serve and rebuild on change
  siteforge styles        Run a single task`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command line. Errors are printed to stderr.
func Execute() error {
	gin.SetMode(gin.ReleaseMode)
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	// Assigned here: runBuild reaches rootCmd through loadConfig.
	rootCmd.RunE = runBuild
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is .siteforge.yml in the project root, can also use SITEFORGE_CONFIG_FILE)")
	pf.String("root", ".", "project directory")
	pf.StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "console", "log format (console, json)")
	_ = viper.BindPFlag("root", pf.Lookup("root"))
	_ = viper.BindPFlag("log-level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("log-format", pf.Lookup("log-format"))

	addBuildFlags(rootCmd.Flags())
	rootCmd.SetGlobalNormalizationFunc(wordSepNormalizeFunc)
}

// wordSepNormalizeFunc accepts --log_level and --no_serve as spellings of
// --log-level and --no-serve.
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// initConfig points viper at the configuration file and the environment.
func initConfig() {
	configErr = nil
	switch {
	case cfgFile != "":
		viper.SetConfigFile(cfgFile)
	case os.Getenv("SITEFORGE_CONFIG_FILE") != "":
		viper.SetConfigFile(os.Getenv("SITEFORGE_CONFIG_FILE"))
	default:
		viper.AddConfigPath(viper.GetString("root"))
		viper.SetConfigType("yaml")
		viper.SetConfigName(".siteforge")
	}

	viper.SetEnvPrefix("SITEFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			configErr = err
		}
	}
}

// loadConfig returns the validated project configuration with an absolute
// root.
func loadConfig() (*config.Config, error) {
	if configErr != nil {
		return nil, fmt.Errorf("reading config file: %w", configErr)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	cfg.Root = root

	// Explicit flags beat the config file.
	pf := rootCmd.PersistentFlags()
	if pf.Changed("log-level") {
		cfg.Logging.Level = viper.GetString("log-level")
	}
	if pf.Changed("log-format") {
		cfg.Logging.Format = viper.GetString("log-format")
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	}), nil
}

// setup loads the configuration and builds the pipeline of the project.
func setup(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	if used := viper.ConfigFileUsed(); used != "" && configFileExists(used) {
		logger.Debug(ctx, "Using config file", "path", used)
	}
	return newApp(cfg, logger, opts)
}

func configFileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
