// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// Components depend on this rather than the concrete struct so tests can hand
// them a trimmed-down config.
type Interface interface {
	Logger() LoggerConfig
	Packages() PackagesConfig
	Launch() LaunchConfig
	Xacro() XacroConfig

	// Launch Setters
	SetLaunchDryRun(b bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	PackagesCfg PackagesConfig `mapstructure:"packages" yaml:"packages"`
	LaunchCfg   LaunchConfig   `mapstructure:"launch" yaml:"launch"`
	XacroCfg    XacroConfig    `mapstructure:"xacro" yaml:"xacro"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Packages() PackagesConfig { return c.PackagesCfg }
func (c *Config) Launch() LaunchConfig     { return c.LaunchCfg }
func (c *Config) Xacro() XacroConfig       { return c.XacroCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetLaunchDryRun(b bool) { c.LaunchCfg.DryRun = b }

type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// PackagesConfig controls how package names are resolved to install
// directories. An empty PrefixPath falls back to AMENT_PREFIX_PATH.
type PackagesConfig struct {
	PrefixPath []string          `mapstructure:"prefix_path" yaml:"prefix_path"`
	Overrides  map[string]string `mapstructure:"overrides" yaml:"overrides"`
}

// LaunchConfig holds the process supervisor settings.
type LaunchConfig struct {
	LogDir         string        `mapstructure:"log_dir" yaml:"log_dir"`
	ParamsDir      string        `mapstructure:"params_dir" yaml:"params_dir"`
	SigintTimeout  time.Duration `mapstructure:"sigint_timeout" yaml:"sigint_timeout"`
	SigtermTimeout time.Duration `mapstructure:"sigterm_timeout" yaml:"sigterm_timeout"`
	ShutdownOnExit bool          `mapstructure:"shutdown_on_exit" yaml:"shutdown_on_exit"`
	LogMaxSize     int           `mapstructure:"log_max_size" yaml:"log_max_size"`
	LogMaxBackups  int           `mapstructure:"log_max_backups" yaml:"log_max_backups"`
	// DryRun comes from the CLI, never from the config file.
	DryRun bool `mapstructure:"-" yaml:"-"`
}

// XacroConfig selects the template engine used to expand robot descriptions.
type XacroConfig struct {
	Engine  string            `mapstructure:"engine" yaml:"engine"`
	Command string            `mapstructure:"command" yaml:"command"`
	Args    map[string]string `mapstructure:"args" yaml:"args"`
	Timeout time.Duration     `mapstructure:"timeout" yaml:"timeout"`
}

const (
	XacroEngineNative  = "native"
	XacroEngineCommand = "command"
)

func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "robolaunch")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Packages --
	v.SetDefault("packages.prefix_path", []string{})

	// -- Launch --
	v.SetDefault("launch.log_dir", "~/.ros/log")
	v.SetDefault("launch.params_dir", "")
	v.SetDefault("launch.sigint_timeout", "5s")
	v.SetDefault("launch.sigterm_timeout", "5s")
	v.SetDefault("launch.shutdown_on_exit", false)
	v.SetDefault("launch.log_max_size", 50)
	v.SetDefault("launch.log_max_backups", 3)

	// -- Xacro --
	v.SetDefault("xacro.engine", XacroEngineNative)
	v.SetDefault("xacro.command", "xacro")
	v.SetDefault("xacro.timeout", "30s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.LaunchCfg.Validate(); err != nil {
		return fmt.Errorf("launch configuration invalid: %w", err)
	}
	if err := c.XacroCfg.Validate(); err != nil {
		return fmt.Errorf("xacro configuration invalid: %w", err)
	}
	for name, dir := range c.PackagesCfg.Overrides {
		if strings.TrimSpace(name) == "" || strings.TrimSpace(dir) == "" {
			return fmt.Errorf("packages.overrides entries need both a name and a directory")
		}
	}
	return nil
}

// Validate checks the LaunchConfig settings.
func (l *LaunchConfig) Validate() error {
	if strings.TrimSpace(l.LogDir) == "" {
		return fmt.Errorf("log_dir is required")
	}
	if l.SigintTimeout <= 0 {
		return fmt.Errorf("sigint_timeout must be a positive duration")
	}
	if l.SigtermTimeout <= 0 {
		return fmt.Errorf("sigterm_timeout must be a positive duration")
	}
	if l.LogMaxSize <= 0 {
		return fmt.Errorf("log_max_size must be a positive integer")
	}
	return nil
}

// Validate checks the XacroConfig settings.
func (x *XacroConfig) Validate() error {
	switch x.Engine {
	case XacroEngineNative:
	case XacroEngineCommand:
		if strings.TrimSpace(x.Command) == "" {
			return fmt.Errorf("command is required when engine is %q", XacroEngineCommand)
		}
	default:
		return fmt.Errorf("unknown engine %q (want %q or %q)", x.Engine, XacroEngineNative, XacroEngineCommand)
	}
	if x.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	return nil
}
