// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/robolaunch/internal/config"
	"github.com/xkilldash9x/robolaunch/internal/observability"
)

type contextKey string

// configKey stores the loaded config.Interface in the command context.
const configKey contextKey = "config"

// viperKeyAnnotation marks a flag that overrides a config key.
const viperKeyAnnotation = "robolaunch_viper_key"

// NewRootCommand builds the full command tree. Each call returns a fresh tree
// so tests never share flag state.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "robolaunch",
		Short: "Launches the InMoov humanoid with fake joint drivers and a visualizer.",

		// Version is set at build time. See cmd/version.go.
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				// Fall back to a basic logger so the failure is still reported.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "robolaunch"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting robolaunch", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, config.Interface(cfg)))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./robolaunch.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	bindFlag(rootCmd.PersistentFlags(), "log-level", "logger.level")
	rootCmd.PersistentFlags().StringSlice("prefix-path", nil, "install prefixes to search for packages (default is $AMENT_PREFIX_PATH)")
	bindFlag(rootCmd.PersistentFlags(), "prefix-path", "packages.prefix_path")
	rootCmd.PersistentFlags().String("xacro-engine", "", "xacro engine: native or command")
	bindFlag(rootCmd.PersistentFlags(), "xacro-engine", "xacro.engine")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newLaunchCmd(),
		newDescribeCmd(),
		newExpandCmd(),
		newLogsCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the root command with ctx. Errors are logged here; the caller
// only decides the exit code.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
	}
	observability.Sync()
	return err
}

// bindFlag records that flag name overrides the config key.
func bindFlag(flags *pflag.FlagSet, name, key string) {
	if err := flags.SetAnnotation(name, viperKeyAnnotation, []string{key}); err != nil {
		panic(fmt.Sprintf("bind flag %q: %v", name, err))
	}
}

// initializeConfig reads the config file and ROBOLAUNCH_* environment
// variables into v and binds every annotated flag of cmd.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("robolaunch")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("ROBOLAUNCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment apply.
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys, ok := f.Annotations[viperKeyAnnotation]
		if !ok || bindErr != nil {
			return
		}
		for _, key := range keys {
			if err := v.BindPFlag(key, f); err != nil {
				bindErr = fmt.Errorf("bind flag %q to %q: %w", f.Name, key, err)
				return
			}
		}
	})
	return bindErr
}

// getConfigFromContext returns the config stored by PersistentPreRunE.
func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	if ctx == nil {
		return nil, errors.New("no context")
	}
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
