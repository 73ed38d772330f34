// File: cmd/root_test.go
package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xkilldash9x/robolaunch/internal/config"
	"github.com/xkilldash9x/robolaunch/internal/observability"
)

func TestRootCmd_Version(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("flag", func(t *testing.T) {
		out, err := executeCommand(t, "--version")
		require.NoError(t, err)
		assert.Equal(t, Version+"\n", out)
	})

	t.Run("subcommand", func(t *testing.T) {
		out, err := executeCommand(t, "version")
		require.NoError(t, err)
		assert.Equal(t, Version+"\n", out)
	})
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"launch", "describe", "expand", "logs", "version"})
}

func TestRootCmd_ArgumentValidation(t *testing.T) {
	defer goleak.VerifyNone(t)

	_, err := executeCommand(t, "expand")
	assert.Error(t, err, "expand needs a file")

	_, err = executeCommand(t, "logs")
	assert.Error(t, err, "logs needs a process")

	_, err = executeCommand(t, "launch", "extra")
	assert.Error(t, err, "launch takes no arguments")
}

// configCommand runs a probe subcommand with a bound --log-dir and returns
// the config PersistentPreRunE built for it.
func configCommand(t *testing.T, cfgFile string, args ...string) config.Interface {
	t.Helper()
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)
	t.Chdir(t.TempDir())

	var got config.Interface
	root := NewRootCommand()
	probe := &cobra.Command{
		Use: "probe",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			got = cfg
			return err
		},
	}
	probe.Flags().String("log-dir", "", "")
	bindFlag(probe.Flags(), "log-dir", "launch.log_dir")
	root.AddCommand(probe)

	argv := []string{"--log-level", "fatal", "probe"}
	if cfgFile != "" {
		argv = append(argv, "--config", cfgFile)
	}
	root.SetArgs(append(argv, args...))
	require.NoError(t, root.ExecuteContext(context.Background()))
	require.NotNil(t, got)
	return got
}

func TestInitializeConfig(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "robolaunch.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
launch:
  log_dir: /from/file
  sigint_timeout: 2s
xacro:
  engine: command
  command: /usr/bin/xacro
`), 0o644))

	t.Run("defaults", func(t *testing.T) {
		cfg := configCommand(t, "")
		assert.Equal(t, "~/.ros/log", cfg.Launch().LogDir)
		assert.Equal(t, config.XacroEngineNative, cfg.Xacro().Engine)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		cfg := configCommand(t, cfgFile)
		assert.Equal(t, "/from/file", cfg.Launch().LogDir)
		assert.Equal(t, "2s", cfg.Launch().SigintTimeout.String())
		assert.Equal(t, "/usr/bin/xacro", cfg.Xacro().Command)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("ROBOLAUNCH_LAUNCH_LOG_DIR", "/from/env")
		cfg := configCommand(t, cfgFile)
		assert.Equal(t, "/from/env", cfg.Launch().LogDir)
	})

	t.Run("flag overrides environment", func(t *testing.T) {
		t.Setenv("ROBOLAUNCH_LAUNCH_LOG_DIR", "/from/env")
		cfg := configCommand(t, cfgFile, "--log-dir", "/from/flag", "--xacro-engine", "native")
		assert.Equal(t, "/from/flag", cfg.Launch().LogDir)
		assert.Equal(t, config.XacroEngineNative, cfg.Xacro().Engine)
	})

	t.Run("unreadable config file", func(t *testing.T) {
		v := viper.New()
		err := initializeConfig(&cobra.Command{}, v, filepath.Join(dir, "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid configuration", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("xacro:\n  engine: python\n"), 0o644))
		_, err := executeCommand(t, "--config", bad, "describe")
		assert.ErrorContains(t, err, "failed to load or validate config")
	})
}

func TestGetConfigFromContext(t *testing.T) {
	_, err := getConfigFromContext(context.Background())
	assert.Error(t, err)

	cfg := config.NewDefaultConfig()
	got, err := getConfigFromContext(context.WithValue(context.Background(), configKey, config.Interface(cfg)))
	require.NoError(t, err)
	assert.Same(t, cfg, got)
}
