// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xkilldash9x/robolaunch/internal/config"
	"github.com/xkilldash9x/robolaunch/internal/observability"
	"github.com/xkilldash9x/robolaunch/internal/robot"
)

var leakOpts = []goleak.Option{
	goleak.IgnoreAnyFunction("gopkg.in/natefinch/lumberjack%2ev2.(*Logger).millRun"),
	goleak.IgnoreAnyFunction("gopkg.in/natefinch/lumberjack.v2.(*Logger).millRun"),
}

const testTemplate = `<?xml version="1.0"?>
<robot xmlns:xacro="http://www.ros.org/wiki/xacro" name="inmoov">
  <xacro:arg name="part" default="%s"/>
  <link name="$(arg part)_link"/>
</robot>
`

// executables installed by testWorkspace, keyed by package.
var testExecutables = map[string]string{
	"tf2_ros":               "static_transform_publisher",
	"robot_state_publisher": "robot_state_publisher",
	"fake_joint_driver":     "fake_joint_driver_node",
	"rviz2":                 "rviz2",
}

// testWorkspace installs every package the InMoov launch uses under a temp
// prefix. Each executable is a shell script echoing its arguments.
func testWorkspace(t *testing.T) string {
	t.Helper()
	prefix := t.TempDir()
	marker := filepath.Join(prefix, "share", "ament_index", "resource_index", "packages")
	require.NoError(t, os.MkdirAll(marker, 0o755))

	write := func(path, content string, mode os.FileMode) {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), mode))
	}
	pkgs := []string{robot.DescriptionPackage, robot.RobotPackage}
	for pkg := range testExecutables {
		pkgs = append(pkgs, pkg)
	}
	for _, pkg := range pkgs {
		write(filepath.Join(marker, pkg), "", 0o644)
		require.NoError(t, os.MkdirAll(filepath.Join(prefix, "share", pkg), 0o755))
	}
	for pkg, exe := range testExecutables {
		write(filepath.Join(prefix, "lib", pkg, exe), "#!/bin/sh\necho \"$(basename \"$0\") $*\"\n", 0o755)
	}

	share := filepath.Join(prefix, "share", robot.DescriptionPackage)
	for _, s := range robot.Subsystems {
		write(filepath.Join(share, s.Template), fmt.Sprintf(testTemplate, s.Subsystem), 0o644)
	}
	write(filepath.Join(share, robot.SemanticFile), "<robot name=\"inmoov\"/>\n", 0o644)
	return prefix
}

// testConfig is the default configuration over prefix.
func testConfig(t *testing.T, prefix string) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.PackagesCfg.PrefixPath = []string{prefix}
	cfg.LaunchCfg.LogDir = t.TempDir()
	return cfg
}

// executeCommand runs a fresh command tree with args and returns stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeCommandContext(t, context.Background(), args...)
}

func executeCommandContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)
	// Keep a stray robolaunch.yaml in the working directory out of the tests.
	t.Chdir(t.TempDir())

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--log-level", "fatal"}, args...))
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test executables are shell scripts")
	}
}
