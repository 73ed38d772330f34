// File: cmd/expand_test.go
package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestExpandCmd(t *testing.T) {
	defer goleak.VerifyNone(t)
	file := filepath.Join(t.TempDir(), "arm.urdf.xacro")
	require.NoError(t, os.WriteFile(file, []byte(`<?xml version="1.0"?>
<robot xmlns:xacro="http://www.ros.org/wiki/xacro" name="arm">
  <xacro:arg name="side" default="left"/>
  <xacro:property name="length" value="0.25"/>
  <link name="$(arg side)_arm" length="${length * 2}"/>
</robot>
`), 0o644))

	t.Run("defaults", func(t *testing.T) {
		out, err := executeCommand(t, "expand", file)
		require.NoError(t, err)
		assert.Contains(t, out, `<link name="left_arm" length="0.5"/>`)
		assert.NotContains(t, out, "xmlns:xacro")
	})

	t.Run("mappings", func(t *testing.T) {
		out, err := executeCommand(t, "expand", file, "side:=right")
		require.NoError(t, err)
		assert.Contains(t, out, `<link name="right_arm"`)
	})

	t.Run("invalid mapping", func(t *testing.T) {
		_, err := executeCommand(t, "expand", file, "side=right")
		assert.ErrorContains(t, err, "invalid mapping")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := executeCommand(t, "expand", filepath.Join(t.TempDir(), "none.xacro"))
		assert.Error(t, err)
	})
}

func TestParseMappings(t *testing.T) {
	got, err := parseMappings([]string{"a:=1", "b:=x:=y", "a:=2", "c:="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "2", "b": "x:=y", "c": ""}, got)

	got, err = parseMappings(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseMappings([]string{":=1"})
	assert.Error(t, err)
}
