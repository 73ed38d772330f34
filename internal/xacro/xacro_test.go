// File: internal/xacro/xacro_test.go
package xacro

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/robolaunch/internal/config"
)

// -- Test Helper Functions --

type mapFinder map[string]string

func (m mapFinder) ShareDirectory(pkg string) (string, error) {
	if dir, ok := m[pkg]; ok {
		return dir, nil
	}
	return "", fmt.Errorf("package not found: %s", pkg)
}

type prefixFinder struct {
	mapFinder
	prefixes []string
}

func (p prefixFinder) Prefixes() []string { return p.prefixes }

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func parse(t *testing.T, out string) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(out))
	require.NotNil(t, doc.Root())
	return doc.Root()
}

const robotTemplate = `<?xml version="1.0"?>
<robot xmlns:xacro="http://www.ros.org/wiki/xacro" name="${robot_name}">
  <xacro:arg name="prefix" default="inmoov"/>
  <xacro:property name="robot_name" value="$(arg prefix)_bot"/>
  <xacro:property name="radius" value="0.5"/>
  <xacro:include filename="parts/link.xacro"/>
  <xacro:link_with_origin name="head" scale="2">
    <origin xyz="0 0 ${radius}"/>
  </xacro:link_with_origin>
  <xacro:if value="${radius > 1}">
    <link name="big"/>
  </xacro:if>
  <xacro:unless value="${radius > 1}">
    <link name="small"/>
  </xacro:unless>
  <mesh filename="$(find inmoov_description)/meshes/head.stl"/>
  <comment>$${not_expanded}</comment>
</robot>
`

const linkMacro = `<robot xmlns:xacro="http://www.ros.org/wiki/xacro">
  <xacro:macro name="link_with_origin" params="name scale *origin size:=1">
    <link name="${name}_link">
      <visual>
        <xacro:insert_block name="origin"/>
        <geometry><sphere radius="${radius * scale * size}"/></geometry>
      </visual>
    </link>
  </xacro:macro>
</robot>
`

// -- Test Cases --

func TestExpandFile(t *testing.T) {
	dir := t.TempDir()
	main := writeFile(t, dir, "robots/robot.urdf.xacro", robotTemplate)
	writeFile(t, dir, "robots/parts/link.xacro", linkMacro)

	engine := NewEngine(mapFinder{"inmoov_description": "/pkgs/inmoov_description"}, zap.NewNop())

	t.Run("expands the full feature set", func(t *testing.T) {
		out, err := engine.ExpandFile(context.Background(), main, nil)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, `<?xml version="1.0"?>`))
		assert.NotContains(t, out, "xacro")

		root := parse(t, out)
		assert.Equal(t, "inmoov_bot", root.SelectAttrValue("name", ""))
		assert.Nil(t, root.SelectAttr("xmlns:xacro"))

		link := root.FindElement("./link[@name='head_link']")
		require.NotNil(t, link, out)
		origin := link.FindElement("./visual/origin")
		require.NotNil(t, origin)
		assert.Equal(t, "0 0 0.5", origin.SelectAttrValue("xyz", ""))
		sphere := link.FindElement("./visual/geometry/sphere")
		require.NotNil(t, sphere)
		assert.Equal(t, "1.0", sphere.SelectAttrValue("radius", ""))

		assert.NotNil(t, root.FindElement("./link[@name='small']"))
		assert.Nil(t, root.FindElement("./link[@name='big']"))
		assert.Equal(t, "/pkgs/inmoov_description/meshes/head.stl",
			root.FindElement("./mesh").SelectAttrValue("filename", ""))
		assert.Equal(t, "${not_expanded}", root.FindElement("./comment").Text())
	})

	t.Run("caller args override defaults", func(t *testing.T) {
		out, err := engine.ExpandFile(context.Background(), main, map[string]string{"prefix": "test"})
		require.NoError(t, err)
		assert.Equal(t, "test_bot", parse(t, out).SelectAttrValue("name", ""))
	})

	t.Run("expansion is deterministic", func(t *testing.T) {
		a, err := engine.ExpandFile(context.Background(), main, nil)
		require.NoError(t, err)
		b, err := engine.ExpandFile(context.Background(), main, nil)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}

func TestExpandProperties(t *testing.T) {
	dir := t.TempDir()
	engine := NewEngine(nil, zap.NewNop())

	t.Run("lazy evaluation sees later definitions", func(t *testing.T) {
		path := writeFile(t, dir, "lazy.xacro", `<robot xmlns:xacro="http://www.ros.org/wiki/xacro">
  <xacro:property name="a" value="${b * 2}"/>
  <xacro:property name="b" value="3"/>
  <joint name="j${a}"/>
</robot>`)
		out, err := engine.ExpandFile(context.Background(), path, nil)
		require.NoError(t, err)
		assert.NotNil(t, parse(t, out).FindElement("./joint[@name='j6']"))
	})

	t.Run("parent scope escapes the macro", func(t *testing.T) {
		path := writeFile(t, dir, "scope.xacro", `<robot xmlns:xacro="http://www.ros.org/wiki/xacro">
  <xacro:macro name="set" params="v">
    <xacro:property name="result" value="${v}" scope="parent"/>
  </xacro:macro>
  <xacro:set v="eyes"/>
  <link name="${result}"/>
</robot>`)
		out, err := engine.ExpandFile(context.Background(), path, nil)
		require.NoError(t, err)
		assert.NotNil(t, parse(t, out).FindElement("./link[@name='eyes']"))
	})

	t.Run("self reference fails", func(t *testing.T) {
		path := writeFile(t, dir, "self.xacro", `<robot xmlns:xacro="http://www.ros.org/wiki/xacro">
  <xacro:property name="a" value="${a + 1}"/>
  <link name="${a}"/>
</robot>`)
		_, err := engine.ExpandFile(context.Background(), path, nil)
		assert.ErrorIs(t, err, ErrExpression)
	})

	t.Run("xacro:call dispatches by name", func(t *testing.T) {
		path := writeFile(t, dir, "call.xacro", `<robot xmlns:xacro="http://www.ros.org/wiki/xacro">
  <xacro:property name="which" value="jaw"/>
  <xacro:macro name="jaw"><link name="jaw_link"/></xacro:macro>
  <xacro:call macro="${which}"/>
</robot>`)
		out, err := engine.ExpandFile(context.Background(), path, nil)
		require.NoError(t, err)
		assert.NotNil(t, parse(t, out).FindElement("./link[@name='jaw_link']"))
	})

	t.Run("optenv falls back to its default", func(t *testing.T) {
		t.Setenv("ROBOLAUNCH_TEST_SET", "from_env")
		path := writeFile(t, dir, "env.xacro", `<robot name="$(env ROBOLAUNCH_TEST_SET)">
  <link name="$(optenv ROBOLAUNCH_TEST_UNSET fallback)"/>
</robot>`)
		out, err := engine.ExpandFile(context.Background(), path, nil)
		require.NoError(t, err)
		root := parse(t, out)
		assert.Equal(t, "from_env", root.SelectAttrValue("name", ""))
		assert.NotNil(t, root.FindElement("./link[@name='fallback']"))
	})
}

func TestExpandErrors(t *testing.T) {
	dir := t.TempDir()
	engine := NewEngine(nil, zap.NewNop())
	ctx := context.Background()

	t.Run("missing file", func(t *testing.T) {
		_, err := engine.ExpandFile(ctx, filepath.Join(dir, "absent.xacro"), nil)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("malformed xml", func(t *testing.T) {
		path := writeFile(t, dir, "broken.xacro", "<robot><link></robot>")
		_, err := engine.ExpandFile(ctx, path, nil)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("undefined property", func(t *testing.T) {
		path := writeFile(t, dir, "undef.xacro", `<robot name="${nope}"/>`)
		_, err := engine.ExpandFile(ctx, path, nil)
		assert.ErrorIs(t, err, ErrUndefinedProperty)
	})

	t.Run("undefined macro", func(t *testing.T) {
		path := writeFile(t, dir, "nomacro.xacro", `<robot xmlns:xacro="http://www.ros.org/wiki/xacro"><xacro:ghost/></robot>`)
		_, err := engine.ExpandFile(ctx, path, nil)
		assert.ErrorIs(t, err, ErrUndefinedMacro)
	})

	t.Run("missing macro parameter", func(t *testing.T) {
		path := writeFile(t, dir, "noparam.xacro", `<robot xmlns:xacro="http://www.ros.org/wiki/xacro">
  <xacro:macro name="m" params="a"><link name="${a}"/></xacro:macro>
  <xacro:m/>
</robot>`)
		_, err := engine.ExpandFile(ctx, path, nil)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("include cycle", func(t *testing.T) {
		a := writeFile(t, dir, "cycle/a.xacro", `<robot xmlns:xacro="http://www.ros.org/wiki/xacro"><xacro:include filename="b.xacro"/></robot>`)
		writeFile(t, dir, "cycle/b.xacro", `<robot xmlns:xacro="http://www.ros.org/wiki/xacro"><xacro:include filename="a.xacro"/></robot>`)
		_, err := engine.ExpandFile(ctx, a, nil)
		assert.ErrorIs(t, err, ErrIncludeCycle)
	})

	t.Run("find without index", func(t *testing.T) {
		path := writeFile(t, dir, "find.xacro", `<robot name="$(find pkg)"/>`)
		_, err := engine.ExpandFile(ctx, path, nil)
		assert.ErrorIs(t, err, ErrUndefinedArg)
	})

	t.Run("cancelled context", func(t *testing.T) {
		path := writeFile(t, dir, "ok.xacro", `<robot><link/></robot>`)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := engine.ExpandFile(cctx, path, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCommandEngine(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts required")
	}
	dir := t.TempDir()
	echo := writeFile(t, dir, "fake-xacro", "#!/bin/sh\necho \"<robot args=\\\"$*\\\"/>\"\n")
	require.NoError(t, os.Chmod(echo, 0o755))
	fail := writeFile(t, dir, "failing-xacro", "#!/bin/sh\necho boom >&2\nexit 3\n")
	require.NoError(t, os.Chmod(fail, 0o755))

	t.Run("passes path and sorted args", func(t *testing.T) {
		cmd := NewCommand(config.XacroConfig{
			Command: echo,
			Args:    map[string]string{"b": "2"},
			Timeout: 5 * time.Second,
		}, zap.NewNop())
		out, err := cmd.ExpandFile(context.Background(), "robot.xacro", map[string]string{"a": "1"})
		require.NoError(t, err)
		assert.Contains(t, out, `args="robot.xacro b:=2 a:=1"`)
	})

	env := writeFile(t, dir, "env-xacro", "#!/bin/sh\necho \"<robot path=\\\"$AMENT_PREFIX_PATH\\\"/>\"\n")
	require.NoError(t, os.Chmod(env, 0o755))

	t.Run("index prefixes are exported to the child", func(t *testing.T) {
		t.Setenv("AMENT_PREFIX_PATH", "/inherited")
		finder := prefixFinder{prefixes: []string{"/opt/ws/install", "/opt/ros/humble"}}
		e, err := New(config.XacroConfig{
			Engine:  config.XacroEngineCommand,
			Command: env,
			Timeout: 5 * time.Second,
		}, finder, zap.NewNop())
		require.NoError(t, err)
		out, err := e.ExpandFile(context.Background(), "robot.xacro", nil)
		require.NoError(t, err)
		assert.Contains(t, out, `path="/opt/ws/install:/opt/ros/humble"`)
		assert.NotContains(t, out, "/inherited")
	})

	t.Run("without prefixes the environment is inherited", func(t *testing.T) {
		t.Setenv("AMENT_PREFIX_PATH", "/inherited")
		cmd := NewCommand(config.XacroConfig{Command: env, Timeout: 5 * time.Second}, zap.NewNop())
		out, err := cmd.ExpandFile(context.Background(), "robot.xacro", nil)
		require.NoError(t, err)
		assert.Contains(t, out, `path="/inherited"`)
	})

	t.Run("stderr is reported", func(t *testing.T) {
		cmd := NewCommand(config.XacroConfig{Command: fail, Timeout: 5 * time.Second}, zap.NewNop())
		_, err := cmd.ExpandFile(context.Background(), "robot.xacro", nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCommandFailed)
		assert.Contains(t, err.Error(), "boom")
	})
}

func TestNew(t *testing.T) {
	e, err := New(config.XacroConfig{Engine: config.XacroEngineNative}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &Engine{}, e)

	e, err = New(config.XacroConfig{Engine: config.XacroEngineNative, Args: map[string]string{"x": "1"}}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, withArgs{}, e)

	e, err = New(config.XacroConfig{Engine: config.XacroEngineCommand, Command: "xacro"}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &Command{}, e)

	_, err = New(config.XacroConfig{Engine: config.XacroEngineCommand}, nil, zap.NewNop())
	assert.Error(t, err)
	_, err = New(config.XacroConfig{Engine: "jinja"}, nil, zap.NewNop())
	assert.Error(t, err)
}
