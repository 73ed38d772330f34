// File: internal/launch/launch_test.go
package launch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseOutputMode(t *testing.T) {
	for in, want := range map[string]OutputMode{"": OutputLog, "log": OutputLog, "screen": OutputScreen, "both": OutputBoth} {
		got, err := ParseOutputMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseOutputMode("stdout")
	assert.Error(t, err)

	assert.True(t, OutputBoth.ToLog())
	assert.True(t, OutputBoth.ToScreen())
	assert.False(t, OutputLog.ToScreen())
	assert.False(t, OutputScreen.ToLog())
}

func TestNewProcess(t *testing.T) {
	t.Run("copies its inputs", func(t *testing.T) {
		args := []string{"-d", "a.rviz"}
		values := map[string]Value{"controller_name": Text("head_controller")}
		p, err := NewProcess(ProcessSpec{
			Package:    "rviz2",
			Executable: "rviz2",
			Arguments:  args,
			Parameters: []ParameterSource{InlineParams(values)},
		})
		require.NoError(t, err)

		args[1] = "mutated"
		values["controller_name"] = Text("mutated")
		assert.Equal(t, []string{"-d", "a.rviz"}, p.Arguments())
		got, _ := p.Parameters()[0].Lookup("controller_name")
		text, ok := got.Get()
		assert.True(t, ok)
		assert.Equal(t, "head_controller", text)

		p.Arguments()[0] = "mutated"
		assert.Equal(t, "-d", p.Arguments()[0])
		assert.Equal(t, OutputLog, p.Output(), "empty output defaults to log")
		assert.Equal(t, "rviz2", p.Label())
	})

	t.Run("validation", func(t *testing.T) {
		_, err := NewProcess(ProcessSpec{Executable: "x"})
		assert.Error(t, err)
		_, err = NewProcess(ProcessSpec{Package: "x"})
		assert.Error(t, err)
		_, err = NewProcess(ProcessSpec{Package: "x", Executable: "x", Output: "loud"})
		assert.Error(t, err)
		assert.Panics(t, func() { MustProcess(ProcessSpec{}) })
	})
}

func TestDescription(t *testing.T) {
	a := MustProcess(ProcessSpec{Name: "a", Package: "p", Executable: "e1"})
	b := MustProcess(ProcessSpec{Package: "p", Executable: "e2"})
	procs := []Process{a, b}
	d := NewDescription(procs...)
	procs[0] = b

	require.Equal(t, 2, d.Len())
	assert.Equal(t, "a", d.At(0).Name())
	assert.Equal(t, []string{"a", "e2"}, d.Names())

	list := d.Processes()
	list[0] = b
	assert.Equal(t, "a", d.At(0).Name())
}

func TestCommandLine(t *testing.T) {
	dir := t.TempDir()

	t.Run("arguments only", func(t *testing.T) {
		p := MustProcess(ProcessSpec{Package: "tf2_ros", Executable: "static_transform_publisher", Arguments: []string{"0", "world"}})
		argv, omitted, err := p.CommandLine(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{"0", "world"}, argv)
		assert.Empty(t, omitted)
	})

	t.Run("name and mixed parameters", func(t *testing.T) {
		paramsDir := filepath.Join(dir, "rviz2-6")
		p := MustProcess(ProcessSpec{
			Name:       "rviz2",
			Package:    "rviz2",
			Executable: "rviz2",
			Arguments:  []string{"-d", "inmoov.rviz"},
			Parameters: []ParameterSource{
				InlineParams(map[string]Value{"robot_description": Text("<robot>\n</robot>")}),
				FileParams("/opt/head.yaml"),
				InlineParams(map[string]Value{"robot_description_semantic": Absent(), "use_sim_time": Text("true")}),
			},
		})
		argv, omitted, err := p.CommandLine(paramsDir)
		require.NoError(t, err)

		assert.Equal(t, []string{
			"-d", "inmoov.rviz",
			"--ros-args", "-r", "__node:=rviz2",
			"--params-file", filepath.Join(paramsDir, ParamsFileName(0)),
			"--params-file", "/opt/head.yaml",
			"--params-file", filepath.Join(paramsDir, ParamsFileName(2)),
		}, argv)
		assert.Equal(t, []Omitted{{Source: 2, Name: "robot_description_semantic"}}, omitted)

		var first map[string]map[string]map[string]string
		data, err := os.ReadFile(filepath.Join(paramsDir, ParamsFileName(0)))
		require.NoError(t, err)
		require.NoError(t, yaml.Unmarshal(data, &first))
		assert.Equal(t, "<robot>\n</robot>", first["/**"]["ros__parameters"]["robot_description"])

		var third map[string]map[string]map[string]interface{}
		data, err = os.ReadFile(filepath.Join(paramsDir, ParamsFileName(2)))
		require.NoError(t, err)
		require.NoError(t, yaml.Unmarshal(data, &third))
		params := third["/**"]["ros__parameters"]
		assert.NotContains(t, params, "robot_description_semantic")
		assert.Equal(t, "true", params["use_sim_time"], "text values stay strings")
	})
}

func TestRenderYAMLSortsKeys(t *testing.T) {
	src := InlineParams(map[string]Value{"b": Text("2"), "a": Text("1")})
	data, skipped, err := src.RenderYAML()
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Equal(t, "/**:\n  ros__parameters:\n    a: \"1\"\n    b: \"2\"\n", string(data))

	_, _, err = FileParams("x.yaml").RenderYAML()
	assert.Error(t, err)
}

func TestSnapshot(t *testing.T) {
	p := MustProcess(ProcessSpec{
		Name:       "rsp",
		Package:    "robot_state_publisher",
		Executable: "robot_state_publisher",
		Output:     OutputBoth,
		Parameters: []ParameterSource{
			InlineParams(map[string]Value{"robot_description": Text("0123456789"), "srdf": Absent()}),
			FileParams("/opt/x.yaml"),
		},
	})
	d := NewDescription(p)

	full := d.Snapshot(SnapshotOptions{})
	require.Len(t, full.Processes, 1)
	ps := full.Processes[0]
	assert.Equal(t, OutputBoth, ps.Output)
	require.Len(t, ps.Parameters, 2)
	assert.Equal(t, "0123456789", *ps.Parameters[0].Values["robot_description"])
	assert.Nil(t, ps.Parameters[0].Values["srdf"])
	assert.Equal(t, "/opt/x.yaml", ps.Parameters[1].File)

	short := d.Snapshot(SnapshotOptions{MaxValueLen: 4})
	assert.Equal(t, "<10 bytes>", *short.Processes[0].Parameters[0].Values["robot_description"])
}
