// File: internal/launch/params.go
package launch

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParamsFileName is the name CommandLine gives the i-th inline source.
func ParamsFileName(i int) string {
	return fmt.Sprintf("params_%d.yaml", i)
}

// Omitted names an inline parameter left out because its value is absent.
type Omitted struct {
	Source int
	Name   string
}

// CommandLine renders the process arguments following the ROS 2 convention:
//
//	<args...> --ros-args [-r __node:=<name>] --params-file <file>...
//
// Inline sources are written to paramsDir as YAML; file sources are passed
// through. The executable itself is not part of the result.
func (p Process) CommandLine(paramsDir string) ([]string, []Omitted, error) {
	argv := append([]string(nil), p.args...)
	if p.name == "" && len(p.params) == 0 {
		return argv, nil, nil
	}

	argv = append(argv, "--ros-args")
	if p.name != "" {
		argv = append(argv, "-r", "__node:="+p.name)
	}

	var omitted []Omitted
	for i, src := range p.params {
		if src.IsFile() {
			argv = append(argv, "--params-file", src.file)
			continue
		}
		data, skipped, err := src.RenderYAML()
		if err != nil {
			return nil, nil, fmt.Errorf("render parameters %d of %s: %w", i, p.Label(), err)
		}
		for _, name := range skipped {
			omitted = append(omitted, Omitted{Source: i, Name: name})
		}
		if err := os.MkdirAll(paramsDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create params dir: %w", err)
		}
		path := filepath.Join(paramsDir, ParamsFileName(i))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, nil, fmt.Errorf("write params file: %w", err)
		}
		argv = append(argv, "--params-file", path)
	}
	return argv, omitted, nil
}

// RenderYAML renders an inline source as a ROS 2 parameter file that
// applies to every node:
//
//	/**:
//	  ros__parameters:
//	    name: value
//
// Keys are sorted. Absent values are left out and their names returned.
func (p ParameterSource) RenderYAML() ([]byte, []string, error) {
	if p.IsFile() {
		return nil, nil, fmt.Errorf("%s is a parameter file, not an inline map", p.file)
	}

	params := &yaml.Node{Kind: yaml.MappingNode}
	var skipped []string
	for _, k := range p.Keys() {
		text, ok := p.values[k].Get()
		if !ok {
			skipped = append(skipped, k)
			continue
		}
		val := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: text}
		if strings.Contains(text, "\n") {
			val.Style = yaml.LiteralStyle
		}
		params.Content = append(params.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: k}, val)
	}

	doc := &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
		{Kind: yaml.ScalarNode, Value: "/**"},
		{Kind: yaml.MappingNode, Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: "ros__parameters"},
			params,
		}},
	}}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), skipped, nil
}
