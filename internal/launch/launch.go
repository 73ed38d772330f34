// File: internal/launch/launch.go
// Description: The launch model: process descriptors, their parameter
// sources, and the ordered, immutable launch description handed to the
// supervisor.

package launch

import (
	"errors"
	"fmt"
	"sort"
)

// -- Output modes --

// OutputMode says where a process's stdout/stderr go.
type OutputMode string

const (
	OutputLog    OutputMode = "log"
	OutputScreen OutputMode = "screen"
	OutputBoth   OutputMode = "both"
)

// ParseOutputMode validates s. The empty string means log.
func ParseOutputMode(s string) (OutputMode, error) {
	switch OutputMode(s) {
	case "", OutputLog:
		return OutputLog, nil
	case OutputScreen, OutputBoth:
		return OutputMode(s), nil
	}
	return "", fmt.Errorf("invalid output mode %q (want log, screen or both)", s)
}

// ToLog reports whether output goes to the per-process log file.
func (m OutputMode) ToLog() bool { return m == OutputLog || m == OutputBoth }

// ToScreen reports whether output goes to the console.
func (m OutputMode) ToScreen() bool { return m == OutputScreen || m == OutputBoth }

// -- Parameters --

// Value is an inline parameter value that may be absent.
type Value struct {
	text    string
	present bool
}

// Text returns a present value.
func Text(s string) Value { return Value{text: s, present: true} }

// Absent returns a value with nothing in it.
func Absent() Value { return Value{} }

// OptionalText is Text(s) when ok, otherwise Absent().
func OptionalText(s string, ok bool) Value {
	if !ok {
		return Absent()
	}
	return Text(s)
}

// Get returns the text and whether it is present.
func (v Value) Get() (string, bool) { return v.text, v.present }

// ParameterSource is either an inline name -> value map or a parameter file.
type ParameterSource struct {
	values map[string]Value
	file   string
}

// InlineParams copies m into a new inline source.
func InlineParams(m map[string]Value) ParameterSource {
	values := make(map[string]Value, len(m))
	for k, v := range m {
		values[k] = v
	}
	return ParameterSource{values: values}
}

// FileParams refers to a parameter file on disk.
func FileParams(path string) ParameterSource {
	return ParameterSource{file: path}
}

// IsFile reports whether the source is a file path.
func (p ParameterSource) IsFile() bool { return p.values == nil }

// File returns the file path of a file source.
func (p ParameterSource) File() string { return p.file }

// Values returns a copy of an inline source's map.
func (p ParameterSource) Values() map[string]Value {
	if p.values == nil {
		return nil
	}
	out := make(map[string]Value, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Keys returns the inline parameter names, sorted.
func (p ParameterSource) Keys() []string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns one inline value.
func (p ParameterSource) Lookup(name string) (Value, bool) {
	v, ok := p.values[name]
	return v, ok
}

// -- Process descriptor --

// ProcessSpec is the mutable input to NewProcess.
type ProcessSpec struct {
	Name       string
	Package    string
	Executable string
	Output     OutputMode
	Arguments  []string
	Parameters []ParameterSource
}

// Process describes one external program to start. It is immutable.
type Process struct {
	name       string
	pkg        string
	executable string
	output     OutputMode
	args       []string
	params     []ParameterSource
}

// NewProcess validates spec and returns a Process that owns copies of its
// slices.
func NewProcess(spec ProcessSpec) (Process, error) {
	if spec.Package == "" {
		return Process{}, errors.New("process package cannot be empty")
	}
	if spec.Executable == "" {
		return Process{}, fmt.Errorf("process executable cannot be empty (package %s)", spec.Package)
	}
	mode, err := ParseOutputMode(string(spec.Output))
	if err != nil {
		return Process{}, fmt.Errorf("process %s: %w", spec.Executable, err)
	}
	params := make([]ParameterSource, len(spec.Parameters))
	for i, p := range spec.Parameters {
		if p.IsFile() {
			params[i] = FileParams(p.file)
		} else {
			params[i] = InlineParams(p.values)
		}
	}
	return Process{
		name:       spec.Name,
		pkg:        spec.Package,
		executable: spec.Executable,
		output:     mode,
		args:       append([]string(nil), spec.Arguments...),
		params:     params,
	}, nil
}

// MustProcess is NewProcess for statically known descriptors.
func MustProcess(spec ProcessSpec) Process {
	p, err := NewProcess(spec)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Process) Name() string        { return p.name }
func (p Process) Package() string     { return p.pkg }
func (p Process) Executable() string  { return p.executable }
func (p Process) Output() OutputMode  { return p.output }
func (p Process) Arguments() []string { return append([]string(nil), p.args...) }

// Parameters returns the parameter sources in declared order.
func (p Process) Parameters() []ParameterSource {
	return append([]ParameterSource(nil), p.params...)
}

// Label is the node name when set, otherwise the executable.
func (p Process) Label() string {
	if p.name != "" {
		return p.name
	}
	return p.executable
}

// -- Launch description --

// Description is the ordered set of processes to start. Order is start
// order; it implies nothing about readiness.
type Description struct {
	processes []Process
}

// NewDescription returns a Description holding processes in the given order.
func NewDescription(processes ...Process) Description {
	return Description{processes: append([]Process(nil), processes...)}
}

// Len returns the number of processes.
func (d Description) Len() int { return len(d.processes) }

// At returns the i-th process.
func (d Description) At(i int) Process { return d.processes[i] }

// Processes returns a copy of the process list.
func (d Description) Processes() []Process {
	return append([]Process(nil), d.processes...)
}

// Names returns the label of every process in order.
func (d Description) Names() []string {
	names := make([]string, len(d.processes))
	for i, p := range d.processes {
		names[i] = p.Label()
	}
	return names
}
