// File: internal/launch/snapshot.go
package launch

import "strconv"

// Snapshot is a serialisable view of a Description.
type Snapshot struct {
	Processes []ProcessSnapshot `json:"processes" yaml:"processes"`
}

// ProcessSnapshot is a serialisable view of a Process.
type ProcessSnapshot struct {
	Name       string              `json:"name,omitempty" yaml:"name,omitempty"`
	Package    string              `json:"package" yaml:"package"`
	Executable string              `json:"executable" yaml:"executable"`
	Output     OutputMode          `json:"output" yaml:"output"`
	Arguments  []string            `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	Parameters []ParameterSnapshot `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// ParameterSnapshot holds either File or Values. A nil entry in Values is
// an absent parameter.
type ParameterSnapshot struct {
	File   string             `json:"file,omitempty" yaml:"file,omitempty"`
	Values map[string]*string `json:"values,omitempty" yaml:"values,omitempty"`
}

// SnapshotOptions controls how much of each value is kept.
type SnapshotOptions struct {
	// MaxValueLen truncates longer inline values to a size summary.
	// Zero keeps everything.
	MaxValueLen int
}

// Snapshot renders d.
func (d Description) Snapshot(opts SnapshotOptions) Snapshot {
	out := Snapshot{Processes: make([]ProcessSnapshot, 0, len(d.processes))}
	for _, p := range d.processes {
		out.Processes = append(out.Processes, p.snapshot(opts))
	}
	return out
}

func (p Process) snapshot(opts SnapshotOptions) ProcessSnapshot {
	ps := ProcessSnapshot{
		Name:       p.name,
		Package:    p.pkg,
		Executable: p.executable,
		Output:     p.output,
		Arguments:  p.Arguments(),
	}
	for _, src := range p.params {
		if src.IsFile() {
			ps.Parameters = append(ps.Parameters, ParameterSnapshot{File: src.file})
			continue
		}
		values := make(map[string]*string, len(src.values))
		for k, v := range src.values {
			text, ok := v.Get()
			if !ok {
				values[k] = nil
				continue
			}
			if opts.MaxValueLen > 0 && len(text) > opts.MaxValueLen {
				text = summarize(text)
			}
			values[k] = &text
		}
		ps.Parameters = append(ps.Parameters, ParameterSnapshot{Values: values})
	}
	return ps
}

func summarize(text string) string {
	return "<" + strconv.Itoa(len(text)) + " bytes>"
}
