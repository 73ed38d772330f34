// File: internal/robot/robot.go
// Description: The InMoov fake-hardware launch: four expanded robot
// descriptions, the semantic description, and the six processes that bring
// up TF, the state publisher, one fake joint driver per controlled subsystem,
// and the visualizer.

package robot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/xkilldash9x/robolaunch/internal/launch"
	"github.com/xkilldash9x/robolaunch/internal/xacro"
)

// Package names.
const (
	DescriptionPackage = "inmoov_description"
	RobotPackage       = "robot"
)

// Paths relative to the description package.
const (
	FullTemplate   = "robots/inmoov.urdf.xacro"
	HeadTemplate   = "robots/inmoov_head_control.urdf.xacro"
	JawTemplate    = "robots/inmoov_jaw_control.urdf.xacro"
	EyesTemplate   = "robots/inmoov_eyes_control.urdf.xacro"
	SemanticFile   = "config/inmoov.srdf"
	VisualizerFile = "config/inmoov.rviz"
)

// Paths relative to the robot package. All three drivers share the head
// controller file.
const (
	ControllerFile     = "controllers/head.yaml"
	StartPositionsFile = "controllers/start_positions.yaml"
)

// Parameter names.
const (
	ParamDescription         = "robot_description"
	ParamSemanticDescription = "robot_description_semantic"
	ParamControllerName      = "controller_name"
)

// StaticTransformArgs publish the identity transform world -> base_link.
var StaticTransformArgs = []string{"0.0", "0.0", "0.0", "0.0", "0.0", "0.0", "world", "base_link"}

// Packages resolves package share directories.
type Packages interface {
	ShareDirectory(pkg string) (string, error)
}

// -- File loader --

// LoadFile reads pkg/relPath as text. A file that is missing, unreadable or
// a directory yields ("", false, nil). An unresolvable package is an error.
func LoadFile(pkgs Packages, pkg, relPath string) (string, bool, error) {
	if pkgs == nil {
		return "", false, errors.New("package index is required")
	}
	dir, err := pkgs.ShareDirectory(pkg)
	if err != nil {
		return "", false, fmt.Errorf("load %s/%s: %w", pkg, relPath, err)
	}
	data, err := os.ReadFile(filepath.Join(dir, relPath))
	if err != nil {
		return "", false, nil
	}
	return string(data), true, nil
}

// -- Descriptions --

// Subsystem names one of the four description documents.
type Subsystem string

const (
	Full Subsystem = "full"
	Head Subsystem = "head"
	Jaw  Subsystem = "jaw"
	Eyes Subsystem = "eyes"
)

// Subsystems lists every subsystem with its template, in resolve order.
var Subsystems = []struct {
	Subsystem Subsystem
	Template  string
}{
	{Full, FullTemplate},
	{Head, HeadTemplate},
	{Jaw, JawTemplate},
	{Eyes, EyesTemplate},
}

// Descriptions holds one expanded document per subsystem. Each fake joint
// driver gets its own document so it only publishes the joints it controls.
type Descriptions struct {
	docs map[Subsystem]string
}

// NewDescriptions builds a Descriptions from already expanded documents.
func NewDescriptions(full, head, jaw, eyes string) Descriptions {
	return Descriptions{docs: map[Subsystem]string{Full: full, Head: head, Jaw: jaw, Eyes: eyes}}
}

// Document returns the expanded XML of s.
func (d Descriptions) Document(s Subsystem) string { return d.docs[s] }

// Parameters wraps the document of s as {robot_description: xml}.
func (d Descriptions) Parameters(s Subsystem) launch.ParameterSource {
	return launch.InlineParams(map[string]launch.Value{ParamDescription: launch.Text(d.docs[s])})
}

// ResolveDescriptions expands all four templates. Every template is
// attempted; failures are joined.
func ResolveDescriptions(ctx context.Context, pkgs Packages, expander xacro.Expander) (Descriptions, error) {
	if pkgs == nil || expander == nil {
		return Descriptions{}, errors.New("package index and expander are required")
	}
	share, err := pkgs.ShareDirectory(DescriptionPackage)
	if err != nil {
		return Descriptions{}, fmt.Errorf("resolve descriptions: %w", err)
	}

	docs := make(map[Subsystem]string, len(Subsystems))
	var errs []error
	for _, s := range Subsystems {
		xml, err := expander.ExpandFile(ctx, filepath.Join(share, s.Template), nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s description (%s): %w", s.Subsystem, s.Template, err))
			continue
		}
		docs[s.Subsystem] = xml
	}
	if err := errors.Join(errs...); err != nil {
		return Descriptions{}, err
	}
	return Descriptions{docs: docs}, nil
}

// -- Processes --

// BuildProcesses returns the six process descriptors in start order.
// semantic is the visualizer's semantic description and may be absent.
func BuildProcesses(pkgs Packages, descs Descriptions, semantic launch.Value) ([]launch.Process, error) {
	if pkgs == nil {
		return nil, errors.New("package index is required")
	}
	descShare, err := pkgs.ShareDirectory(DescriptionPackage)
	if err != nil {
		return nil, fmt.Errorf("build processes: %w", err)
	}
	robotShare, err := pkgs.ShareDirectory(RobotPackage)
	if err != nil {
		return nil, fmt.Errorf("build processes: %w", err)
	}

	controllers := launch.FileParams(filepath.Join(robotShare, ControllerFile))
	startPositions := launch.FileParams(filepath.Join(robotShare, StartPositionsFile))
	driver := func(controller string, s Subsystem) launch.ProcessSpec {
		return launch.ProcessSpec{
			Package:    "fake_joint_driver",
			Executable: "fake_joint_driver_node",
			Parameters: []launch.ParameterSource{
				launch.InlineParams(map[string]launch.Value{ParamControllerName: launch.Text(controller)}),
				controllers,
				startPositions,
				descs.Parameters(s),
			},
		}
	}

	specs := []launch.ProcessSpec{
		{
			Name:       "static_transform_publisher",
			Package:    "tf2_ros",
			Executable: "static_transform_publisher",
			Output:     launch.OutputLog,
			Arguments:  StaticTransformArgs,
		},
		{
			Name:       "robot_state_publisher",
			Package:    "robot_state_publisher",
			Executable: "robot_state_publisher",
			Output:     launch.OutputBoth,
			Parameters: []launch.ParameterSource{descs.Parameters(Full)},
		},
		driver("head_controller", Head),
		driver("jaw_controller", Jaw),
		driver("eyes_controller", Eyes),
		{
			Name:       "rviz2",
			Package:    "rviz2",
			Executable: "rviz2",
			Output:     launch.OutputLog,
			Arguments:  []string{"-d", filepath.Join(descShare, VisualizerFile)},
			Parameters: []launch.ParameterSource{
				descs.Parameters(Full),
				launch.InlineParams(map[string]launch.Value{ParamSemanticDescription: semantic}),
			},
		},
	}

	procs := make([]launch.Process, 0, len(specs))
	for _, spec := range specs {
		p, err := launch.NewProcess(spec)
		if err != nil {
			return nil, err
		}
		procs = append(procs, p)
	}
	return procs, nil
}

// -- Launch description --

// GenerateLaunchDescription resolves the descriptions, loads the semantic
// description and returns the launch description.
func GenerateLaunchDescription(ctx context.Context, pkgs Packages, expander xacro.Expander, logger *zap.Logger) (launch.Description, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	descs, err := ResolveDescriptions(ctx, pkgs, expander)
	if err != nil {
		return launch.Description{}, err
	}

	srdf, ok, err := LoadFile(pkgs, DescriptionPackage, SemanticFile)
	if err != nil {
		return launch.Description{}, err
	}
	if !ok {
		logger.Warn("Semantic description unavailable; the visualizer starts without it",
			zap.String("package", DescriptionPackage), zap.String("file", SemanticFile))
	}

	procs, err := BuildProcesses(pkgs, descs, launch.OptionalText(srdf, ok))
	if err != nil {
		return launch.Description{}, err
	}
	desc := launch.NewDescription(procs...)
	logger.Debug("Generated launch description", zap.Strings("processes", desc.Names()))
	return desc, nil
}
