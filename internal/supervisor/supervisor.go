// File: internal/supervisor/supervisor.go
// Description: Runs a launch description. Processes start in declared order,
// their output is routed by output mode, and on cancellation every running
// process is stopped with SIGINT, then SIGTERM, then SIGKILL.

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/robolaunch/internal/config"
	"github.com/xkilldash9x/robolaunch/internal/launch"
	"github.com/xkilldash9x/robolaunch/internal/observability"
)

// LatestFile names the file in the log directory holding the most recent
// launch ID.
const LatestFile = "latest"

// ErrStart is returned when a process cannot be resolved or started.
var ErrStart = errors.New("failed to start process")

// Executables resolves a package executable to a path.
type Executables interface {
	Executable(pkg, exe string) (string, error)
}

// -- Plan --

// Planned is a process ready to start.
type Planned struct {
	Index      int
	Instance   string
	Executable string
	Argv       []string
	Output     launch.OutputMode
	Omitted    []launch.Omitted
}

// CommandString renders the planned command for display.
func (p Planned) CommandString() string {
	return strings.Join(append([]string{p.Executable}, p.Argv...), " ")
}

// InstanceName is the unique name of the i-th (zero based) process.
func InstanceName(p launch.Process, i int) string {
	return fmt.Sprintf("%s-%d", p.Label(), i+1)
}

// Plan resolves every process of desc and renders its command line, writing
// inline parameter files below paramsDir/<instance>.
func Plan(desc launch.Description, exes Executables, paramsDir string) ([]Planned, error) {
	plans := make([]Planned, 0, desc.Len())
	for i, p := range desc.Processes() {
		instance := InstanceName(p, i)
		exe, err := exes.Executable(p.Package(), p.Executable())
		if err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrStart, instance, err)
		}
		argv, omitted, err := p.CommandLine(filepath.Join(paramsDir, instance))
		if err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrStart, instance, err)
		}
		plans = append(plans, Planned{
			Index:      i,
			Instance:   instance,
			Executable: exe,
			Argv:       argv,
			Output:     p.Output(),
			Omitted:    omitted,
		})
	}
	return plans, nil
}

// -- Report --

// Exit records how one process ended.
type Exit struct {
	Instance string
	Pid      int
	Code     int
	// Stopped is true when the process ended because the launch shut down.
	Stopped bool
	Err     error
}

// Report summarizes a launch.
type Report struct {
	LaunchID  string
	LaunchDir string
	Exits     []Exit
}

// Failed returns the exits that were neither clean nor caused by shutdown.
func (r *Report) Failed() []Exit {
	var out []Exit
	for _, e := range r.Exits {
		if e.Err != nil && !e.Stopped {
			out = append(out, e)
		}
	}
	return out
}

// -- Supervisor --

// Supervisor starts and stops the processes of one launch description.
type Supervisor struct {
	cfg     config.LaunchConfig
	exes    Executables
	logger  *zap.Logger
	console *zap.Logger
	newID   func() string
}

// New creates a Supervisor. console receives the output of processes whose
// output mode includes the screen; nil means logger.
func New(cfg config.LaunchConfig, exes Executables, logger, console *zap.Logger) (*Supervisor, error) {
	if exes == nil {
		return nil, errors.New("executable resolver cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if console == nil {
		console = logger
	}
	return &Supervisor{
		cfg:     cfg,
		exes:    exes,
		logger:  logger.Named("supervisor"),
		console: console,
		newID:   uuid.NewString,
	}, nil
}

// LogDir returns the configured log directory with ~ expanded.
func LogDir(cfg config.LaunchConfig) (string, error) {
	dir, err := homedir.Expand(cfg.LogDir)
	if err != nil {
		return "", fmt.Errorf("expand log dir %q: %w", cfg.LogDir, err)
	}
	return dir, nil
}

// LatestLaunchID reads the ID recorded by the most recent Run.
func LatestLaunchID(logDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(logDir, LatestFile))
	if err != nil {
		return "", fmt.Errorf("no recorded launch in %s: %w", logDir, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Run starts every process of desc and blocks until all of them have exited
// or ctx is cancelled and shutdown has completed. The error is non-nil only
// when a process could not be started.
func (s *Supervisor) Run(ctx context.Context, desc launch.Description) (*Report, error) {
	logDir, err := LogDir(s.cfg)
	if err != nil {
		return nil, err
	}
	id := s.newID()
	launchDir := filepath.Join(logDir, id)
	if err := os.MkdirAll(launchDir, 0o755); err != nil {
		return nil, fmt.Errorf("create launch log dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(logDir, LatestFile), []byte(id+"\n"), 0o644); err != nil {
		s.logger.Warn("Could not record latest launch", zap.Error(err))
	}

	paramsDir := filepath.Join(launchDir, "params")
	if s.cfg.ParamsDir != "" {
		if paramsDir, err = homedir.Expand(s.cfg.ParamsDir); err != nil {
			return nil, fmt.Errorf("expand params dir: %w", err)
		}
	}
	report := &Report{LaunchID: id, LaunchDir: launchDir, Exits: make([]Exit, desc.Len())}
	logger := s.logger.With(zap.String("launch_id", id))

	plans, err := Plan(desc, s.exes, paramsDir)
	if err != nil {
		return report, err
	}
	for _, p := range plans {
		for _, o := range p.Omitted {
			logger.Warn("Parameter has no value and was left out",
				zap.String("process", p.Instance), zap.String("parameter", o.Name))
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	var startErr error
	logger.Info("Starting launch", zap.Int("processes", len(plans)), zap.String("log_dir", launchDir))
	for _, p := range plans {
		if runCtx.Err() != nil {
			break
		}
		h, err := s.start(runCtx, p, launchDir)
		if err != nil {
			startErr = fmt.Errorf("%w %s: %w", ErrStart, p.Instance, err)
			logger.Error("Process failed to start; shutting down", zap.String("process", p.Instance), zap.Error(err))
			cancel()
			break
		}
		logger.Info("Process started", zap.String("process", p.Instance), zap.Int("pid", h.cmd.Process.Pid))
		g.Go(func() error {
			exit := s.supervise(runCtx, h, logger)
			report.Exits[p.Index] = exit
			if !exit.Stopped && s.cfg.ShutdownOnExit {
				logger.Info("Process exited; shutting down the launch", zap.String("process", p.Instance))
				cancel()
			}
			return nil
		})
	}
	_ = g.Wait()

	for i := range report.Exits {
		if report.Exits[i].Instance == "" {
			report.Exits[i] = Exit{Instance: plans[i].Instance, Stopped: true, Code: -1}
		}
	}
	logger.Info("Launch finished", zap.Int("failed", len(report.Failed())))
	return report, startErr
}

// -- Per-process handling --

type handle struct {
	plan    Planned
	cmd     *exec.Cmd
	closers []io.Closer
	flushes []func()
	waitCh  chan error
}

func (s *Supervisor) start(ctx context.Context, p Planned, launchDir string) (*handle, error) {
	cmd := exec.CommandContext(ctx, p.Executable, p.Argv...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = s.cfg.SigintTimeout + s.cfg.SigtermTimeout

	h := &handle{plan: p, cmd: cmd, waitCh: make(chan error, 1)}
	var stdout, stderr []io.Writer
	if p.Output.ToLog() {
		f := observability.NewProcessLogFile(launchDir, p.Instance, s.cfg.LogMaxSize, s.cfg.LogMaxBackups)
		h.closers = append(h.closers, f)
		stdout = append(stdout, f)
		stderr = append(stderr, f)
	}
	if p.Output.ToScreen() {
		screen := s.console.With(zap.String("process", p.Instance))
		out := observability.NewLineWriter(screen, "stdout")
		errw := observability.NewLineWriter(screen, "stderr")
		h.flushes = append(h.flushes, out.Flush, errw.Flush)
		stdout = append(stdout, out)
		stderr = append(stderr, errw)
	}
	cmd.Stdout = io.MultiWriter(stdout...)
	cmd.Stderr = io.MultiWriter(stderr...)

	if err := cmd.Start(); err != nil {
		h.release()
		return nil, err
	}
	go func() { h.waitCh <- cmd.Wait() }()
	return h, nil
}

func (h *handle) release() {
	for _, f := range h.flushes {
		f()
	}
	for _, c := range h.closers {
		_ = c.Close()
	}
}

// supervise waits for the process and escalates signals once ctx is done.
// SIGINT is sent by cmd.Cancel, SIGTERM here, and the kill by WaitDelay.
func (s *Supervisor) supervise(ctx context.Context, h *handle, logger *zap.Logger) Exit {
	defer h.release()
	log := logger.With(zap.String("process", h.plan.Instance))

	var err error
	stopped := false
	select {
	case err = <-h.waitCh:
	case <-ctx.Done():
		stopped = true
		timer := time.NewTimer(s.cfg.SigintTimeout)
		select {
		case err = <-h.waitCh:
		case <-timer.C:
			log.Warn("Process ignored SIGINT; sending SIGTERM", zap.Duration("after", s.cfg.SigintTimeout))
			_ = h.cmd.Process.Signal(syscall.SIGTERM)
			err = <-h.waitCh
		}
		timer.Stop()
	}

	exit := Exit{Instance: h.plan.Instance, Pid: h.cmd.Process.Pid, Stopped: stopped, Err: err}
	exit.Code = h.cmd.ProcessState.ExitCode()

	switch {
	case stopped:
		log.Info("Process stopped", zap.Int("exit_code", exit.Code))
	case err != nil:
		log.Error("Process exited with error", zap.Int("exit_code", exit.Code), zap.Error(err))
	default:
		log.Info("Process exited", zap.Int("exit_code", exit.Code))
	}
	return exit
}
