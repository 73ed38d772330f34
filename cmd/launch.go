// File: cmd/launch.go
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/robolaunch/internal/launch"
	"github.com/xkilldash9x/robolaunch/internal/observability"
	"github.com/xkilldash9x/robolaunch/internal/supervisor"
)

func newLaunchCmd() *cobra.Command {
	var dryRun bool

	launchCmd := &cobra.Command{
		Use:   "launch",
		Short: "Start the InMoov fake-hardware launch",
		Long: `Expands the InMoov robot descriptions and starts the static transform
publisher, robot_state_publisher, the head, jaw and eyes fake joint drivers,
and rviz2. Ctrl+C stops every process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			cfg.SetLaunchDryRun(dryRun)

			logger := observability.GetLogger()
			comps, err := newComponents(cfg, logger)
			if err != nil {
				return err
			}
			desc, err := comps.describe(ctx)
			if err != nil {
				return err
			}

			if cfg.Launch().DryRun {
				exes := dryRunExecutables{inner: comps.packages, logger: logger}
				return printPlan(cmd.OutOrStdout(), desc, exes, cfg.Launch().ParamsDir)
			}

			sup, err := supervisor.New(cfg.Launch(), comps.packages, logger, logger.Named("process"))
			if err != nil {
				return err
			}
			report, err := sup.Run(ctx, desc)
			if err != nil {
				return err
			}
			for _, exit := range report.Failed() {
				logger.Warn("Process failed",
					zap.String("process", exit.Instance),
					zap.Int("exit_code", exit.Code),
					zap.Error(exit.Err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Launch %s finished. Logs: %s\n", report.LaunchID, report.LaunchDir)
			return nil
		},
	}

	launchCmd.Flags().String("log-dir", "", "directory for per-launch process logs (default ~/.ros/log)")
	bindFlag(launchCmd.Flags(), "log-dir", "launch.log_dir")
	launchCmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the resolved commands without starting anything")
	return launchCmd
}

// dryRunExecutables never fails: an executable that cannot be resolved is
// shown as pkg/exe so the rest of the plan is still visible.
type dryRunExecutables struct {
	inner  supervisor.Executables
	logger *zap.Logger
}

func (d dryRunExecutables) Executable(pkg, exe string) (string, error) {
	path, err := d.inner.Executable(pkg, exe)
	if err != nil {
		d.logger.Warn("Executable not found", zap.String("package", pkg), zap.String("executable", exe), zap.Error(err))
		return pkg + "/" + exe, nil
	}
	return path, nil
}

// printPlan writes one block per process. Inline parameter files go to
// paramsDir, or to a fresh temporary directory when it is empty, so they can
// be inspected after the run.
func printPlan(w io.Writer, desc launch.Description, exes supervisor.Executables, paramsDir string) error {
	var err error
	if paramsDir == "" {
		paramsDir, err = os.MkdirTemp("", "robolaunch-dry-run-")
	} else {
		paramsDir, err = homedir.Expand(paramsDir)
	}
	if err != nil {
		return fmt.Errorf("create params dir: %w", err)
	}
	plans, err := supervisor.Plan(desc, exes, paramsDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "# parameter files: %s\n", paramsDir)
	for _, p := range plans {
		fmt.Fprintf(w, "[%s] output=%s\n  %s\n", p.Instance, p.Output, p.CommandString())
		for _, o := range p.Omitted {
			fmt.Fprintf(w, "  # %s has no value and is left out\n", o.Name)
		}
	}
	return nil
}
