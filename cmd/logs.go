// File: cmd/logs.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/robolaunch/internal/config"
	"github.com/xkilldash9x/robolaunch/internal/observability"
	"github.com/xkilldash9x/robolaunch/internal/supervisor"
)

// ErrLogNotFound is returned when no log file matches the requested process.
var ErrLogNotFound = errors.New("log not found")

func newLogsCmd() *cobra.Command {
	var launchID string
	var follow bool

	logsCmd := &cobra.Command{
		Use:   "logs <process>",
		Short: "Print the log of a launched process",
		Long: `Prints the log file of one process from a launch. <process> is an
instance name such as rviz2-6, or a label such as rviz2 when only one
instance carries it. The most recent launch is used unless --launch-id is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			path, err := resolveLogFile(cfg.Launch(), launchID, args[0])
			if err != nil {
				return err
			}
			if follow {
				return followLog(cmd.Context(), cmd.OutOrStdout(), path)
			}
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open log: %w", err)
			}
			defer f.Close()
			return observability.CopyLines(cmd.OutOrStdout(), f)
		},
	}

	logsCmd.Flags().StringVar(&launchID, "launch-id", "", "launch to read (default is the most recent)")
	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new lines until interrupted")
	logsCmd.Flags().String("log-dir", "", "directory holding per-launch process logs (default ~/.ros/log)")
	bindFlag(logsCmd.Flags(), "log-dir", "launch.log_dir")
	return logsCmd
}

// resolveLogFile finds the log of process in the given (or latest) launch.
func resolveLogFile(cfg config.LaunchConfig, launchID, process string) (string, error) {
	logDir, err := supervisor.LogDir(cfg)
	if err != nil {
		return "", err
	}
	if launchID == "" {
		if launchID, err = supervisor.LatestLaunchID(logDir); err != nil {
			return "", err
		}
	}
	launchDir := filepath.Join(logDir, launchID)
	if strings.ContainsAny(process, `/\`) {
		return "", fmt.Errorf("invalid process name %q", process)
	}

	exact := observability.ProcessLogFile(launchDir, process)
	if _, err := os.Stat(exact); err == nil {
		return exact, nil
	}

	matches, err := filepath.Glob(filepath.Join(launchDir, process+"-*.log"))
	if err != nil {
		return "", err
	}
	sort.Strings(matches)
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s in launch %s", ErrLogNotFound, process, launchID)
	case 1:
		return matches[0], nil
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = strings.TrimSuffix(filepath.Base(m), ".log")
		}
		return "", fmt.Errorf("%q matches several processes, pick one of: %s", process, strings.Join(names, ", "))
	}
}

// followLog prints path from the start and keeps printing appended lines
// until ctx is done.
func followLog(ctx context.Context, w io.Writer, path string) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to tail log file: %w", err)
	}
	defer t.Cleanup()
	defer func() { _ = t.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				return line.Err
			}
			if _, err := fmt.Fprintln(w, line.Text); err != nil {
				return err
			}
		}
	}
}
