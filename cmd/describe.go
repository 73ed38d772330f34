// File: cmd/describe.go
package cmd

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/robolaunch/internal/launch"
	"github.com/xkilldash9x/robolaunch/internal/observability"
)

// describeValueLimit is the longest inline value shown without
// --include-descriptions. Expanded robot descriptions are far longer.
const describeValueLimit = 120

func newDescribeCmd() *cobra.Command {
	var format string
	var includeDescriptions bool

	describeCmd := &cobra.Command{
		Use:   "describe",
		Short: "Print the launch description without starting anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			comps, err := newComponents(cfg, observability.GetLogger())
			if err != nil {
				return err
			}
			desc, err := comps.describe(ctx)
			if err != nil {
				return err
			}

			opts := launch.SnapshotOptions{MaxValueLen: describeValueLimit}
			if includeDescriptions {
				opts.MaxValueLen = 0
			}
			return writeSnapshot(cmd.OutOrStdout(), desc.Snapshot(opts), format)
		},
	}

	describeCmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format: yaml or json")
	describeCmd.Flags().BoolVar(&includeDescriptions, "include-descriptions", false, "print expanded robot descriptions in full")
	return describeCmd
}

func writeSnapshot(w io.Writer, snap launch.Snapshot, format string) error {
	switch format {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (want yaml or json)", format)
	}
}
