// File: cmd/expand.go
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/robolaunch/internal/observability"
)

func newExpandCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expand <file.xacro> [name:=value ...]",
		Short: "Expand a xacro file and print the resulting XML",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			mappings, err := parseMappings(args[1:])
			if err != nil {
				return err
			}
			comps, err := newComponents(cfg, observability.GetLogger())
			if err != nil {
				return err
			}
			xml, err := comps.expander.ExpandFile(ctx, args[0], mappings)
			if err != nil {
				return err
			}
			if !strings.HasSuffix(xml, "\n") {
				xml += "\n"
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), xml)
			return err
		},
	}
}

// parseMappings turns name:=value arguments into a map. Later values win.
func parseMappings(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(args))
	for _, a := range args {
		name, value, ok := strings.Cut(a, ":=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid mapping %q (want name:=value)", a)
		}
		out[name] = value
	}
	return out, nil
}
