// File: internal/xacro/command.go
package xacro

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/robolaunch/internal/config"
	"github.com/xkilldash9x/robolaunch/internal/pkgindex"
)

// ErrCommandFailed wraps a non-zero exit of the external xacro tool.
var ErrCommandFailed = errors.New("xacro command failed")

// Command runs an external xacro executable and captures its stdout.
type Command struct {
	path      string
	extraArgs map[string]string
	timeout   time.Duration
	prefixes  []string
	logger    *zap.Logger
}

// prefixLister is implemented by package indexes that search install
// prefixes, such as *pkgindex.Index.
type prefixLister interface {
	Prefixes() []string
}

// WithPrefixes makes the child resolve $(find) over prefixes by exporting
// them as AMENT_PREFIX_PATH. An empty list keeps the inherited environment.
func (c *Command) WithPrefixes(prefixes []string) *Command {
	c.prefixes = append([]string(nil), prefixes...)
	return c
}

// NewCommand builds a Command from the xacro configuration.
func NewCommand(cfg config.XacroConfig, logger *zap.Logger) *Command {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Command{
		path:      cfg.Command,
		extraArgs: cfg.Args,
		timeout:   cfg.Timeout,
		logger:    logger.Named("xacro"),
	}
}

// ExpandFile runs `<command> <path> name:=value...`. Configured args are
// passed first so per-call args win.
func (c *Command) ExpandFile(ctx context.Context, path string, args map[string]string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	argv := append([]string{path}, mappingArgs(c.extraArgs)...)
	argv = append(argv, mappingArgs(args)...)

	cmd := exec.CommandContext(ctx, c.path, argv...)
	if len(c.prefixes) > 0 {
		// Later entries win, so this overrides any inherited value.
		cmd.Env = append(os.Environ(),
			pkgindex.EnvPrefixPath+"="+strings.Join(c.prefixes, string(filepath.ListSeparator)))
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Debug("Running xacro", zap.String("command", c.path), zap.Strings("args", argv))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrCommandFailed, path, ctxErr)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("%w: %s: %s", ErrCommandFailed, path, msg)
	}
	return stdout.String(), nil
}

func mappingArgs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+":="+m[k])
	}
	return out
}

// withArgs layers configured default args under per-call args.
type withArgs struct {
	Expander
	defaults map[string]string
}

func (w withArgs) ExpandFile(ctx context.Context, path string, args map[string]string) (string, error) {
	merged := make(map[string]string, len(w.defaults)+len(args))
	for k, v := range w.defaults {
		merged[k] = v
	}
	for k, v := range args {
		merged[k] = v
	}
	return w.Expander.ExpandFile(ctx, path, merged)
}

// New returns the Expander selected by configuration.
func New(cfg config.XacroConfig, finder PackageFinder, logger *zap.Logger) (Expander, error) {
	switch cfg.Engine {
	case "", config.XacroEngineNative:
		var e Expander = NewEngine(finder, logger)
		if len(cfg.Args) > 0 {
			e = withArgs{Expander: e, defaults: cfg.Args}
		}
		return e, nil
	case config.XacroEngineCommand:
		if cfg.Command == "" {
			return nil, errors.New("xacro.command must be set for the command engine")
		}
		c := NewCommand(cfg, logger)
		if pl, ok := finder.(prefixLister); ok {
			c.WithPrefixes(pl.Prefixes())
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown xacro engine %q", cfg.Engine)
}
