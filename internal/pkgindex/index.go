// File: internal/pkgindex/index.go
// Description: Resolves package names to install locations the way an ament
// workspace lays them out: <prefix>/share/<pkg> for data files and
// <prefix>/lib/<pkg>/<exe> for executables, with a marker file under
// <prefix>/share/ament_index/resource_index/packages/<pkg>.

package pkgindex

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/robolaunch/internal/config"
)

// EnvPrefixPath is consulted when no prefixes are configured.
const EnvPrefixPath = "AMENT_PREFIX_PATH"

const markerDir = "share/ament_index/resource_index/packages"

var (
	ErrPackageNotFound    = errors.New("package not found")
	ErrExecutableNotFound = errors.New("executable not found")
)

// Resolver is what the launch code needs from a package index.
type Resolver interface {
	ShareDirectory(pkg string) (string, error)
	Executable(pkg, exe string) (string, error)
}

// Index is a Resolver over a list of install prefixes plus explicit
// per-package overrides. It is immutable after construction.
type Index struct {
	prefixes  []string
	overrides map[string]string
	logger    *zap.Logger
}

// New builds an Index from configuration. Prefixes fall back to
// AMENT_PREFIX_PATH when none are configured.
func New(cfg config.PackagesConfig, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	raw := cfg.PrefixPath
	if len(raw) == 0 {
		raw = filepath.SplitList(os.Getenv(EnvPrefixPath))
	}

	idx := &Index{
		overrides: make(map[string]string, len(cfg.Overrides)),
		logger:    logger.Named("pkgindex"),
	}
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		expanded, err := homedir.Expand(p)
		if err != nil {
			return nil, fmt.Errorf("invalid prefix %q: %w", p, err)
		}
		idx.prefixes = append(idx.prefixes, filepath.Clean(expanded))
	}
	for name, dir := range cfg.Overrides {
		expanded, err := homedir.Expand(dir)
		if err != nil {
			return nil, fmt.Errorf("invalid override for %q: %w", name, err)
		}
		idx.overrides[name] = filepath.Clean(expanded)
	}

	if len(idx.prefixes) == 0 && len(idx.overrides) == 0 {
		idx.logger.Warn("No package prefixes configured; set packages.prefix_path or source a workspace",
			zap.String("env", EnvPrefixPath))
	}
	return idx, nil
}

// Prefixes returns a copy of the search prefixes in precedence order.
func (i *Index) Prefixes() []string {
	return append([]string(nil), i.prefixes...)
}

// ShareDirectory returns the share directory of pkg. Overrides win over
// prefixes; among prefixes the first one holding the marker wins.
func (i *Index) ShareDirectory(pkg string) (string, error) {
	if dir, ok := i.overrides[pkg]; ok {
		return dir, nil
	}
	prefix, err := i.prefixOf(pkg)
	if err != nil {
		return "", err
	}
	return filepath.Join(prefix, "share", pkg), nil
}

// Executable returns the path of an executable installed by pkg.
func (i *Index) Executable(pkg, exe string) (string, error) {
	var candidates []string
	if dir, ok := i.overrides[pkg]; ok {
		// An override points at <prefix>/share/<pkg>; try the sibling lib dir first.
		candidates = append(candidates,
			filepath.Join(dir, "..", "..", "lib", pkg, exe),
			filepath.Join(dir, "lib", exe))
	} else {
		prefix, err := i.prefixOf(pkg)
		if err != nil {
			return "", err
		}
		candidates = append(candidates, filepath.Join(prefix, "lib", pkg, exe))
	}

	for _, c := range candidates {
		if isExecutable(c) {
			return filepath.Clean(c), nil
		}
	}
	return "", fmt.Errorf("%w: %s/%s", ErrExecutableNotFound, pkg, exe)
}

func (i *Index) prefixOf(pkg string) (string, error) {
	if pkg == "" || strings.ContainsAny(pkg, `/\`) {
		return "", fmt.Errorf("%w: invalid package name %q", ErrPackageNotFound, pkg)
	}
	for _, prefix := range i.prefixes {
		if _, err := os.Stat(filepath.Join(prefix, markerDir, pkg)); err == nil {
			return prefix, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrPackageNotFound, pkg)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}
