// File: cmd/components.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/robolaunch/internal/config"
	"github.com/xkilldash9x/robolaunch/internal/launch"
	"github.com/xkilldash9x/robolaunch/internal/pkgindex"
	"github.com/xkilldash9x/robolaunch/internal/robot"
	"github.com/xkilldash9x/robolaunch/internal/xacro"
)

// components are the long-lived pieces every launch-related command needs.
type components struct {
	packages *pkgindex.Index
	expander xacro.Expander
	logger   *zap.Logger
}

func newComponents(cfg config.Interface, logger *zap.Logger) (*components, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	idx, err := pkgindex.New(cfg.Packages(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build package index: %w", err)
	}
	expander, err := xacro.New(cfg.Xacro(), idx, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build xacro expander: %w", err)
	}
	return &components{packages: idx, expander: expander, logger: logger}, nil
}

// describe generates the InMoov launch description.
func (c *components) describe(ctx context.Context) (launch.Description, error) {
	desc, err := robot.GenerateLaunchDescription(ctx, c.packages, c.expander, c.logger)
	if err != nil {
		return launch.Description{}, fmt.Errorf("failed to generate launch description: %w", err)
	}
	return desc, nil
}
