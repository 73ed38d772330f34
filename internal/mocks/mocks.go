// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/robolaunch/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Packages() config.PackagesConfig {
	args := m.Called()
	return args.Get(0).(config.PackagesConfig)
}

func (m *MockConfig) Launch() config.LaunchConfig {
	args := m.Called()
	return args.Get(0).(config.LaunchConfig)
}

func (m *MockConfig) Xacro() config.XacroConfig {
	args := m.Called()
	return args.Get(0).(config.XacroConfig)
}

// --- Setters ---

func (m *MockConfig) SetLaunchDryRun(b bool) { m.Called(b) }

// -- Package Index Mock --

// MockPackages mocks pkgindex.Resolver.
type MockPackages struct {
	mock.Mock
}

func (m *MockPackages) ShareDirectory(pkg string) (string, error) {
	args := m.Called(pkg)
	return args.String(0), args.Error(1)
}

func (m *MockPackages) Executable(pkg, exe string) (string, error) {
	args := m.Called(pkg, exe)
	return args.String(0), args.Error(1)
}

// -- Template Engine Mock --

// MockExpander mocks xacro.Expander.
type MockExpander struct {
	mock.Mock
}

// ExpandFile honours cancellation before consulting the expectations.
func (m *MockExpander) ExpandFile(ctx context.Context, path string, args map[string]string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	ret := m.Called(ctx, path, args)
	return ret.String(0), ret.Error(1)
}
