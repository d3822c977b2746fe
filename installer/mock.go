package installer

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ruteri/wp-provisioner/interfaces"
)

// MockCommandRunner mocks the CommandRunner interface.
// Variadic arguments are recorded as a single []string.
type MockCommandRunner struct {
	mock.Mock
}

func (m *MockCommandRunner) Run(ctx context.Context, name string, args ...string) error {
	ret := m.Called(ctx, name, args)
	return ret.Error(0)
}

func (m *MockCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	ret := m.Called(ctx, name, args)
	out, _ := ret.Get(0).([]byte)
	return out, ret.Error(1)
}

// MockInstaller mocks the Installer interface.
type MockInstaller struct {
	mock.Mock
}

func (m *MockInstaller) Acquire(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockInstaller) DownloadCore(ctx context.Context, version string) error {
	return m.Called(ctx, version).Error(0)
}

func (m *MockInstaller) InstallCore(ctx context.Context, site interfaces.SiteInstall) error {
	return m.Called(ctx, site).Error(0)
}

func (m *MockInstaller) UpdateUserPassword(ctx context.Context, user, password string) error {
	return m.Called(ctx, user, password).Error(0)
}

func (m *MockInstaller) DeletePlugins(ctx context.Context, plugins ...string) error {
	return m.Called(ctx, plugins).Error(0)
}

func (m *MockInstaller) DeleteThemes(ctx context.Context, themes ...string) error {
	return m.Called(ctx, themes).Error(0)
}

func (m *MockInstaller) SetPermalinkStructure(ctx context.Context, structure string) error {
	return m.Called(ctx, structure).Error(0)
}

func (m *MockInstaller) UpdateOption(ctx context.Context, name, value string) error {
	return m.Called(ctx, name, value).Error(0)
}

func (m *MockInstaller) RegenerateMedia(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockInstaller) InstallPlugins(ctx context.Context, plugins ...string) error {
	return m.Called(ctx, plugins).Error(0)
}
