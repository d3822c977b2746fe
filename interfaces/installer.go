package interfaces

import "context"

// CommandRunner executes external commands. Only the exit status is interpreted.
type CommandRunner interface {
	// Run executes the command, streaming its output to the runner's writers.
	Run(ctx context.Context, name string, args ...string) error

	// Output executes the command and returns its standard output.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// SiteInstall carries the values required by the logical "core install" step.
type SiteInstall struct {
	URL           string
	Title         string
	AdminUser     string
	AdminPassword string
	AdminEmail    string
}

// Installer is the WP-CLI collaborator driven by the provisioning orchestrator.
// Every method fails iff the underlying command exits non-zero.
type Installer interface {
	// Acquire makes the installer tool available on the host.
	Acquire(ctx context.Context) error

	// DownloadCore downloads WordPress core files into the document root.
	DownloadCore(ctx context.Context, version string) error

	// InstallCore creates the admin account and sets the site URL and title.
	InstallCore(ctx context.Context, site SiteInstall) error

	// UpdateUserPassword resets the password of an existing user.
	UpdateUserPassword(ctx context.Context, user, password string) error

	// DeletePlugins removes the listed plugins that are installed.
	DeletePlugins(ctx context.Context, plugins ...string) error

	// DeleteThemes removes the listed themes that are installed.
	DeleteThemes(ctx context.Context, themes ...string) error

	// SetPermalinkStructure sets the rewrite structure and flushes rewrite rules.
	SetPermalinkStructure(ctx context.Context, structure string) error

	// UpdateOption sets a single site option.
	UpdateOption(ctx context.Context, name, value string) error

	// RegenerateMedia regenerates thumbnails for all attachments.
	RegenerateMedia(ctx context.Context) error

	// InstallPlugins installs and activates the listed plugins.
	InstallPlugins(ctx context.Context, plugins ...string) error
}
