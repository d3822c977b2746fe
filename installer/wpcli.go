package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ruteri/wp-provisioner/interfaces"
)

const (
	DefaultWPCLIURL  = "https://raw.githubusercontent.com/wp-cli/builds/gh-pages/phar/wp-cli.phar"
	DefaultWPCLIPath = "/usr/local/bin/wp"

	executableMode = 0o755
)

// WPCLIConfig locates the WP-CLI tool and the document root it operates on.
type WPCLIConfig struct {
	// Path is where the WP-CLI executable lives, or is installed to by Acquire.
	Path string

	// DownloadURL is the WP-CLI phar fetched by Acquire.
	DownloadURL string

	// Docroot is passed to every command as --path.
	Docroot string
}

// WPCLI implements interfaces.Installer on top of the wp command line tool.
// Every command runs with --path=<docroot> --allow-root.
type WPCLI struct {
	config WPCLIConfig
	runner interfaces.CommandRunner
	client *http.Client
	log    *slog.Logger
}

// NewWPCLI creates a WP-CLI driver executing commands through runner.
func NewWPCLI(config WPCLIConfig, runner interfaces.CommandRunner, log *slog.Logger) *WPCLI {
	if config.Path == "" {
		config.Path = DefaultWPCLIPath
	}
	if config.DownloadURL == "" {
		config.DownloadURL = DefaultWPCLIURL
	}

	return &WPCLI{
		config: config,
		runner: runner,
		client: &http.Client{Timeout: 2 * time.Minute},
		log:    log,
	}
}

// Acquire downloads the WP-CLI phar to the configured path and makes it executable.
// It does nothing if the tool already exists there.
func (w *WPCLI) Acquire(ctx context.Context) error {
	if _, err := os.Stat(w.config.Path); err == nil {
		w.log.Info("wp-cli already present", "path", w.config.Path)
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: could not stat %s: %w", interfaces.ErrFileSystem, w.config.Path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.config.DownloadURL, nil)
	if err != nil {
		return fmt.Errorf("could not create wp-cli request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: could not download wp-cli: %w", interfaces.ErrExternalCommand, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: could not download wp-cli: unexpected status %d", interfaces.ErrExternalCommand, resp.StatusCode)
	}

	// Write next to the destination and rename, so a partial download never
	// looks like an installed tool.
	tmp, err := os.CreateTemp(filepath.Dir(w.config.Path), ".wp-cli-*")
	if err != nil {
		return fmt.Errorf("%w: %w", interfaces.ErrFileSystem, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: could not download wp-cli: %w", interfaces.ErrExternalCommand, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", interfaces.ErrFileSystem, err)
	}
	if err := os.Chmod(tmp.Name(), executableMode); err != nil {
		return fmt.Errorf("%w: %w", interfaces.ErrFileSystem, err)
	}
	if err := os.Rename(tmp.Name(), w.config.Path); err != nil {
		return fmt.Errorf("%w: %w", interfaces.ErrFileSystem, err)
	}

	w.log.Info("wp-cli installed", "path", w.config.Path)
	return nil
}

// DownloadCore downloads WordPress core. An empty version or "latest" selects the latest release.
func (w *WPCLI) DownloadCore(ctx context.Context, version string) error {
	args := []string{"core", "download"}
	if version != "" && version != "latest" {
		args = append(args, "--version="+version)
	}
	return w.wp(ctx, args...)
}

func (w *WPCLI) InstallCore(ctx context.Context, site interfaces.SiteInstall) error {
	return w.wp(ctx, "core", "install",
		"--url="+site.URL,
		"--title="+site.Title,
		"--admin_user="+site.AdminUser,
		"--admin_password="+site.AdminPassword,
		"--admin_email="+site.AdminEmail,
		"--skip-email",
	)
}

func (w *WPCLI) UpdateUserPassword(ctx context.Context, user, password string) error {
	return w.wp(ctx, "user", "update", user, "--user_pass="+password, "--skip-email")
}

func (w *WPCLI) DeletePlugins(ctx context.Context, plugins ...string) error {
	return w.deleteInstalled(ctx, "plugin", plugins)
}

func (w *WPCLI) DeleteThemes(ctx context.Context, themes ...string) error {
	return w.deleteInstalled(ctx, "theme", themes)
}

func (w *WPCLI) SetPermalinkStructure(ctx context.Context, structure string) error {
	return w.wp(ctx, "rewrite", "structure", structure, "--hard")
}

func (w *WPCLI) UpdateOption(ctx context.Context, name, value string) error {
	return w.wp(ctx, "option", "update", name, value)
}

func (w *WPCLI) RegenerateMedia(ctx context.Context) error {
	return w.wp(ctx, "media", "regenerate", "--yes")
}

func (w *WPCLI) InstallPlugins(ctx context.Context, plugins ...string) error {
	if len(plugins) == 0 {
		return nil
	}
	args := append([]string{"plugin", "install"}, plugins...)
	return w.wp(ctx, append(args, "--activate")...)
}

// deleteInstalled removes the extensions of the given kind ("plugin" or
// "theme") for which "is-installed" succeeds.
func (w *WPCLI) deleteInstalled(ctx context.Context, kind string, names []string) error {
	var installed []string
	for _, name := range names {
		ok, err := w.isInstalled(ctx, kind, name)
		if err != nil {
			return err
		}
		if !ok {
			w.log.Debug("skipping absent "+kind, "name", name)
			continue
		}
		installed = append(installed, name)
	}

	if len(installed) == 0 {
		return nil
	}
	return w.wp(ctx, append([]string{kind, "delete"}, installed...)...)
}

func (w *WPCLI) isInstalled(ctx context.Context, kind, name string) (bool, error) {
	err := w.wp(ctx, kind, "is-installed", name)
	switch {
	case err == nil:
		return true, nil
	case IsExitError(err):
		return false, nil
	default:
		return false, err
	}
}

func (w *WPCLI) wp(ctx context.Context, args ...string) error {
	args = append(args, "--path="+w.config.Docroot, "--allow-root")
	return w.runner.Run(ctx, w.config.Path, args...)
}
