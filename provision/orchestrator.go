package provision

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ruteri/wp-provisioner/interfaces"
	"github.com/ruteri/wp-provisioner/wpconfig"
)

// State is a step of the provisioning sequence.
type State int

const (
	StateUnprovisioned State = iota
	StateCoreDownloaded
	StateConfigured
	StateSecured
	StateDone
)

func (s State) String() string {
	switch s {
	case StateUnprovisioned:
		return "UNPROVISIONED"
	case StateCoreDownloaded:
		return "CORE_DOWNLOADED"
	case StateConfigured:
		return "CONFIGURED"
	case StateSecured:
		return "SECURED"
	case StateDone:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	DefaultPermalinkStructure = "/%postname%/"

	objectCacheSource = "wp-content/plugins/redis-cache/includes/object-cache.php"
	objectCacheTarget = "wp-content/object-cache.php"
	defaultCacheDir   = "wp-content/cache"
)

var (
	DefaultPlugins        = []string{"redis-cache", "wordpress-seo", "wp-mail-smtp", "wordfence"}
	DefaultRemovedPlugins = []string{"hello", "akismet"}
	DefaultRemovedThemes  = []string{"twentytwentytwo", "twentytwentythree"}
)

// Option is a site option set during configuration.
type Option struct {
	Name  string
	Value string
}

// DefaultMediaOptions are the image sizes applied before media regeneration.
var DefaultMediaOptions = []Option{
	{"thumbnail_size_w", "150"},
	{"thumbnail_size_h", "150"},
	{"medium_size_w", "300"},
	{"medium_size_h", "300"},
	{"large_size_w", "1024"},
	{"large_size_h", "1024"},
}

// Config holds everything a provisioning run needs.
type Config struct {
	Docroot     string
	CoreVersion string

	// Site is passed to the core install. URL defaults to the hostname with
	// https when TLS is enabled, http otherwise.
	Site interfaces.SiteInstall

	// Settings are rendered into wp-config.php.
	Settings wpconfig.Settings

	// Owner receives every file under the docroot.
	Owner Owner

	// CacheDir is emptied at the end of the run. Defaults to <docroot>/wp-content/cache.
	CacheDir string

	Plugins            []string
	RemovedPlugins     []string
	RemovedThemes      []string
	PermalinkStructure string
	MediaOptions       []Option
}

func (c Config) withDefaults() Config {
	if c.Site.URL == "" {
		scheme := "http"
		if c.Settings.TLS {
			scheme = "https"
		}
		c.Site.URL = scheme + "://" + c.Settings.Hostname
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(c.Docroot, defaultCacheDir)
	}
	if c.Plugins == nil {
		c.Plugins = DefaultPlugins
	}
	if c.RemovedPlugins == nil {
		c.RemovedPlugins = DefaultRemovedPlugins
	}
	if c.RemovedThemes == nil {
		c.RemovedThemes = DefaultRemovedThemes
	}
	if c.PermalinkStructure == "" {
		c.PermalinkStructure = DefaultPermalinkStructure
	}
	if c.MediaOptions == nil {
		c.MediaOptions = DefaultMediaOptions
	}
	return c
}

func (c Config) validate() error {
	var errs []error
	if c.Docroot == "" {
		errs = append(errs, errors.New("docroot is required"))
	}
	if c.Site.AdminUser == "" {
		errs = append(errs, errors.New("admin user is required"))
	}
	if c.Site.AdminPassword == "" {
		errs = append(errs, errors.New("admin password is required"))
	}
	if c.Site.AdminEmail == "" {
		errs = append(errs, errors.New("admin email is required"))
	}
	if err := c.Settings.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Result describes a finished run.
type Result struct {
	State              State
	AlreadyProvisioned bool
	SecretSource       interfaces.SecretSource
	ConfigPath         string
	WarmedUp           bool
	Duration           time.Duration
}

// IsProvisioned reports whether docroot already holds a wp-config.php.
// Only a missing file means unprovisioned; any other stat failure is returned.
func IsProvisioned(docroot string) (bool, error) {
	path := filepath.Join(docroot, wpconfig.FileName)
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("%w: could not check %s: %w", interfaces.ErrFileSystem, path, err)
	}
}

// Orchestrator runs the provisioning sequence
// UNPROVISIONED → CORE_DOWNLOADED → CONFIGURED → SECURED → DONE exactly once per docroot.
type Orchestrator struct {
	cfg       Config
	installer interfaces.Installer
	secrets   interfaces.SecretProvider
	warmUp    WarmUper
	log       *slog.Logger
}

// NewOrchestrator validates cfg and creates an orchestrator.
// warmUp may be nil to skip the warm-up request.
func NewOrchestrator(cfg Config, installer interfaces.Installer, secrets interfaces.SecretProvider, warmUp WarmUper, log *slog.Logger) (*Orchestrator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid provisioning config: %w", err)
	}

	return &Orchestrator{
		cfg:       cfg,
		installer: installer,
		secrets:   secrets,
		warmUp:    warmUp,
		log:       log,
	}, nil
}

// Run provisions the docroot. If the docroot is already provisioned it
// returns immediately without side effects. Any failure aborts the run;
// there is no per-step resume.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	provisioned, err := IsProvisioned(o.cfg.Docroot)
	if err != nil {
		return &Result{State: StateUnprovisioned}, err
	}
	if provisioned {
		o.log.Info("Site already provisioned, nothing to do", slog.String("docroot", o.cfg.Docroot))
		return &Result{State: StateDone, AlreadyProvisioned: true}, nil
	}

	result := &Result{State: StateUnprovisioned}
	steps := []struct {
		to  State
		run func(context.Context, *Result) error
	}{
		{StateCoreDownloaded, o.downloadCore},
		{StateConfigured, o.configure},
		{StateSecured, o.secure},
		{StateDone, o.finalize},
	}

	for _, step := range steps {
		stepStart := time.Now()
		if err := step.run(ctx, result); err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("provisioning failed in %s → %s: %w", result.State, step.to, err)
		}

		o.log.Info("Provisioning step completed",
			slog.String("from", result.State.String()),
			slog.String("to", step.to.String()),
			slog.Duration("duration", time.Since(stepStart)))
		result.State = step.to
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (o *Orchestrator) downloadCore(ctx context.Context, _ *Result) error {
	if err := o.installer.Acquire(ctx); err != nil {
		return fmt.Errorf("could not acquire wp-cli: %w", err)
	}
	if err := o.installer.DownloadCore(ctx, o.cfg.CoreVersion); err != nil {
		return fmt.Errorf("could not download core: %w", err)
	}
	return ChownTree(o.cfg.Docroot, o.cfg.Owner)
}

func (o *Orchestrator) configure(ctx context.Context, result *Result) error {
	secrets := o.secrets.FetchSecrets(ctx)
	result.SecretSource = secrets.Source

	path, err := wpconfig.Write(o.cfg.Docroot, o.cfg.Settings, secrets)
	if err != nil {
		return err
	}
	result.ConfigPath = path
	o.log.Info("Configuration written",
		slog.String("path", path),
		slog.String("secrets", string(secrets.Source)),
		slog.Bool("tls", o.cfg.Settings.TLS))

	if err := o.installer.InstallCore(ctx, o.cfg.Site); err != nil {
		return fmt.Errorf("could not install core: %w", err)
	}
	if err := o.installer.UpdateUserPassword(ctx, o.cfg.Site.AdminUser, o.cfg.Site.AdminPassword); err != nil {
		return fmt.Errorf("could not reset admin password: %w", err)
	}
	if err := o.installer.DeletePlugins(ctx, o.cfg.RemovedPlugins...); err != nil {
		return fmt.Errorf("could not remove default plugins: %w", err)
	}
	if err := o.installer.DeleteThemes(ctx, o.cfg.RemovedThemes...); err != nil {
		return fmt.Errorf("could not remove default themes: %w", err)
	}
	if err := o.installer.SetPermalinkStructure(ctx, o.cfg.PermalinkStructure); err != nil {
		return fmt.Errorf("could not set permalinks: %w", err)
	}
	for _, option := range o.cfg.MediaOptions {
		if err := o.installer.UpdateOption(ctx, option.Name, option.Value); err != nil {
			return fmt.Errorf("could not set option %s: %w", option.Name, err)
		}
	}
	if err := o.installer.RegenerateMedia(ctx); err != nil {
		return fmt.Errorf("could not regenerate media: %w", err)
	}
	if err := o.installer.InstallPlugins(ctx, o.cfg.Plugins...); err != nil {
		return fmt.Errorf("could not install plugins: %w", err)
	}

	copied, err := CopyFileIfExists(
		filepath.Join(o.cfg.Docroot, objectCacheSource),
		filepath.Join(o.cfg.Docroot, objectCacheTarget))
	if err != nil {
		return err
	}
	if copied {
		o.log.Info("Object cache drop-in installed")
	}

	return nil
}

// secure warms up TLS through the reverse proxy. The TLS directives are
// already part of the rendered configuration.
func (o *Orchestrator) secure(ctx context.Context, result *Result) error {
	if o.warmUp == nil {
		return nil
	}

	if err := o.warmUp.WarmUp(ctx); err != nil {
		o.log.Warn("Warm-up request failed, continuing", "err", err)
		return nil
	}
	result.WarmedUp = true
	return nil
}

func (o *Orchestrator) finalize(_ context.Context, _ *Result) error {
	if err := ClearDirectory(o.cfg.CacheDir); err != nil {
		return err
	}
	if err := ChownTree(o.cfg.Docroot, o.cfg.Owner); err != nil {
		return err
	}
	return NormalizePermissions(o.cfg.Docroot)
}
