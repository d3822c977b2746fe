package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"

	"github.com/ruteri/wp-provisioner/cmd/flags"
	"github.com/ruteri/wp-provisioner/installer"
	"github.com/ruteri/wp-provisioner/interfaces"
	"github.com/ruteri/wp-provisioner/provision"
	"github.com/ruteri/wp-provisioner/secrets"
	"github.com/ruteri/wp-provisioner/storage"
	"github.com/ruteri/wp-provisioner/wpconfig"
)

var configFlag = &cli.StringFlag{
	Name:    "config",
	Usage:   "optional YAML file providing values for any flag below",
	EnvVars: []string{"PROVISION_CONFIG"},
}

// Site settings, named after the variables of the official WordPress image.
var (
	dbNameFlag = altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "db-name",
		Usage:   "database name",
		EnvVars: []string{"WORDPRESS_DB_NAME"},
	})
	dbUserFlag = altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "db-user",
		Usage:   "database user",
		EnvVars: []string{"WORDPRESS_DB_USER"},
	})
	dbPasswordFlag = altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "db-password",
		Usage:   "database password",
		EnvVars: []string{"WORDPRESS_DB_PASSWORD"},
	})
	dbHostFlag = altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "db-host",
		Usage:   "database host",
		EnvVars: []string{"WORDPRESS_DB_HOST"},
	})
	tablePrefixFlag = altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "table-prefix",
		Value:   "wp_",
		Usage:   "database table prefix",
		EnvVars: []string{"WORDPRESS_TABLE_PREFIX"},
	})
	domainFlag = altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "domain",
		Usage:   "public hostname of the site",
		EnvVars: []string{"WORDPRESS_DOMAIN"},
	})
	titleFlag = altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "title",
		Usage:   "site title",
		EnvVars: []string{"WORDPRESS_TITLE"},
	})
	adminUserFlag = altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "admin-user",
		Usage:   "administrator login",
		EnvVars: []string{"WORDPRESS_ADMIN_USER"},
	})
	adminPasswordFlag = altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "admin-password",
		Usage:   "administrator password",
		EnvVars: []string{"WORDPRESS_ADMIN_PASSWORD"},
	})
	adminEmailFlag = altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "admin-email",
		Usage:   "administrator email",
		EnvVars: []string{"WORDPRESS_ADMIN_EMAIL"},
	})
	versionFlag = altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "wp-version",
		Value:   "latest",
		Usage:   "WordPress core version to download",
		EnvVars: []string{"WORDPRESS_VERSION"},
	})
	redisHostFlag = altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "redis-host",
		Value:   "redis",
		Usage:   "object cache host",
		EnvVars: []string{"REDIS_HOST"},
	})
	redisPortFlag = altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "redis-port",
		Value:   "6379",
		Usage:   "object cache port",
		EnvVars: []string{"REDIS_PORT"},
	})
	tlsFlag = altsrc.NewBoolFlag(&cli.BoolFlag{
		Name:    "tls",
		Value:   true,
		Usage:   "serve the site over https behind a TLS terminating proxy",
		EnvVars: []string{"WORDPRESS_TLS"},
	})
)

// Tool settings.
var (
	docrootFlag = altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "docroot",
		Value:   "/var/www/html",
		Usage:   "document root to provision",
		EnvVars: []string{"PROVISION_DOCROOT"},
	})
	wpcliURLFlag = altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "wpcli-url",
		Value:   installer.DefaultWPCLIURL,
		Usage:   "download location of the wp-cli phar",
		EnvVars: []string{"PROVISION_WPCLI_URL"},
	})
	wpcliPathFlag = altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "wpcli-path",
		Value:   installer.DefaultWPCLIPath,
		Usage:   "install location of wp-cli",
		EnvVars: []string{"PROVISION_WPCLI_PATH"},
	})
	saltURLFlag = altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "salt-url",
		Value:   secrets.DefaultSaltURL,
		Usage:   "remote endpoint returning keys and salts",
		EnvVars: []string{"PROVISION_SALT_URL"},
	})
	saltTransportsFlag = altsrc.NewStringSliceFlag(&cli.StringSliceFlag{
		Name:    "salt-transports",
		Value:   cli.NewStringSlice("http", "curl", "wget"),
		Usage:   "transports used to fetch salts, in order of preference",
		EnvVars: []string{"PROVISION_SALT_TRANSPORTS"},
	})
	saltRetriesFlag = altsrc.NewIntFlag(&cli.IntFlag{
		Name:    "salt-retries",
		Value:   secrets.DefaultMaxRetries,
		Usage:   "total number of remote salt attempts",
		EnvVars: []string{"PROVISION_SALT_RETRIES"},
	})
	saltRetryDelayFlag = altsrc.NewDurationFlag(&cli.DurationFlag{
		Name:    "salt-retry-delay",
		Value:   secrets.DefaultRetryDelay,
		Usage:   "wait between remote salt attempts",
		EnvVars: []string{"PROVISION_SALT_RETRY_DELAY"},
	})
	saltTimeoutFlag = altsrc.NewDurationFlag(&cli.DurationFlag{
		Name:    "salt-timeout",
		Value:   secrets.DefaultAttemptTimeout,
		Usage:   "timeout of a single salt request, whatever the transport",
		EnvVars: []string{"PROVISION_SALT_TIMEOUT"},
	})
	trustRemoteSaltsFlag = altsrc.NewBoolFlag(&cli.BoolFlag{
		Name:    "trust-remote-salts",
		Usage:   "accept any non-empty remote salt response without validation",
		EnvVars: []string{"PROVISION_TRUST_REMOTE_SALTS"},
	})
	secretsStoreFlag = altsrc.NewStringSliceFlag(&cli.StringSliceFlag{
		Name:    "secrets-store",
		Usage:   "escrow for the generated secrets (file://, s3://, vault://); repeat for redundancy",
		EnvVars: []string{"PROVISION_SECRETS_STORE"},
	})
	serviceUserFlag = altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "service-user",
		Value:   "www-data",
		Usage:   "user owning the document root",
		EnvVars: []string{"PROVISION_SERVICE_USER"},
	})
	serviceGroupFlag = altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "service-group",
		Value:   "www-data",
		Usage:   "group owning the document root",
		EnvVars: []string{"PROVISION_SERVICE_GROUP"},
	})
	cacheDirFlag = altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "cache-dir",
		Usage:   "cache directory emptied at the end of the run (default <docroot>/wp-content/cache)",
		EnvVars: []string{"PROVISION_CACHE_DIR"},
	})
	pluginsFlag = altsrc.NewStringSliceFlag(&cli.StringSliceFlag{
		Name:    "plugins",
		Value:   cli.NewStringSlice(provision.DefaultPlugins...),
		Usage:   "plugins installed and activated during configuration",
		EnvVars: []string{"PROVISION_PLUGINS"},
	})
	warmupFlag = altsrc.NewBoolFlag(&cli.BoolFlag{
		Name:    "warmup",
		Value:   true,
		Usage:   "issue an https request through the proxy once the site is configured",
		EnvVars: []string{"PROVISION_WARMUP"},
	})
	proxyHostFlag = altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "proxy-host",
		Usage:   "reverse proxy host for the warm-up request (default the site domain)",
		EnvVars: []string{"PROVISION_PROXY_HOST"},
	})
	proxyPortFlag = altsrc.NewIntFlag(&cli.IntFlag{
		Name:    "proxy-port",
		Value:   443,
		Usage:   "reverse proxy https port",
		EnvVars: []string{"PROVISION_PROXY_PORT"},
	})
	dnsResolverFlag = altsrc.NewStringFlag(&cli.StringFlag{
		Name:    "dns-resolver",
		Usage:   "DNS server (host:port) used to resolve the proxy host",
		EnvVars: []string{"PROVISION_DNS_RESOLVER"},
	})
	warmupInsecureFlag = altsrc.NewBoolFlag(&cli.BoolFlag{
		Name:    "warmup-insecure",
		Usage:   "skip certificate verification during the warm-up request",
		EnvVars: []string{"PROVISION_WARMUP_INSECURE"},
	})
)

func main() {
	sourcedFlags := []cli.Flag{
		dbNameFlag, dbUserFlag, dbPasswordFlag, dbHostFlag, tablePrefixFlag,
		domainFlag, titleFlag, adminUserFlag, adminPasswordFlag, adminEmailFlag,
		versionFlag, redisHostFlag, redisPortFlag, tlsFlag,
		docrootFlag, wpcliURLFlag, wpcliPathFlag,
		saltURLFlag, saltTransportsFlag, saltRetriesFlag, saltRetryDelayFlag, saltTimeoutFlag,
		trustRemoteSaltsFlag, secretsStoreFlag,
		serviceUserFlag, serviceGroupFlag, cacheDirFlag, pluginsFlag,
		warmupFlag, proxyHostFlag, proxyPortFlag, dnsResolverFlag, warmupInsecureFlag,
	}

	appFlags := append([]cli.Flag{configFlag, flags.LogServiceFlagFn("wp-provisioner")}, flags.LogFlags...)
	appFlags = append(appFlags, sourcedFlags...)

	app := &cli.App{
		Name:   "provision",
		Usage:  "Provision a WordPress document root on first container start",
		Flags:  appFlags,
		Before: altsrc.InitInputSourceWithContext(sourcedFlags, altsrc.NewYamlSourceFromFlagFunc(configFlag.Name)),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			orchestrator, err := buildOrchestrator(cCtx, logger)
			if err != nil {
				logger.Error("Invalid configuration", "err", err)
				return err
			}

			result, err := orchestrator.Run(ctx)
			if err != nil {
				logger.Error("Provisioning failed", "err", err)
				return err
			}

			if result.AlreadyProvisioned {
				return nil
			}
			logger.Info("Provisioning complete",
				slog.String("state", result.State.String()),
				slog.String("config", result.ConfigPath),
				slog.String("secrets", string(result.SecretSource)),
				slog.Bool("warmed_up", result.WarmedUp),
				slog.Duration("duration", result.Duration))
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func buildOrchestrator(cCtx *cli.Context, logger *slog.Logger) (*provision.Orchestrator, error) {
	docroot := cCtx.String(docrootFlag.Name)
	domain := cCtx.String(domainFlag.Name)

	owner, err := provision.ResolveOwner(cCtx.String(serviceUserFlag.Name), cCtx.String(serviceGroupFlag.Name))
	if err != nil {
		return nil, err
	}

	runner := installer.NewExecRunner(logger)
	wpcli := installer.NewWPCLI(installer.WPCLIConfig{
		Path:        cCtx.String(wpcliPathFlag.Name),
		DownloadURL: cCtx.String(wpcliURLFlag.Name),
		Docroot:     docroot,
	}, runner, logger)

	fetchers, err := secrets.NewFetchers(cCtx.StringSlice(saltTransportsFlag.Name), runner, cCtx.Duration(saltTimeoutFlag.Name))
	if err != nil {
		return nil, err
	}

	var store interfaces.StorageBackend
	if uris := cCtx.StringSlice(secretsStoreFlag.Name); len(uris) > 0 {
		store, err = storage.NewStorageBackendFactory(logger).CreateMultiBackend(uris)
		if err != nil {
			return nil, err
		}
	}

	provider := secrets.NewProvider(secrets.Config{
		URL:            cCtx.String(saltURLFlag.Name),
		MaxRetries:     cCtx.Int(saltRetriesFlag.Name),
		RetryDelay:     cCtx.Duration(saltRetryDelayFlag.Name),
		AttemptTimeout: cCtx.Duration(saltTimeoutFlag.Name),
		TrustRemote:    cCtx.Bool(trustRemoteSaltsFlag.Name),
		StoreKey:       secrets.StoreKeyFor(domain),
	}, fetchers, store, logger)

	tls := cCtx.Bool(tlsFlag.Name)

	var warmUp provision.WarmUper
	if tls && cCtx.Bool(warmupFlag.Name) {
		warmUp = provision.NewHTTPSWarmUp(provision.WarmUpConfig{
			Hostname:  domain,
			ProxyHost: cCtx.String(proxyHostFlag.Name),
			ProxyPort: cCtx.Int(proxyPortFlag.Name),
			Resolver:  cCtx.String(dnsResolverFlag.Name),
			Insecure:  cCtx.Bool(warmupInsecureFlag.Name),
		}, logger)
	}

	return provision.NewOrchestrator(provision.Config{
		Docroot:     docroot,
		CoreVersion: cCtx.String(versionFlag.Name),
		Site: interfaces.SiteInstall{
			Title:         cCtx.String(titleFlag.Name),
			AdminUser:     cCtx.String(adminUserFlag.Name),
			AdminPassword: cCtx.String(adminPasswordFlag.Name),
			AdminEmail:    cCtx.String(adminEmailFlag.Name),
		},
		Settings: wpconfig.Settings{
			DBName:      cCtx.String(dbNameFlag.Name),
			DBUser:      cCtx.String(dbUserFlag.Name),
			DBPassword:  cCtx.String(dbPasswordFlag.Name),
			DBHost:      cCtx.String(dbHostFlag.Name),
			TablePrefix: cCtx.String(tablePrefixFlag.Name),
			Hostname:    domain,
			CacheHost:   cCtx.String(redisHostFlag.Name),
			CachePort:   cCtx.String(redisPortFlag.Name),
			TLS:         tls,
		},
		Owner:    owner,
		CacheDir: cCtx.String(cacheDirFlag.Name),
		Plugins:  cCtx.StringSlice(pluginsFlag.Name),
	}, wpcli, provider, warmUp, logger)
}
