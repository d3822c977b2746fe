package secrets

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ruteri/wp-provisioner/cryptoutils"
	"github.com/ruteri/wp-provisioner/interfaces"
)

const (
	// DefaultSaltURL is the WordPress secret-key API.
	DefaultSaltURL = "https://api.wordpress.org/secret-key/1.1/salt/"

	DefaultMaxRetries     = 3
	DefaultRetryDelay     = 5 * time.Second
	DefaultAttemptTimeout = 30 * time.Second
)

// Config controls how a Provider acquires secrets.
type Config struct {
	// URL of the remote salt endpoint.
	URL string

	// MaxRetries is the total number of remote attempts.
	MaxRetries int

	// RetryDelay is the wait between two failed attempts.
	RetryDelay time.Duration

	// AttemptTimeout bounds a single remote attempt, whatever the transport.
	AttemptTimeout time.Duration

	// TrustRemote accepts any non-empty remote body verbatim instead of
	// requiring a well-formed salt document.
	TrustRemote bool

	// Rand is the random source for local generation. Defaults to crypto/rand.
	Rand io.Reader

	// StoreKey is the escrow key of this site's secrets.
	StoreKey string
}

// DefaultConfig returns the default acquisition policy.
func DefaultConfig() Config {
	return Config{
		URL:            DefaultSaltURL,
		MaxRetries:     DefaultMaxRetries,
		RetryDelay:     DefaultRetryDelay,
		AttemptTimeout: DefaultAttemptTimeout,
	}
}

// StoreKeyFor returns the escrow key for a site hostname.
func StoreKeyFor(hostname string) string {
	return "salts/" + hostname
}

// Provider implements interfaces.SecretProvider with remote acquisition,
// bounded retries and local fallback.
type Provider struct {
	cfg      Config
	fetchers []interfaces.SaltFetcher
	store    interfaces.StorageBackend
	log      *slog.Logger
}

// NewProvider creates a provider trying the fetchers in order of preference.
// store may be nil to disable escrow.
func NewProvider(cfg Config, fetchers []interfaces.SaltFetcher, store interfaces.StorageBackend, log *slog.Logger) *Provider {
	if cfg.URL == "" {
		cfg.URL = DefaultSaltURL
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	if store != nil && cfg.StoreKey == "" {
		cfg.StoreKey = "salts/default"
	}

	return &Provider{
		cfg:      cfg,
		fetchers: fetchers,
		store:    store,
		log:      log,
	}
}

// FetchSecrets returns the site's SecretSet. It never fails: remote failures
// end in local generation.
func (p *Provider) FetchSecrets(ctx context.Context) interfaces.SecretSet {
	set, lookup := p.fromStore(ctx)
	if lookup == escrowHit {
		return set
	}

	set, err := p.fetchRemote(ctx)
	if err != nil {
		p.log.Warn("Could not fetch salts from remote endpoint, generating locally", "err", err)
		set = p.generateLocal()
	}

	// An unreachable store may still hold the site's salts; overwriting them
	// would split replicas.
	if lookup == escrowMiss {
		p.toStore(ctx, set)
	}
	return set
}

// fetchRemote performs the bounded retry loop against the first available transport.
func (p *Provider) fetchRemote(ctx context.Context) (interfaces.SecretSet, error) {
	fetcher := p.selectFetcher()
	if fetcher == nil {
		return interfaces.SecretSet{}, interfaces.ErrTransportUnavailable
	}

	log := p.log.With(slog.String("transport", fetcher.Name()), slog.String("url", p.cfg.URL))

	var result interfaces.SecretSet
	attempt := 0
	operation := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
		defer cancel()

		body, err := fetcher.Fetch(attemptCtx, p.cfg.URL)
		if err != nil {
			return fmt.Errorf("%w: %v", interfaces.ErrTransportFailure, err)
		}
		// Whitespace-only bodies count as empty, as with shell command substitution.
		if len(bytes.TrimSpace(body)) == 0 {
			return interfaces.ErrEmptyResponse
		}

		if p.cfg.TrustRemote {
			result = interfaces.SecretSet{Raw: string(body), Source: interfaces.SourceRemote}
			return nil
		}

		set, err := cryptoutils.ParseSecretSet(string(body))
		if err != nil {
			return err
		}
		set.Source = interfaces.SourceRemote
		result = set
		return nil
	}

	notify := func(err error, next time.Duration) {
		log.Warn("Salt request failed", slog.Int("attempt", attempt), slog.Int("maxAttempts", p.cfg.MaxRetries), slog.Duration("retryIn", next), "err", err)
	}

	if err := backoff.RetryNotify(operation, p.retryPolicy(ctx), notify); err != nil {
		return interfaces.SecretSet{}, fmt.Errorf("giving up after %d attempts: %w", attempt, err)
	}

	log.Info("Fetched salts from remote endpoint", slog.Int("attempts", attempt))
	return result, nil
}

// retryPolicy allows MaxRetries attempts in total with a constant delay between them.
func (p *Provider) retryPolicy(ctx context.Context) backoff.BackOffContext {
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if p.cfg.MaxRetries > 1 {
		policy = backoff.WithMaxRetries(backoff.NewConstantBackOff(p.cfg.RetryDelay), uint64(p.cfg.MaxRetries-1))
	}
	return backoff.WithContext(policy, ctx)
}

func (p *Provider) selectFetcher() interfaces.SaltFetcher {
	for _, fetcher := range p.fetchers {
		if fetcher.Available() {
			return fetcher
		}
		p.log.Debug("Salt transport not available", slog.String("transport", fetcher.Name()))
	}
	return nil
}

func (p *Provider) generateLocal() interfaces.SecretSet {
	set, err := cryptoutils.GenerateSecretSet(p.cfg.Rand)
	if err != nil {
		p.log.Error("Configured random source failed, using crypto/rand", "err", err)
		set = cryptoutils.MustGenerateSecretSet()
	}
	p.log.Info("Generated salts locally")
	return set
}

// escrowLookup is the outcome of reading the site's salts from the store.
type escrowLookup int

const (
	// escrowUnknown: no store, or the store could not answer.
	escrowUnknown escrowLookup = iota
	// escrowMiss: the store answered and holds no usable set.
	escrowMiss
	escrowHit
)

func (p *Provider) fromStore(ctx context.Context) (interfaces.SecretSet, escrowLookup) {
	if p.store == nil {
		return interfaces.SecretSet{}, escrowUnknown
	}

	log := p.log.With(slog.String("backend", p.store.Name()), slog.String("key", p.cfg.StoreKey))
	if !p.store.Available(ctx) {
		log.Warn("Secret store unavailable, acquiring fresh salts without escrow")
		return interfaces.SecretSet{}, escrowUnknown
	}

	data, err := p.store.Fetch(ctx, p.cfg.StoreKey)
	if errors.Is(err, interfaces.ErrContentNotFound) {
		log.Debug("No escrowed salts for site")
		return interfaces.SecretSet{}, escrowMiss
	} else if err != nil {
		log.Warn("Could not read escrowed salts, acquiring fresh salts without escrow", "err", err)
		return interfaces.SecretSet{}, escrowUnknown
	}

	set, err := cryptoutils.ParseSecretSet(string(data))
	if err != nil {
		log.Warn("Replacing malformed escrowed salts", "err", err)
		return interfaces.SecretSet{}, escrowMiss
	}

	set.Source = interfaces.SourceStore
	log.Info("Using escrowed salts")
	return set, escrowHit
}

func (p *Provider) toStore(ctx context.Context, set interfaces.SecretSet) {
	if p.store == nil {
		return
	}

	if err := p.store.Store(ctx, p.cfg.StoreKey, []byte(set.PHP()+"\n")); err != nil {
		p.log.Warn("Could not escrow salts", slog.String("backend", p.store.Name()), "err", err)
	}
}
