package provision

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/miekg/dns"
)

// WarmUper performs the post-install warm-up request against the site.
type WarmUper interface {
	WarmUp(ctx context.Context) error
}

// WarmUpConfig configures the HTTPS warm-up request.
type WarmUpConfig struct {
	// Hostname is the public site hostname, used for SNI and the Host header.
	Hostname string

	// ProxyHost is the reverse proxy the request is sent through.
	// Defaults to Hostname.
	ProxyHost string

	// ProxyPort defaults to 443.
	ProxyPort int

	// Resolver is a DNS server (host:port) used to resolve ProxyHost.
	// When empty the system resolver is used.
	Resolver string

	// Insecure skips certificate verification, for proxies that are still
	// obtaining their certificate.
	Insecure bool

	// Timeout bounds the whole request. Defaults to 30s.
	Timeout time.Duration
}

// HTTPSWarmUp establishes the first TLS handshake with the site through the
// reverse proxy by issuing a single GET request. The response is discarded.
type HTTPSWarmUp struct {
	cfg WarmUpConfig
	dns *dns.Client
	log *slog.Logger
}

func NewHTTPSWarmUp(cfg WarmUpConfig, log *slog.Logger) *HTTPSWarmUp {
	if cfg.ProxyHost == "" {
		cfg.ProxyHost = cfg.Hostname
	}
	if cfg.ProxyPort == 0 {
		cfg.ProxyPort = 443
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &HTTPSWarmUp{
		cfg: cfg,
		dns: &dns.Client{Timeout: 5 * time.Second},
		log: log,
	}
}

func (w *HTTPSWarmUp) WarmUp(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	proxyAddr, err := w.proxyAddress(ctx)
	if err != nil {
		return err
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	client := &http.Client{
		Transport: &http.Transport{
			// Every connection goes to the proxy, whatever the URL host.
			DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, proxyAddr)
			},
			TLSClientConfig: &tls.Config{
				ServerName:         w.cfg.Hostname,
				InsecureSkipVerify: w.cfg.Insecure, //nolint:gosec
			},
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	defer client.CloseIdleConnections()

	url := "https://" + w.cfg.Hostname + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("could not create warm-up request: %w", err)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("warm-up request to %s via %s failed: %w", url, proxyAddr, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	w.log.Info("Warm-up request completed",
		slog.String("url", url),
		slog.String("proxy", proxyAddr),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	return nil
}

// proxyAddress returns the host:port to dial. With a custom resolver the
// proxy hostname is resolved to its first A record.
func (w *HTTPSWarmUp) proxyAddress(ctx context.Context) (string, error) {
	port := strconv.Itoa(w.cfg.ProxyPort)
	if w.cfg.Resolver == "" || net.ParseIP(w.cfg.ProxyHost) != nil {
		return net.JoinHostPort(w.cfg.ProxyHost, port), nil
	}

	ip, err := w.resolveA(ctx, w.cfg.ProxyHost)
	if err != nil {
		return "", fmt.Errorf("could not resolve %s via %s: %w", w.cfg.ProxyHost, w.cfg.Resolver, err)
	}
	return net.JoinHostPort(ip, port), nil
}

func (w *HTTPSWarmUp) resolveA(ctx context.Context, host string) (string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	m.RecursionDesired = true

	in, _, err := w.dns.ExchangeContext(ctx, m, w.cfg.Resolver)
	if err != nil {
		return "", err
	}
	if in.Rcode != dns.RcodeSuccess {
		return "", fmt.Errorf("dns query failed: %s", dns.RcodeToString[in.Rcode])
	}

	for _, answer := range in.Answer {
		if a, ok := answer.(*dns.A); ok {
			return a.A.String(), nil
		}
	}
	return "", errors.New("no A records")
}
