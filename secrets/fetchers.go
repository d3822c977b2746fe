package secrets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strconv"
	"time"

	"github.com/ruteri/wp-provisioner/interfaces"
)

// maxSaltDocumentSize bounds the response body read from the salt endpoint.
const maxSaltDocumentSize = 64 * 1024

// HTTPFetcher fetches salt documents with the Go HTTP client.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher creates a fetcher whose requests time out after timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Name() string {
	return "http"
}

func (f *HTTPFetcher) Available() bool {
	return true
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not request salt endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("salt endpoint returned non-200 response: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSaltDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("could not read salt response: %w", err)
	}
	return body, nil
}

// CommandFetcher fetches salt documents by running an HTTP-capable tool such as
// curl or wget, reading the document from its standard output.
type CommandFetcher struct {
	Tool   string
	Args   func(url string) []string
	Runner interfaces.CommandRunner

	lookPath func(string) (string, error)
}

// NewCurlFetcher creates a fetcher using curl. A positive timeout is passed
// as --max-time.
func NewCurlFetcher(runner interfaces.CommandRunner, timeout time.Duration) *CommandFetcher {
	return &CommandFetcher{
		Tool: "curl",
		Args: func(url string) []string {
			args := []string{"-fsSL"}
			if timeout > 0 {
				args = append(args, "--max-time", seconds(timeout))
			}
			return append(args, url)
		},
		Runner: runner,
	}
}

// NewWgetFetcher creates a fetcher using wget. A positive timeout is passed
// as -T, with a single try so that retries stay with the provider.
func NewWgetFetcher(runner interfaces.CommandRunner, timeout time.Duration) *CommandFetcher {
	return &CommandFetcher{
		Tool: "wget",
		Args: func(url string) []string {
			args := []string{"-qO-"}
			if timeout > 0 {
				args = append(args, "-T", seconds(timeout), "-t", "1")
			}
			return append(args, url)
		},
		Runner: runner,
	}
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func (f *CommandFetcher) Name() string {
	return f.Tool
}

// Available reports whether the tool is found on $PATH.
func (f *CommandFetcher) Available() bool {
	lookPath := f.lookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	_, err := lookPath(f.Tool)
	return err == nil
}

func (f *CommandFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f.Runner.Output(ctx, f.Tool, f.Args(url)...)
}

// NewFetchers builds fetchers for the named transports ("http", "curl", "wget"),
// preserving their order. timeout bounds a single request of any of them.
func NewFetchers(names []string, runner interfaces.CommandRunner, timeout time.Duration) ([]interfaces.SaltFetcher, error) {
	fetchers := make([]interfaces.SaltFetcher, 0, len(names))
	for _, name := range names {
		switch name {
		case "http":
			fetchers = append(fetchers, NewHTTPFetcher(timeout))
		case "curl":
			fetchers = append(fetchers, NewCurlFetcher(runner, timeout))
		case "wget":
			fetchers = append(fetchers, NewWgetFetcher(runner, timeout))
		default:
			return nil, fmt.Errorf("unknown salt transport: %s", name)
		}
	}
	return fetchers, nil
}
