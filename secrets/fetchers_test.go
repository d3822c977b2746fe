package secrets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	name   string
	args   []string
	output []byte
	err    error
}

func (r *recordingRunner) Run(ctx context.Context, name string, args ...string) error {
	_, err := r.Output(ctx, name, args...)
	return err
}

func (r *recordingRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.name = name
	r.args = args
	return r.output, r.err
}

func TestHTTPFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte("define('AUTH_KEY', 'x');"))
		default:
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(time.Second)
	assert.True(t, fetcher.Available())

	body, err := fetcher.Fetch(context.Background(), server.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, "define('AUTH_KEY', 'x');", string(body))

	_, err = fetcher.Fetch(context.Background(), server.URL+"/down")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestCommandFetcher(t *testing.T) {
	runner := &recordingRunner{output: []byte("body")}

	curl := NewCurlFetcher(runner, 0)
	body, err := curl.Fetch(context.Background(), "https://example.test/salt")
	require.NoError(t, err)
	assert.Equal(t, "body", string(body))
	assert.Equal(t, "curl", runner.name)
	assert.Equal(t, []string{"-fsSL", "https://example.test/salt"}, runner.args)

	wget := NewWgetFetcher(runner, 0)
	_, err = wget.Fetch(context.Background(), "https://example.test/salt")
	require.NoError(t, err)
	assert.Equal(t, "wget", runner.name)
	assert.Equal(t, []string{"-qO-", "https://example.test/salt"}, runner.args)
}

func TestCommandFetcher_Timeout(t *testing.T) {
	runner := &recordingRunner{}

	_, err := NewCurlFetcher(runner, 1500*time.Millisecond).Fetch(context.Background(), "https://example.test/salt")
	require.NoError(t, err)
	assert.Equal(t, []string{"-fsSL", "--max-time", "1.5", "https://example.test/salt"}, runner.args)

	_, err = NewWgetFetcher(runner, 30*time.Second).Fetch(context.Background(), "https://example.test/salt")
	require.NoError(t, err)
	assert.Equal(t, []string{"-qO-", "-T", "30", "-t", "1", "https://example.test/salt"}, runner.args)
}

func TestCommandFetcher_Available(t *testing.T) {
	fetcher := NewCurlFetcher(&recordingRunner{}, 0)

	fetcher.lookPath = func(string) (string, error) { return "/usr/bin/curl", nil }
	assert.True(t, fetcher.Available())

	fetcher.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	assert.False(t, fetcher.Available())
}

func TestNewFetchers(t *testing.T) {
	fetchers, err := NewFetchers([]string{"wget", "http", "curl"}, &recordingRunner{}, time.Second)
	require.NoError(t, err)
	require.Len(t, fetchers, 3)
	assert.Equal(t, "wget", fetchers[0].Name())
	assert.Equal(t, "http", fetchers[1].Name())
	assert.Equal(t, "curl", fetchers[2].Name())

	runner := &recordingRunner{}
	fetchers, err = NewFetchers([]string{"curl"}, runner, 2*time.Second)
	require.NoError(t, err)
	_, err = fetchers[0].Fetch(context.Background(), "https://example.test/salt")
	require.NoError(t, err)
	assert.Contains(t, runner.args, "--max-time")

	_, err = NewFetchers([]string{"ftp"}, &recordingRunner{}, time.Second)
	require.Error(t, err)
}
