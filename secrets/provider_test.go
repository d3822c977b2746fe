package secrets

import (
	"context"
	"errors"
	"io"
	"log/slog"
	mathrand "math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/wp-provisioner/cryptoutils"
	"github.com/ruteri/wp-provisioner/installer"
	"github.com/ruteri/wp-provisioner/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seededReader(seed byte) io.Reader {
	var s [32]byte
	s[0] = seed
	return mathrand.NewChaCha8(s)
}

// saltServer serves empty bodies for the first emptyResponses requests and a
// valid salt document afterwards.
func saltServer(t *testing.T, emptyResponses int32, document string) (*httptest.Server, *atomic.Int32) {
	var requests atomic.Int32
	mux := chi.NewRouter()
	mux.Get("/secret-key/1.1/salt/", func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) <= emptyResponses {
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(document))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &requests
}

func testConfig(url string) Config {
	return Config{
		URL:        url + "/secret-key/1.1/salt/",
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		Rand:       seededReader(42),
	}
}

func remoteSet(t *testing.T) interfaces.SecretSet {
	set, err := cryptoutils.GenerateSecretSet(seededReader(1))
	require.NoError(t, err)
	return set
}

func TestFetchSecrets_SucceedsOnAttemptK(t *testing.T) {
	remote := remoteSet(t)

	for k := int32(1); k <= 3; k++ {
		server, requests := saltServer(t, k-1, cryptoutils.FormatSaltDocument(remote))
		provider := NewProvider(testConfig(server.URL), []interfaces.SaltFetcher{NewHTTPFetcher(time.Second)}, nil, testLogger())

		set := provider.FetchSecrets(context.Background())

		assert.Equal(t, k, requests.Load(), "attempts for k=%d", k)
		assert.Equal(t, interfaces.SourceRemote, set.Source)
		assert.Equal(t, remote.Secrets, set.Secrets)
	}
}

func TestFetchSecrets_FallbackAfterRetries(t *testing.T) {
	server, requests := saltServer(t, 100, "")
	cfg := testConfig(server.URL)
	provider := NewProvider(cfg, []interfaces.SaltFetcher{NewHTTPFetcher(time.Second)}, nil, testLogger())

	set := provider.FetchSecrets(context.Background())

	assert.Equal(t, int32(3), requests.Load())
	assert.Equal(t, interfaces.SourceLocal, set.Source)
	require.NoError(t, cryptoutils.ValidateSecretSet(set))

	expected, err := cryptoutils.GenerateSecretSet(seededReader(42))
	require.NoError(t, err)
	assert.Equal(t, expected.PHP(), set.PHP())
}

func TestFetchSecrets_RetryDelay(t *testing.T) {
	server, requests := saltServer(t, 100, "")
	cfg := testConfig(server.URL)
	cfg.RetryDelay = 30 * time.Millisecond
	provider := NewProvider(cfg, []interfaces.SaltFetcher{NewHTTPFetcher(time.Second)}, nil, testLogger())

	start := time.Now()
	provider.FetchSecrets(context.Background())
	elapsed := time.Since(start)

	assert.Equal(t, int32(3), requests.Load())
	// Two waits between three attempts, none after the last one.
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestFetchSecrets_UnreachableEndpoint(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	provider := NewProvider(testConfig(url), []interfaces.SaltFetcher{NewHTTPFetcher(time.Second)}, nil, testLogger())
	set := provider.FetchSecrets(context.Background())

	assert.Equal(t, interfaces.SourceLocal, set.Source)
	require.NoError(t, cryptoutils.ValidateSecretSet(set))
}

func TestFetchSecrets_MalformedResponse(t *testing.T) {
	server, requests := saltServer(t, 0, "<html>rate limited</html>")

	t.Run("validated", func(t *testing.T) {
		requests.Store(0)
		provider := NewProvider(testConfig(server.URL), []interfaces.SaltFetcher{NewHTTPFetcher(time.Second)}, nil, testLogger())
		set := provider.FetchSecrets(context.Background())

		assert.Equal(t, int32(3), requests.Load())
		assert.Equal(t, interfaces.SourceLocal, set.Source)
	})

	t.Run("trusted verbatim", func(t *testing.T) {
		requests.Store(0)
		cfg := testConfig(server.URL)
		cfg.TrustRemote = true
		provider := NewProvider(cfg, []interfaces.SaltFetcher{NewHTTPFetcher(time.Second)}, nil, testLogger())
		set := provider.FetchSecrets(context.Background())

		assert.Equal(t, int32(1), requests.Load())
		assert.Equal(t, interfaces.SourceRemote, set.Source)
		assert.Equal(t, "<html>rate limited</html>", set.PHP())
	})
}

type fakeFetcher struct {
	name      string
	available bool
	calls     int
	body      []byte
	err       error
}

func (f *fakeFetcher) Name() string    { return f.name }
func (f *fakeFetcher) Available() bool { return f.available }
func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.calls++
	return f.body, f.err
}

func TestFetchSecrets_TransportSelection(t *testing.T) {
	remote := remoteSet(t)

	t.Run("first available transport is used", func(t *testing.T) {
		curl := &fakeFetcher{name: "curl", available: false}
		wget := &fakeFetcher{name: "wget", available: true, body: []byte(remote.PHP())}
		provider := NewProvider(testConfig("http://unused"), []interfaces.SaltFetcher{curl, wget}, nil, testLogger())

		set := provider.FetchSecrets(context.Background())
		assert.Equal(t, 0, curl.calls)
		assert.Equal(t, 1, wget.calls)
		assert.Equal(t, interfaces.SourceRemote, set.Source)
	})

	t.Run("no transport available", func(t *testing.T) {
		curl := &fakeFetcher{name: "curl", available: false}
		wget := &fakeFetcher{name: "wget", available: false}
		provider := NewProvider(testConfig("http://unused"), []interfaces.SaltFetcher{curl, wget}, nil, testLogger())

		set := provider.FetchSecrets(context.Background())
		assert.Equal(t, 0, curl.calls+wget.calls)
		assert.Equal(t, interfaces.SourceLocal, set.Source)
	})

	t.Run("transport errors are retried", func(t *testing.T) {
		curl := &fakeFetcher{name: "curl", available: true, err: errors.New("exit status 6")}
		provider := NewProvider(testConfig("http://unused"), []interfaces.SaltFetcher{curl}, nil, testLogger())

		set := provider.FetchSecrets(context.Background())
		assert.Equal(t, 3, curl.calls)
		assert.Equal(t, interfaces.SourceLocal, set.Source)
	})

	t.Run("single attempt", func(t *testing.T) {
		curl := &fakeFetcher{name: "curl", available: true, err: errors.New("exit status 6")}
		cfg := testConfig("http://unused")
		cfg.MaxRetries = 1
		provider := NewProvider(cfg, []interfaces.SaltFetcher{curl}, nil, testLogger())

		provider.FetchSecrets(context.Background())
		assert.Equal(t, 1, curl.calls)
	})
}

func TestFetchSecrets_CancelledContext(t *testing.T) {
	curl := &fakeFetcher{name: "curl", available: true, err: errors.New("exit status 6")}
	cfg := testConfig("http://unused")
	cfg.RetryDelay = time.Hour
	provider := NewProvider(cfg, []interfaces.SaltFetcher{curl}, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	set := provider.FetchSecrets(ctx)
	assert.Equal(t, 1, curl.calls)
	assert.Equal(t, interfaces.SourceLocal, set.Source)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockStore) Store(ctx context.Context, key string, data []byte) error {
	args := m.Called(ctx, key, data)
	return args.Error(0)
}

func (m *mockStore) Available(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *mockStore) Name() string        { return "mock" }
func (m *mockStore) LocationURI() string { return "mock:" }

func TestFetchSecrets_Escrow(t *testing.T) {
	remote := remoteSet(t)
	key := StoreKeyFor("blog.example.com")

	t.Run("escrowed set is reused", func(t *testing.T) {
		store := new(mockStore)
		store.On("Available", mock.Anything).Return(true)
		store.On("Fetch", mock.Anything, key).Return([]byte(remote.PHP()), nil)
		store.On("Store", mock.Anything, key, mock.Anything).Return(nil)

		fetcher := &fakeFetcher{name: "http", available: true}
		cfg := testConfig("http://unused")
		cfg.StoreKey = key
		provider := NewProvider(cfg, []interfaces.SaltFetcher{fetcher}, store, testLogger())

		set := provider.FetchSecrets(context.Background())
		assert.Equal(t, interfaces.SourceStore, set.Source)
		assert.Equal(t, remote.Secrets, set.Secrets)
		assert.Equal(t, 0, fetcher.calls)
		store.AssertNotCalled(t, "Store", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("fresh set is escrowed", func(t *testing.T) {
		store := new(mockStore)
		store.On("Available", mock.Anything).Return(true)
		store.On("Fetch", mock.Anything, key).Return(nil, interfaces.ErrContentNotFound)
		store.On("Store", mock.Anything, key, []byte(remote.PHP()+"\n")).Return(nil)

		fetcher := &fakeFetcher{name: "http", available: true, body: []byte(cryptoutils.FormatSaltDocument(remote))}
		cfg := testConfig("http://unused")
		cfg.StoreKey = key
		provider := NewProvider(cfg, []interfaces.SaltFetcher{fetcher}, store, testLogger())

		set := provider.FetchSecrets(context.Background())
		assert.Equal(t, interfaces.SourceRemote, set.Source)
		store.AssertExpectations(t)
	})

	t.Run("unavailable store is neither read nor overwritten", func(t *testing.T) {
		store := new(mockStore)
		store.On("Available", mock.Anything).Return(false)

		fetcher := &fakeFetcher{name: "http", available: false}
		cfg := testConfig("http://unused")
		cfg.StoreKey = key
		provider := NewProvider(cfg, []interfaces.SaltFetcher{fetcher}, store, testLogger())

		set := provider.FetchSecrets(context.Background())
		assert.Equal(t, interfaces.SourceLocal, set.Source)
		store.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
		store.AssertNotCalled(t, "Store", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("read error keeps the existing escrow", func(t *testing.T) {
		store := new(mockStore)
		store.On("Available", mock.Anything).Return(true)
		store.On("Fetch", mock.Anything, key).Return(nil, errors.New("vault: 500 internal error"))

		fetcher := &fakeFetcher{name: "http", available: true, body: []byte(cryptoutils.FormatSaltDocument(remote))}
		cfg := testConfig("http://unused")
		cfg.StoreKey = key
		provider := NewProvider(cfg, []interfaces.SaltFetcher{fetcher}, store, testLogger())

		set := provider.FetchSecrets(context.Background())
		assert.Equal(t, interfaces.SourceRemote, set.Source)
		store.AssertNotCalled(t, "Store", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("malformed escrow is replaced", func(t *testing.T) {
		store := new(mockStore)
		store.On("Available", mock.Anything).Return(true)
		store.On("Fetch", mock.Anything, key).Return([]byte("define('AUTH_KEY', 'short');"), nil)
		store.On("Store", mock.Anything, key, []byte(remote.PHP()+"\n")).Return(nil)

		fetcher := &fakeFetcher{name: "http", available: true, body: []byte(cryptoutils.FormatSaltDocument(remote))}
		cfg := testConfig("http://unused")
		cfg.StoreKey = key
		provider := NewProvider(cfg, []interfaces.SaltFetcher{fetcher}, store, testLogger())

		set := provider.FetchSecrets(context.Background())
		assert.Equal(t, interfaces.SourceRemote, set.Source)
		store.AssertExpectations(t)
	})

	t.Run("failed escrow write is not fatal", func(t *testing.T) {
		store := new(mockStore)
		store.On("Available", mock.Anything).Return(true)
		store.On("Fetch", mock.Anything, key).Return(nil, interfaces.ErrContentNotFound)
		store.On("Store", mock.Anything, key, mock.Anything).Return(interfaces.ErrBackendUnavailable)

		fetcher := &fakeFetcher{name: "http", available: false}
		cfg := testConfig("http://unused")
		cfg.StoreKey = key
		provider := NewProvider(cfg, []interfaces.SaltFetcher{fetcher}, store, testLogger())

		set := provider.FetchSecrets(context.Background())
		assert.Equal(t, interfaces.SourceLocal, set.Source)
		store.AssertExpectations(t)
	})
}

type hangingFetcher struct {
	calls atomic.Int32
}

func (f *hangingFetcher) Name() string    { return "hanging" }
func (f *hangingFetcher) Available() bool { return true }
func (f *hangingFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.calls.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestFetchSecrets_AttemptTimeout(t *testing.T) {
	fetcher := &hangingFetcher{}
	cfg := testConfig("http://unused")
	cfg.MaxRetries = 2
	cfg.AttemptTimeout = 20 * time.Millisecond
	provider := NewProvider(cfg, []interfaces.SaltFetcher{fetcher}, nil, testLogger())

	start := time.Now()
	set := provider.FetchSecrets(context.Background())

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(2), fetcher.calls.Load())
	assert.Equal(t, interfaces.SourceLocal, set.Source)
}

func TestFetchSecrets_StalledCommandTransport(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	fetcher := &CommandFetcher{
		Tool:   "sleep",
		Args:   func(string) []string { return []string{"10"} },
		Runner: installer.NewExecRunner(testLogger()),
	}
	cfg := testConfig("http://unused")
	cfg.MaxRetries = 1
	cfg.AttemptTimeout = 100 * time.Millisecond
	provider := NewProvider(cfg, []interfaces.SaltFetcher{fetcher}, nil, testLogger())

	start := time.Now()
	set := provider.FetchSecrets(context.Background())

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, interfaces.SourceLocal, set.Source)
	require.NoError(t, cryptoutils.ValidateSecretSet(set))
}

func TestFetchSecrets_WhitespaceBodyIsEmpty(t *testing.T) {
	server, requests := saltServer(t, 0, " \n\t\n")
	cfg := testConfig(server.URL)
	cfg.TrustRemote = true
	provider := NewProvider(cfg, []interfaces.SaltFetcher{NewHTTPFetcher(time.Second)}, nil, testLogger())

	set := provider.FetchSecrets(context.Background())

	assert.Equal(t, int32(3), requests.Load())
	assert.Equal(t, interfaces.SourceLocal, set.Source)
}
