package httpserver

import (
	"errors"
	"io"
	"log/slog"
	mathrand "math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/wp-provisioner/cryptoutils"
	"github.com/ruteri/wp-provisioner/interfaces"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// lockedReader makes a deterministic stream safe for concurrent handlers.
type lockedReader struct {
	mu sync.Mutex
	r  io.Reader
}

func (l *lockedReader) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Read(p)
}

func seeded(seed byte) io.Reader {
	var s [32]byte
	s[0] = seed
	return &lockedReader{r: mathrand.NewChaCha8(s)}
}

func newTestServer(t *testing.T, handler *SaltHandler) (*Server, *httptest.Server) {
	srv, err := New(&HTTPServerConfig{
		ListenAddr:               ":0",
		MetricsNamespace:         "saltserver",
		Log:                      testLogger,
		GracefulShutdownDuration: time.Second,
	}, handler)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.srv.Handler)
	t.Cleanup(ts.Close)
	return srv, ts
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_Salt(t *testing.T) {
	srv, ts := newTestServer(t, NewSaltHandler(seeded(3), testLogger))

	status, body := get(t, ts.URL+SaltPath)
	require.Equal(t, http.StatusOK, status)

	set, err := cryptoutils.ParseSecretSet(body)
	require.NoError(t, err)
	require.NoError(t, cryptoutils.ValidateSecretSet(set))

	expected, err := cryptoutils.GenerateSecretSet(seeded(3))
	require.NoError(t, err)
	assert.Equal(t, cryptoutils.FormatSaltDocument(expected), body)

	_, second := get(t, ts.URL+SaltPath)
	assert.NotEqual(t, body, second)

	rec := httptest.NewRecorder()
	srv.metricsSrv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "saltserver_salt_sets_served_total 2")
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func TestServer_SaltGenerationFailure(t *testing.T) {
	srv, ts := newTestServer(t, NewSaltHandler(failingReader{}, testLogger))

	status, _ := get(t, ts.URL+SaltPath)
	assert.Equal(t, http.StatusInternalServerError, status)

	rec := httptest.NewRecorder()
	srv.metricsSrv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "saltserver_salt_generation_errors_total 1")
}

func TestServer_DefaultRandom(t *testing.T) {
	_, ts := newTestServer(t, NewSaltHandler(nil, testLogger))

	status, body := get(t, ts.URL+SaltPath)
	require.Equal(t, http.StatusOK, status)

	set, err := cryptoutils.ParseSecretSet(body)
	require.NoError(t, err)
	assert.Equal(t, len(interfaces.SecretNames), set.Len())
}

func TestServer_Readiness(t *testing.T) {
	_, ts := newTestServer(t, NewSaltHandler(nil, testLogger))

	status, body := get(t, ts.URL+"/livez")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"alive"}`, body)

	status, _ = get(t, ts.URL+"/readyz")
	assert.Equal(t, http.StatusOK, status)

	_, body = get(t, ts.URL+"/drain")
	assert.JSONEq(t, `{"status":"draining"}`, body)
	_, body = get(t, ts.URL+"/drain")
	assert.JSONEq(t, `{"status":"already draining"}`, body)

	status, body = get(t, ts.URL+"/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.JSONEq(t, `{"status":"not ready"}`, body)

	// Draining does not stop salt generation.
	status, _ = get(t, ts.URL+SaltPath)
	assert.Equal(t, http.StatusOK, status)

	_, body = get(t, ts.URL+"/undrain")
	assert.JSONEq(t, `{"status":"ready"}`, body)
	_, body = get(t, ts.URL+"/undrain")
	assert.JSONEq(t, `{"status":"already ready"}`, body)

	status, _ = get(t, ts.URL+"/readyz")
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_ShutdownDrains(t *testing.T) {
	srv, err := New(&HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		MetricsNamespace:         "saltserver",
		Log:                      testLogger,
		DrainDuration:            20 * time.Millisecond,
		GracefulShutdownDuration: time.Second,
	}, NewSaltHandler(nil, testLogger))
	require.NoError(t, err)

	srv.RunInBackground()

	start := time.Now()
	srv.Shutdown()
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.False(t, srv.isReady.Load())

	// Already drained: no second wait.
	start = time.Now()
	srv.Shutdown()
	assert.Less(t, time.Since(start), 20*time.Millisecond)
}
