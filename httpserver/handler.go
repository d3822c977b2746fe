package httpserver

import (
	"crypto/rand"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ruteri/wp-provisioner/cryptoutils"
	"github.com/ruteri/wp-provisioner/metrics"
)

// SaltPath is the WordPress secret-key API route.
const SaltPath = "/secret-key/1.1/salt/"

// SaltHandler serves freshly generated salt documents in the format of the
// WordPress secret-key API.
type SaltHandler struct {
	rand    io.Reader
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewSaltHandler creates a handler drawing from rand, or crypto/rand when nil.
// rand must be safe for concurrent use.
func NewSaltHandler(rand io.Reader, log *slog.Logger) *SaltHandler {
	return &SaltHandler{
		rand: rand,
		log:  log,
	}
}

func (h *SaltHandler) HandleSalt(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	source := h.rand
	if source == nil {
		source = rand.Reader
	}

	set, err := cryptoutils.GenerateSecretSet(source)
	if err != nil {
		h.log.Error("Failed to generate salts", "err", err)
		if h.metrics != nil {
			h.metrics.SaltErrors.Inc()
		}
		http.Error(w, "could not generate salts", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, cryptoutils.FormatSaltDocument(set))

	if h.metrics != nil {
		h.metrics.SaltSetsServed.Inc()
		h.metrics.RequestDurations.WithLabelValues(SaltPath).Observe(time.Since(start).Seconds())
	}
}
