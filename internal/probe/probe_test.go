package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"benchq/internal/config"
	"benchq/internal/logging"
)

func envFor(srv *httptest.Server) config.Environment {
	return config.Environment{Name: "test", BaseAddress: strings.TrimPrefix(srv.URL, "http://")}
}

func TestProbeHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, HealthPath, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(time.Second, logging.Discard())
	ok, latency := p.Probe(context.Background(), envFor(srv))
	assert.True(t, ok)
	assert.GreaterOrEqual(t, latency, 0.0)
}

func TestProbeNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ok, _ := New(time.Second, logging.Discard()).Probe(context.Background(), envFor(srv))
	assert.False(t, ok)
}

func TestProbeTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ok, latency := New(50*time.Millisecond, logging.Discard()).Probe(context.Background(), envFor(srv))
	assert.False(t, ok)
	assert.Less(t, latency, 1000.0)
}

func TestProbeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	env := envFor(srv)
	srv.Close()

	ok, _ := New(200*time.Millisecond, logging.Discard()).Probe(context.Background(), env)
	assert.False(t, ok)
}

func TestProbeIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(time.Second, logging.Discard())
	first, _ := p.Probe(context.Background(), envFor(srv))
	second, _ := p.Probe(context.Background(), envFor(srv))
	assert.Equal(t, first, second)
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8000", BaseURL("localhost:8000"))
	assert.Equal(t, "https://example.com", BaseURL("https://example.com/"))
}
