package probe

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"benchq/internal/config"
	"benchq/internal/logging"
)

// HealthPath is the readiness endpoint every target exposes.
const HealthPath = "/health"

// Prober is the connectivity gate used by the runner.
type Prober interface {
	Probe(ctx context.Context, env config.Environment) (bool, float64)
}

// Probe issues single GETs against an environment's health endpoint.
type Probe struct {
	Client  *http.Client
	Timeout time.Duration
	log     *logrus.Entry
}

// New returns a Probe with its own short-lived client.
func New(timeout time.Duration, log logrus.FieldLogger) *Probe {
	return &Probe{
		Client:  &http.Client{},
		Timeout: timeout,
		log:     logging.For(log, logging.CategoryConnectivity),
	}
}

// Probe reports whether env answers 2xx on /health within the probe timeout,
// and how long the check took. The cause of a failure is logged, not returned.
func (p *Probe) Probe(ctx context.Context, env config.Environment) (bool, float64) {
	url := BaseURL(env.BaseAddress) + HealthPath
	log := p.log.WithFields(logrus.Fields{"environment": env.Name, "url": url})

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.WithError(err).Warn("health check request could not be built")
		return false, 0
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		latency := msSince(start)
		log.WithError(err).WithField("latency_ms", latency).Warn("health check failed")
		return false, latency
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	latency := msSince(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.WithFields(logrus.Fields{"status": resp.StatusCode, "latency_ms": latency}).
			Warn("health check returned non-2xx status")
		return false, latency
	}

	log.WithField("latency_ms", latency).Info("target reachable")
	return true, latency
}

// BaseURL turns a host:port (or full URL) into a scheme-qualified base
// without a trailing slash.
func BaseURL(addr string) string {
	addr = strings.TrimRight(strings.TrimSpace(addr), "/")
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return addr
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t)) / float64(time.Millisecond)
}
