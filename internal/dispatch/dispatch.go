package dispatch

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"benchq/internal/logging"
)

// Dispatcher fires batches of GET requests over one pooled transport.
type Dispatcher struct {
	Client    *http.Client
	Observer  Observer
	Templates *TemplateEngine

	log *logrus.Entry
}

// New returns a Dispatcher whose connection pool holds at least poolSize
// connections per host. HTTP/2 is never negotiated.
func New(poolSize int, log logrus.FieldLogger) *Dispatcher {
	if poolSize < 1 {
		poolSize = 1
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = poolSize
	t.MaxIdleConnsPerHost = poolSize
	t.MaxConnsPerHost = poolSize
	t.ForceAttemptHTTP2 = false
	t.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}

	return &Dispatcher{
		Client:    &http.Client{Transport: t},
		Templates: NewTemplateEngine(),
		log:       logging.For(log, logging.CategoryRequest),
	}
}

// Close drops idle pooled connections.
func (d *Dispatcher) Close() {
	d.Client.CloseIdleConnections()
}

// Dispatch issues count GETs against rawURL with at most limit in flight and
// returns one Outcome per request, index i for request i. Each request gets
// its own timeout; cancelling ctx fails whatever has not resolved yet.
// A panic in a request goroutine is raised again on the calling goroutine
// once every request has resolved.
func (d *Dispatcher) Dispatch(ctx context.Context, rawURL string, count, limit int, timeout time.Duration) []Outcome {
	if count <= 0 {
		return []Outcome{}
	}
	if limit < 1 {
		limit = 1
	}

	outcomes := make([]Outcome, count)
	target, err := d.target(rawURL)
	if err != nil {
		d.log.WithError(err).WithField("url", rawURL).Warn("request url is invalid, failing the batch")
		for i := range outcomes {
			outcomes[i] = Outcome{Failure: FailureInvalidURL}
			d.started()
			d.done(outcomes[i])
		}
		return outcomes
	}

	var (
		g        errgroup.Group
		once     sync.Once
		panicked error
	)
	g.SetLimit(limit)
	for i := 0; i < count; i++ {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					once.Do(func() { panicked = errors.Errorf("request %d panicked: %v", i, p) })
				}
			}()
			d.started()
			outcomes[i] = d.execute(ctx, target, i, timeout)
			d.done(outcomes[i])
			return nil
		})
	}
	g.Wait()

	// re-raised here so the caller's recover sees it
	if panicked != nil {
		panic(panicked)
	}
	return outcomes
}

// requestTarget produces the URL of request i.
type requestTarget func(i int) (string, error)

func (d *Dispatcher) target(rawURL string) (requestTarget, error) {
	if d.Templates == nil || !IsTemplate(rawURL) {
		if _, err := url.ParseRequestURI(rawURL); err != nil {
			return nil, errors.Wrap(err, "parse url")
		}
		return func(int) (string, error) { return rawURL, nil }, nil
	}

	t, err := d.Templates.Parse("url", rawURL)
	if err != nil {
		return nil, err
	}
	return func(i int) (string, error) {
		return d.Templates.Execute(t, TemplateData{UUID: uuid.New().String(), Index: i})
	}, nil
}

func (d *Dispatcher) execute(ctx context.Context, target requestTarget, i int, timeout time.Duration) Outcome {
	if ctx.Err() != nil {
		return Outcome{Failure: FailureCancelled}
	}

	u, err := target(i)
	if err != nil {
		d.log.WithError(err).Debug("request url could not be rendered")
		return Outcome{Failure: FailureInvalidURL}
	}

	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
	if err != nil {
		d.log.WithError(err).WithField("url", u).Debug("request could not be built")
		return Outcome{Failure: FailureInvalidURL}
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return d.failed(ctx, err, start, timeout, 0, 0)
	}
	n, err := io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if err != nil {
		return d.failed(ctx, err, start, timeout, n, resp.StatusCode)
	}
	latency := msSince(start)

	out := Outcome{LatencyMs: latency, ResponseBytes: n, StatusCode: resp.StatusCode}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		out.Failure = FailureStatus
		d.log.WithFields(logrus.Fields{"url": u, "status": resp.StatusCode}).Debug("non-2xx response")
		return out
	}
	out.Success = true
	return out
}

// failed classifies a transport or body error. Per-request timeouts report
// the timeout itself as latency.
func (d *Dispatcher) failed(parent context.Context, err error, start time.Time, timeout time.Duration, n int64, status int) Outcome {
	out := Outcome{LatencyMs: msSince(start), ResponseBytes: n, StatusCode: status}

	switch {
	case parent.Err() != nil:
		out.Failure = FailureCancelled
	case isTimeout(err):
		out.Failure = FailureTimeout
		out.LatencyMs = float64(timeout) / float64(time.Millisecond)
	default:
		out.Failure = FailureNetwork
	}

	d.log.WithError(err).WithField("failure", out.Failure.String()).Debug("request failed")
	return out
}

func (d *Dispatcher) started() {
	if d.Observer != nil {
		d.Observer.RequestStarted()
	}
}

func (d *Dispatcher) done(o Outcome) {
	if d.Observer != nil {
		d.Observer.RequestDone(o)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t)) / float64(time.Millisecond)
}
