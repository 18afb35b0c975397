// Target service for trying benchq locally.
package dummy

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const largeItems = 1000

type ServerConfig struct {
	Port int

	// Slowdown scales every artificial delay; 0 means 1.
	Slowdown float64
}

// Endpoints lists the routes NewRouter serves.
var Endpoints = []string{"/", "/health", "/fast", "/medium", "/slow", "/spike", "/error", "/heavy", "/async-light", "/json-large"}

type server struct {
	cfg ServerConfig
	log logrus.FieldLogger
}

// NewRouter builds the handler without listening.
func NewRouter(cfg ServerConfig, log logrus.FieldLogger) http.Handler {
	if cfg.Slowdown <= 0 {
		cfg.Slowdown = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &server{cfg: cfg, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/", s.root).Methods(http.MethodGet)
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	// 1. Fast Endpoint (10-50ms)
	r.HandleFunc("/fast", s.delayed("Fast response", 10, 40)).Methods(http.MethodGet)
	// 2. Medium Endpoint (100-300ms)
	r.HandleFunc("/medium", s.delayed("Medium response", 100, 200)).Methods(http.MethodGet)
	// 3. Slow Endpoint (1s-2s) - Good for testing timeouts
	r.HandleFunc("/slow", s.delayed("Slow response", 1000, 1000)).Methods(http.MethodGet)
	// 4. Spike Endpoint (Usually fast, randomly very slow)
	r.HandleFunc("/spike", s.spike).Methods(http.MethodGet)
	// 5. Error Endpoint (Random failures)
	r.HandleFunc("/error", s.flaky).Methods(http.MethodGet)

	r.HandleFunc("/heavy", s.heavy).Methods(http.MethodGet)
	r.HandleFunc("/async-light", s.delayed("Async operation finished", 100, 0)).Methods(http.MethodGet)
	r.HandleFunc("/json-large", s.jsonLarge).Methods(http.MethodGet)
	return r
}

// Serve listens on cfg.Port until ctx is done.
func Serve(ctx context.Context, cfg ServerConfig, log logrus.FieldLogger) error {
	if log == nil {
		log = logrus.StandardLogger()
	}
	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(cfg, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"addr": "http://localhost" + addr, "endpoints": Endpoints}).
			Info("dummy server running")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "dummy server")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Debug("write response")
	}
}

func (s *server) sleep(r *http.Request, d time.Duration) bool {
	select {
	case <-time.After(time.Duration(float64(d) * s.cfg.Slowdown)):
		return true
	case <-r.Context().Done():
		return false
	}
}

func (s *server) root(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": "benchq dummy target",
		"status":  "running",
	})
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "benchq-dummy",
	})
}

// delayed answers after base plus up to jitter milliseconds.
func (s *server) delayed(msg string, base, jitter int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := base
		if jitter > 0 {
			d += rand.Intn(jitter)
		}
		if !s.sleep(r, time.Duration(d)*time.Millisecond) {
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(msg))
	}
}

// P99 will be terrible, P50 will be fine.
func (s *server) spike(w http.ResponseWriter, r *http.Request) {
	d := 20 * time.Millisecond
	if rand.Float32() < 0.05 {
		d = 2 * time.Second
	}
	if !s.sleep(r, d) {
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Spikey response"))
}

func (s *server) flaky(w http.ResponseWriter, r *http.Request) {
	rnd := rand.Float32()
	switch {
	case rnd < 0.2:
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("500 Internal Server Error"))
	case rnd < 0.4:
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("429 Too Many Requests"))
	default:
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

// heavy burns CPU on factorials, logarithms, roots and trigonometry.
func (s *server) heavy(w http.ResponseWriter, r *http.Request) {
	result := 0.0
	for i := 1; i < 100; i++ {
		f := 1.0
		for k := 2; k <= i%20; k++ {
			f *= float64(k)
		}
		result += f
	}
	for i := 1; i < 10000; i++ {
		result += math.Log(float64(i + 1))
		result += math.Sqrt(float64(i))
	}
	for i := 1; i < 5000; i++ {
		result += math.Sin(float64(i)) * math.Cos(float64(i))
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":             "completed",
		"computation_result": math.Round(result*100) / 100,
	})
}

type item struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Value       float64  `json:"value"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// jsonLarge returns a big document; ?page and ?limit slice it.
func (s *server) jsonLarge(w http.ResponseWriter, r *http.Request) {
	page, limit := 1, largeItems
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= largeItems {
		limit = v
	}

	start := (page - 1) * limit
	items := make([]item, 0, limit)
	for i := start; i < start+limit && i < largeItems; i++ {
		items = append(items, item{
			ID:          i,
			Name:        fmt.Sprintf("Item %d", i),
			Value:       float64(i) * 3.14159,
			Description: fmt.Sprintf("Description for item number %d with some additional text", i),
			Tags:        []string{"tag0", "tag1", "tag2", "tag3", "tag4"},
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"page":   page,
		"count":  len(items),
		"items":  items,
	})
}
