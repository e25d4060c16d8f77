// Package api exposes the VIF lifecycle over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/containerd/log"
	current "github.com/containernetworking/cni/pkg/types/100"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spin-stack/vrouter-vif/internal/driver"
	"github.com/spin-stack/vrouter-vif/internal/vif"
)

// Lifecycle is the driver surface served by the API.
type Lifecycle interface {
	Plug(ctx context.Context, inst vif.Instance, v vif.VIF) error
	Attach(ctx context.Context, inst vif.Instance, v vif.VIF, containerID string, index int) (*current.Result, error)
	Unplug(ctx context.Context, inst vif.Instance, v vif.VIF) error
	Attachment(ctx context.Context, vifID string) (*driver.Attachment, error)
	Attachments(ctx context.Context) ([]*driver.Attachment, error)
	Metrics() *driver.Metrics
}

// Server routes API requests to a Lifecycle.
type Server struct {
	lc       Lifecycle
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	router   chi.Router
}

// New creates a Server with its own metrics registry.
func New(lc Lifecycle) *Server {
	s := &Server{
		lc:       lc,
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vifd_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vifd_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
	s.registry.MustRegister(s.requests, s.latency, newLifecycleCollector(lc.Metrics()))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Route("/v1", func(r chi.Router) {
		r.Post("/plug", s.plug)
		r.Post("/attach", s.attach)
		r.Post("/unplug", s.unplug)
		r.Get("/attachments", s.listAttachments)
		r.Get("/attachments/{vif}", s.getAttachment)
	})
	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// instrument records request counts and latency per route pattern and
// attaches a request-scoped logger to the context.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := log.WithLogger(r.Context(), log.G(r.Context()).WithFields(log.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		}))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(ctx))

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		s.latency.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

		log.G(ctx).WithFields(log.Fields{
			"status":   status,
			"duration": elapsed,
		}).Debug("request served")
	})
}
