package inference

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/YuminosukeSato/mltemplate/pkg/errors"
	"github.com/YuminosukeSato/mltemplate/pkg/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	statusOK        = 200
	statusUnhealthy = 400

	// RequestIDHeader carries the request id back to the client.
	RequestIDHeader = "X-Request-Id"
)

type healthResponse struct {
	Status int `json:"status"`
}

type predictBody struct {
	Prediction []interface{} `json:"prediction"`
}

type predictResponse struct {
	Status int          `json:"status"`
	Body   *predictBody `json:"body"`
}

type serverMetrics struct {
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	predictions *prometheus.CounterVec
	outliers    prometheus.Counter
	state       prometheus.GaugeFunc
}

func newServerMetrics(reg prometheus.Registerer, svc *Service) *serverMetrics {
	m := &serverMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mltemplate", Subsystem: "inference",
			Name: "requests_total", Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mltemplate", Subsystem: "inference",
			Name: "request_duration_seconds", Help: "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mltemplate", Subsystem: "inference",
			Name: "predictions_total", Help: "Prediction requests by outcome.",
		}, []string{"outcome"}),
		outliers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mltemplate", Subsystem: "inference",
			Name: "outlier_payloads_total", Help: "Payloads that failed the outlier check.",
		}),
		state: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "mltemplate", Subsystem: "inference",
			Name: "state", Help: "Service state (0 uninitialized, 1 starting, 2 healthy, 3 failed).",
		}, func() float64 { return float64(svc.State()) }),
	}
	reg.MustRegister(m.requests, m.latency, m.predictions, m.outliers, m.state)
	return m
}

// Server exposes a Service over HTTP.
type Server struct {
	svc      *Service
	router   chi.Router
	registry *prometheus.Registry
	metrics  *serverMetrics
	logger   log.Logger
}

// NewServer builds the router for svc. /metrics is mounted when the service
// configuration enables it.
func NewServer(svc *Service) *Server {
	s := &Server{
		svc:      svc,
		router:   chi.NewRouter(),
		registry: prometheus.NewRegistry(),
		logger:   log.GetLoggerWithName("http"),
	}
	s.metrics = newServerMetrics(s.registry, svc)
	svc.onOutlier = s.metrics.outliers.Inc

	s.router.Use(requestID)
	s.router.Use(s.accessLog)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/predict", s.handlePredict)
	if svc.cfg.MetricsEnabled {
		s.registry.MustRegister(collectors.NewGoCollector())
		s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("<h1>Page not found</h1>"))
	})
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on the configured host and port until ctx is done, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.svc.cfg.Host, strconv.Itoa(s.svc.cfg.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Listening", "addr", addr, log.ServiceStateKey, s.svc.State().String())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.WrapIO(err, "listen")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("Shutting down", "addr", addr)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.WrapIO(err, "shutdown")
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	requestLogger(r, s.logger).Info("Application status requested", log.ServiceStateKey, s.svc.State().String())
	status := statusOK
	if !s.svc.Healthy() {
		status = statusUnhealthy
	}
	writeJSON(w, healthResponse{Status: status})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, s.logger)
	if !s.svc.Healthy() {
		s.metrics.predictions.WithLabelValues("unhealthy").Inc()
		writeJSON(w, predictResponse{Status: statusUnhealthy})
		return
	}

	payload := r.URL.Query().Get("payload")
	if payload == "" {
		logger.Warn("Request without payload")
		s.metrics.predictions.WithLabelValues("invalid").Inc()
		writeJSON(w, predictResponse{Status: statusOK, Body: &predictBody{}})
		return
	}

	preds, err := s.svc.Predict([]byte(payload), logger)
	if err != nil {
		logger.Warn("Payload rejected",
			"error", err.Error(),
			log.ErrorKindKey, errors.KindOf(err).String(),
		)
		s.metrics.predictions.WithLabelValues("invalid").Inc()
		writeJSON(w, predictResponse{Status: statusOK, Body: &predictBody{}})
		return
	}
	s.metrics.predictions.WithLabelValues("ok").Inc()
	writeJSON(w, predictResponse{Status: statusOK, Body: &predictBody{Prediction: preds}})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

type ctxKey struct{}

// requestID tags every request with a uuid, reusing one sent by the client.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func requestLogger(r *http.Request, base log.Logger) log.Logger {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return base.With(log.RequestIDKey, id)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		s.metrics.latency.WithLabelValues(route).Observe(elapsed.Seconds())
		requestLogger(r, s.logger).Debug("Request served",
			log.RouteKey, route,
			"method", r.Method,
			"status", status,
			log.DurationMsKey, elapsed.Milliseconds(),
		)
	})
}
