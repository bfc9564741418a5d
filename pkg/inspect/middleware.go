package inspect

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// WithToken requires every request to carry token, either as
// "Authorization: Bearer <token>" or as the token query parameter (browsers
// cannot set headers on websocket requests). An empty token disables the check.
func WithToken(token string) Option {
	return func(i *Inspector) {
		i.token = token
	}
}

// WithTracer traces every request with a span named after its route.
func WithTracer(t trace.Tracer) Option {
	return func(i *Inspector) {
		i.tracer = t
	}
}

// WithRequestMetrics records request counts, durations and watch feed
// activity in reg under namespace.
func WithRequestMetrics(reg prometheus.Registerer, namespace string) Option {
	return func(i *Inspector) {
		i.metrics = newRequestMetrics(reg, namespace)
	}
}

// requestMetrics holds the inspector's own collectors.
type requestMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	watchers prometheus.Gauge
	wsErrors *prometheus.CounterVec
	dropped  prometheus.Counter
}

func newRequestMetrics(reg prometheus.Registerer, namespace string) *requestMetrics {
	factory := promauto.With(reg)
	const subsystem = "inspect"
	return &requestMetrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "Total inspector requests by route, method and status code",
		}, []string{"route", "method", "code"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "Inspector request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
		}, []string{"route"}),

		watchers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "watchers",
			Help:      "Number of open watch feeds",
		}),

		wsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "websocket_errors_total",
			Help:      "Total watch feed errors by type",
		}, []string{"type"}),

		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dropped_events_total",
			Help:      "Total change events dropped because a watch feed was full",
		}),
	}
}

func (m *requestMetrics) watchOpened() {
	if m != nil {
		m.watchers.Inc()
	}
}

func (m *requestMetrics) watchClosed() {
	if m != nil {
		m.watchers.Dec()
	}
}

func (m *requestMetrics) wsError(kind string) {
	if m != nil {
		m.wsErrors.WithLabelValues(kind).Inc()
	}
}

func (m *requestMetrics) drop() {
	if m != nil {
		m.dropped.Inc()
	}
}

// routePattern returns the matched chi route, or "unmatched".
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// observe logs, traces and counts each request.
func (i *Inspector) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		var span trace.Span
		if i.tracer != nil {
			ctx, s := i.tracer.Start(r.Context(), "inspect.request",
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.target", r.URL.Path),
				),
			)
			span = s
			r = r.WithContext(ctx)
		}

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		elapsed := time.Since(start)

		if span != nil {
			span.SetName("inspect " + route)
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.status_code", status),
			)
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			} else {
				span.SetStatus(codes.Ok, "")
			}
			span.End()
		}

		if i.metrics != nil {
			i.metrics.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
			i.metrics.duration.WithLabelValues(route).Observe(elapsed.Seconds())
		}

		i.logger.Debug("inspect: request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", elapsed,
		)
	})
}

// authorize rejects requests without the configured token.
func (i *Inspector) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if i.token == "" || validToken(r, i.token) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", `Bearer realm="fluxstore"`)
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	})
}

func validToken(r *http.Request, token string) bool {
	got := r.URL.Query().Get("token")
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		got = strings.TrimPrefix(h, "Bearer ")
	}
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}
