package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pharmapos/backend/internal/domain"
)

const (
	unmatchedRoute = "unmatched"
	otherPayment   = "other"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmapos_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pharmapos_http_request_duration_ms",
			Help:    "Duration of HTTP requests in ms",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600},
		},
		[]string{"method", "path"},
	)

	salesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmapos_sales_recorded_total",
			Help: "Sales committed, by payment method",
		},
		[]string{"payment_method"},
	)

	salesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmapos_sales_rejected_total",
			Help: "Sales refused before commit, by reason",
		},
		[]string{"reason"},
	)
)

// observe records request metrics and a structured access log line.
func (a *API) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		path := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(r.Method, path).Observe(float64(elapsed.Milliseconds()))

		a.logger.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", a.clientKey(r)).
			Int("status", status).
			Dur("latency", elapsed).
			Msg("request")
	})
}

// paymentLabel folds free-form payment methods into a fixed label set.
func paymentLabel(method string) string {
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentUPI, domain.PaymentUnknown:
		return method
	default:
		return otherPayment
	}
}
