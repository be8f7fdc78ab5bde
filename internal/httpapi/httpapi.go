package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/receipt"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/users"
)

const maxBodyBytes = 1 << 20

type API struct {
	store         *store.Store
	users         *users.Directory
	auth          *AuthManager
	receipts      *receipt.Renderer
	allowedOrigin string
	logger        zerolog.Logger
	loginLimiter  *attemptLimiter
	proxies       map[string]struct{}
}

type Options struct {
	AllowedOrigin string
	Logger        zerolog.Logger
	// LoginAttempts caps logins per client address per minute. Zero means 5.
	LoginAttempts int
	// TrustedProxies lists peer IPs whose X-Real-IP / X-Forwarded-For headers
	// are believed. Everyone else is keyed by socket address.
	TrustedProxies []string
}

func New(st *store.Store, dir *users.Directory, auth *AuthManager, receipts *receipt.Renderer, opts Options) *API {
	proxies := make(map[string]struct{}, len(opts.TrustedProxies))
	for _, raw := range opts.TrustedProxies {
		if addr, err := netip.ParseAddr(strings.TrimSpace(raw)); err == nil {
			proxies[addr.Unmap().String()] = struct{}{}
		}
	}
	return &API{
		store:         st,
		users:         dir,
		auth:          auth,
		receipts:      receipts,
		allowedOrigin: opts.AllowedOrigin,
		logger:        opts.Logger,
		loginLimiter:  newAttemptLimiter(opts.LoginAttempts, time.Minute),
		proxies:       proxies,
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

// clientKey identifies the caller for rate limiting. Forwarded headers count
// only when the socket peer is a trusted proxy.
func (a *API) clientKey(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if _, ok := a.proxies[peer]; !ok {
		return peer
	}
	if addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return addr.Unmap().String()
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		hops := strings.Split(fwd, ",")
		// the proxy appends the address it saw last
		if addr, err := netip.ParseAddr(strings.TrimSpace(hops[len(hops)-1])); err == nil {
			return addr.Unmap().String()
		}
	}
	return peer
}

func remoteHost(remote string) string {
	host := strings.TrimSpace(remote)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().Unmap().String()
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(a.observe)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{a.allowedOrigin},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))
	r.Use(securityHeaders)
	r.Use(limitBody)

	r.Get("/healthz", a.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(domain.RoleOwner, domain.RoleWorker))

			r.Route("/medicines", func(r chi.Router) {
				r.Get("/", a.handleListMedicines)
				r.Post("/", a.handleAddMedicine)
				r.Get("/suggest", a.handleSuggestMedicines)
				r.Get("/{id}", a.handleGetMedicine)
			})

			r.Route("/sales", func(r chi.Router) {
				r.Get("/", a.handleListSales)
				r.Post("/", a.handleRecordSale)
				r.Get("/export.csv", a.handleExportSales)
				r.Get("/{id}", a.handleGetSale)
				r.Get("/{id}/invoice.pdf", a.handleInvoice)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth(domain.RoleOwner))

			r.Route("/analytics", func(r chi.Router) {
				r.Get("/kpis", a.handleKpis)
				r.Get("/best-sellers", a.handleBestSellers)
				r.Get("/trend", a.handleTrend)
				r.Get("/low-stock", a.handleLowStock)
			})
			r.Post("/admin/reload", a.handleReload)
		})
	})

	return r
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

// writeStoreError maps store failures onto HTTP statuses.
func (a *API) writeStoreError(w http.ResponseWriter, err error) {
	var verr *store.ValidationError
	var txErr *store.TransactionError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
	case errors.As(err, &txErr) && errors.Is(err, store.ErrInsufficientStock):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      txErr.Error(),
			"medicineId": txErr.MedicineID,
			"requested":  txErr.Requested,
			"available":  txErr.Available,
		})
	case errors.Is(err, store.ErrMedicineNotFound), errors.Is(err, store.ErrNotFound):
		a.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInvalidTransaction):
		a.writeError(w, http.StatusBadRequest, err)
	default:
		a.writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the cause goes to the log.
	msg := err.Error()
	if status >= 500 {
		a.logger.Error().Err(err).Int("status", status).Msg("internal error")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
