package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"bookkeeper.org/internal/auth"
	"bookkeeper.org/internal/bookkeeper"
	"bookkeeper.org/internal/obs"
)

// ReadyProbe pings the backing database when one is configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the quota service.
type API struct {
	mux        *http.ServeMux
	svc        bookkeeper.Service
	customers  *bookkeeper.CustomerRegistry
	tokens     *auth.Tokens
	readyProbe ReadyProbe
	version    string

	maxBodyBytes   int64
	rateLimitRPS   float64
	rateLimitBurst int
}

// Option configures API.
type Option func(*API)

// WithMaxBodyBytes caps request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBodyBytes = n
		}
	}
}

// WithRateLimit sets the per-client token bucket.
func WithRateLimit(rps float64, burst int) Option {
	return func(a *API) {
		if rps > 0 && burst > 0 {
			a.rateLimitRPS = rps
			a.rateLimitBurst = burst
		}
	}
}

func New(svc bookkeeper.Service, customers *bookkeeper.CustomerRegistry, tokens *auth.Tokens, rp ReadyProbe, version string, opts ...Option) *API {
	a := &API{
		mux:            http.NewServeMux(),
		svc:            svc,
		customers:      customers,
		tokens:         tokens,
		readyProbe:     rp,
		version:        version,
		maxBodyBytes:   1 << 20,
		rateLimitRPS:   50,
		rateLimitBurst: 100,
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	// quotas
	a.mux.HandleFunc("/v1/quotas", a.handleQuotasCollection)
	a.mux.HandleFunc("/v1/quotas/", a.handleQuotaResource)

	// usages
	a.mux.HandleFunc("/v1/usages", a.handleUsagesCollection)
	a.mux.HandleFunc("/v1/usages/", a.handleUsageResource)

	// customers
	a.mux.HandleFunc("/v1/customers", a.handleCustomersCollection)
	a.mux.HandleFunc("/v1/customers/", a.handleCustomerResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.rateLimitBurst, a.rateLimitRPS)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "bookkeeper-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "bookkeeper-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
