package api

import (
	"net/http"

	"igharvest/internal/auth"
	"igharvest/internal/metrics"
	"igharvest/pkg/config"
	"igharvest/pkg/logger"
	"igharvest/pkg/ratelimit"
)

// Deps are the collaborators of the router
type Deps struct {
	Store     Store
	Harvester Harvester
	Auth      *auth.Authenticator
	Metrics   *metrics.Collector
	Logger    logger.Logger
	// Limiter throttles login attempts per client IP
	Limiter *ratelimit.KeyedLimiter
}

// NewRouter builds the HTTP handler for the whole API
func NewRouter(cfg *config.Config, d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithField("component", "api")

	limiter := d.Limiter
	if limiter == nil {
		limiter = ratelimit.NewKeyedLimiter(cfg.Auth.LoginAttempts, cfg.Auth.LoginWindow)
	}

	h := NewHandler(d.Store, d.Harvester, log)
	authHandler := NewAuthHandler(d.Auth, limiter, log)
	protected := func(fn http.HandlerFunc) http.Handler {
		return d.Auth.Middleware(fn)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.healthz)
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics.Handler())
	}

	trigger := requireTriggerSecret(cfg.Server.TriggerSecret, http.HandlerFunc(h.runHarvest))
	mux.Handle("POST /api/harvest", trigger)
	mux.Handle("GET /api/harvest", trigger)

	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	mux.Handle("GET /api/accounts", protected(h.listAccounts))
	mux.Handle("POST /api/accounts", protected(h.createAccount))
	mux.Handle("GET /api/accounts/{id}", protected(h.getAccount))
	mux.Handle("PUT /api/accounts/{id}", protected(h.updateAccount))
	mux.Handle("PATCH /api/accounts/{id}/active", protected(h.setAccountActive))
	mux.Handle("DELETE /api/accounts/{id}", protected(h.deleteAccount))
	mux.Handle("POST /api/accounts/{id}/scrape", protected(h.queueScrape))

	mux.Handle("GET /api/logs", protected(h.listLogs))
	mux.Handle("GET /api/dashboard", protected(h.dashboard))

	var handler http.Handler = mux
	if d.Metrics != nil {
		handler = d.Metrics.InstrumentHandler(handler)
	}
	return cors(requestLogger(log, handler))
}

// cors allows the admin panel to call the API from another origin
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+TriggerSecretHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
