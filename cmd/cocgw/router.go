package main

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clashkit/cocgw/internal/accountstore"
	"github.com/clashkit/cocgw/internal/admin"
	"github.com/clashkit/cocgw/internal/logging"
	"github.com/clashkit/cocgw/keyring"
)

// routerDeps are the collaborators wired into the HTTP router.
type routerDeps struct {
	keys        *keyring.Manager
	accounts    accountstore.Store
	tokens      admin.TokenValidator
	upstream    *url.URL
	transport   http.RoundTripper
	corsOrigins []string
}

// newRouter builds the HTTP router.
func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware)
	r.Use(corsMiddleware(d.corsOrigins...))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		if d.keys.Usable() == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NO KEYS"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	adminHandlers := &admin.Handlers{
		Keys:     d.keys,
		Accounts: d.accounts,
	}
	r.Route("/admin", func(r chi.Router) {
		r.Use(admin.AuthMiddleware(d.tokens))
		r.Mount("/", adminHandlers.Routes())
	})

	// Everything under /v1 goes to the game API. Registered last so the
	// explicit routes above take precedence.
	r.Handle("/v1/*", http.StripPrefix("/v1", proxyHandler(d.upstream, d.transport)))

	return r
}
