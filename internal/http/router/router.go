// Package router arma el chi.Router del nodo.
package router

import (
	"net/http"

	healthctrl "github.com/dropDatabas3/proctoken/internal/http/controllers/health"
	keysctrl "github.com/dropDatabas3/proctoken/internal/http/controllers/keys"
	tokensctrl "github.com/dropDatabas3/proctoken/internal/http/controllers/tokens"
	httperrors "github.com/dropDatabas3/proctoken/internal/http/errors"
	mw "github.com/dropDatabas3/proctoken/internal/http/middlewares"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps contiene los controllers y el registry de métricas.
type Deps struct {
	Tokens *tokensctrl.TokensController
	Keys   *keysctrl.KeysController
	Health *healthctrl.HealthController

	// Gatherer para /metrics. nil = prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// New registra todas las rutas.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	// infra sin logging: probes y scraping son muy frecuentes
	r.Group(func(r chi.Router) {
		r.Use(mw.WithRecover(), mw.WithRequestID())
		r.Get("/healthz", deps.Health.Healthz)
		r.Get("/readyz", deps.Health.Readyz)

		g := deps.Gatherer
		if g == nil {
			g = prometheus.DefaultGatherer
		}
		r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.WithRecover(), mw.WithRequestID(), mw.WithLogging(), mw.WithMetrics())
		r.Post("/tokens", deps.Tokens.Issue)
		r.Post("/tokens/validate", deps.Tokens.Validate)
		r.Get("/keys/active", deps.Keys.Active)
	})

	return r
}
