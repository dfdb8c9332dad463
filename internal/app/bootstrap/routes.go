// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	errorsfeature "github.com/dalemusser/leadtrack/internal/app/features/errors"
	healthfeature "github.com/dalemusser/leadtrack/internal/app/features/health"
	importsfeature "github.com/dalemusser/leadtrack/internal/app/features/imports"
	leadsfeature "github.com/dalemusser/leadtrack/internal/app/features/leads"
	"github.com/dalemusser/leadtrack/internal/app/system/ratelimit"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed.
//
// LeadTrack is a JSON API: imports under /api/imports, merge and lookup
// under /api/leads, plus /health and the Prometheus endpoint.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	svc := NewServices(appCfg, deps, logger)

	r := chi.NewRouter()
	r.NotFound(errorsfeature.NotFound)
	r.MethodNotAllowed(errorsfeature.MethodNotAllowed)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, deps.Redis, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	if appCfg.MetricsPath != "" {
		r.Handle(appCfg.MetricsPath, svc.Metrics.Handler())
	}

	// Per-client limit on import requests; ConnectDB owns the limiter.
	importsHandler := importsfeature.NewHandler(svc.Importer, svc.Audit, logger)
	r.Mount("/api/imports", ratelimit.Middleware(deps.ImportLimiter)(importsfeature.Routes(importsHandler)))

	leadsHandler := leadsfeature.NewHandler(svc.Merger, svc.Leads, svc.Audit, logger)
	r.Mount("/api/leads", leadsfeature.Routes(leadsHandler))

	return r, nil
}
