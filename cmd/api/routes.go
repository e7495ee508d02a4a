package main

import (
	"log"
	"net/http"

	httphandlers "racuni/internal/interfaces/http"
	"racuni/internal/shared/config"
	"racuni/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", httphandlers.HandleHealth)

	// Sync routes. Method is checked before authentication.
	authMiddleware := middleware.Auth(deps.JWT)
	protected := func(route, method string, h http.HandlerFunc) {
		mux.Handle(route, middleware.Tracing(route)(
			middleware.AllowMethods(method)(authMiddleware(h)),
		))
	}

	protected("/sync", http.MethodPost, deps.SyncHandler.HandlePush)
	protected("/sync/pull", http.MethodGet, deps.SyncHandler.HandlePull)
	protected("/sync/debug", http.MethodGet, deps.SyncHandler.HandleDebug)

	// Apply global middleware
	handler := middleware.Logging(middleware.CORS(cfg.Server.AllowedHosts)(middleware.NoStore(mux)))

	// Apply security middleware when TLS is enabled
	if cfg.TLS.Enabled {
		handler = middleware.HSTS(handler)
		log.Println("TLS security middleware enabled (HSTS)")
	}

	if cfg.Telemetry.Enabled {
		handler = middleware.Telemetry(cfg.Telemetry.ServiceName)(handler)
	}

	return handler
}
