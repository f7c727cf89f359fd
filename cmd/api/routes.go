package main

import (
	"log/slog"
	"net/http"

	"brokerlink/internal/shared/config"
	"brokerlink/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", deps.HealthHandler.HandleHealth)

	// Provider webhooks, authenticated by signature
	mux.HandleFunc("POST /api/webhooks/{provider}", deps.WebhookHandler.HandleWebhook)

	// Cached reference data
	if deps.InstrumentHandler != nil {
		mux.HandleFunc("GET /api/instruments/{symbol}", deps.InstrumentHandler.HandleGetInstrument)
	}

	// Admin routes
	admin := middleware.AdminAuth(deps.JWT)

	mux.Handle("POST /api/admin/refresh", admin(http.HandlerFunc(deps.AdminHandler.HandleRefresh)))
	mux.Handle("GET /api/admin/runs", admin(http.HandlerFunc(deps.AdminHandler.HandleListRuns)))
	mux.Handle("GET /api/admin/webhooks/{provider}", admin(http.HandlerFunc(deps.WebhookHandler.HandleListEvents)))
	mux.Handle("GET /api/admin/connections", admin(http.HandlerFunc(deps.AdminHandler.HandleListConnections)))
	mux.Handle("DELETE /api/admin/users/{userId}/connections/{id}", admin(http.HandlerFunc(deps.AdminHandler.HandleDisconnect)))
	mux.Handle("GET /api/admin/users/{userId}/accounts", admin(http.HandlerFunc(deps.AccountHandler.HandleListAccounts)))
	mux.Handle("GET /api/admin/users/{userId}/accounts/{id}", admin(http.HandlerFunc(deps.AccountHandler.HandleAccountByID)))

	// Apply global middleware
	handler := middleware.Logging(logger)(mux)

	// Apply security middleware when TLS is enabled
	if cfg.TLS.Enabled {
		handler = middleware.HSTS(handler)
		logger.Info("TLS security middleware enabled (HSTS)")
	}

	if cfg.Telemetry.Enabled {
		handler = middleware.Telemetry(handler)
	}

	return handler
}
