package main

import (
	"log"
	"net/http"

	httphandlers "denaro/internal/interfaces/http"
	"denaro/internal/shared/config"
	"denaro/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", httphandlers.HandleHealth)

	// Consent-flow redirect target. Public: the bank redirects the
	// user's browser here without our bearer token.
	mux.HandleFunc("/link/callback", deps.BankingHandler.HandleLinkCallback)

	// Protected routes
	authMiddleware := middleware.Auth(deps.Verifier)

	mux.Handle("/institutions", authMiddleware(http.HandlerFunc(deps.BankingHandler.HandleInstitutions)))
	mux.Handle("/link", authMiddleware(http.HandlerFunc(deps.BankingHandler.HandleLink)))
	mux.Handle("/requisitions/{id}/status", authMiddleware(http.HandlerFunc(deps.BankingHandler.HandleRequisitionStatus)))
	mux.Handle("/accounts", authMiddleware(http.HandlerFunc(deps.BankingHandler.HandleAccounts)))
	mux.Handle("/accounts/{id}/transactions", authMiddleware(http.HandlerFunc(deps.BankingHandler.HandleAccountTransactions)))
	mux.Handle("/devices", authMiddleware(http.HandlerFunc(deps.BankingHandler.HandleRegisterDevice)))

	// Apply global middleware
	handler := middleware.Logging(middleware.CORS(cfg.Server.AllowedHosts)(mux))

	// Telemetry middleware when enabled
	if cfg.Telemetry.Enabled {
		handler = middleware.Telemetry(middleware.Tracing(handler))
	}

	// Apply security middleware when TLS is enabled
	if cfg.TLS.Enabled {
		handler = middleware.HSTS(handler)
		log.Println("TLS security middleware enabled (HSTS)")
	}

	return handler
}
