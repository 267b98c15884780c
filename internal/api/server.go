package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kmorozov/tabreaper/internal/proxy"
	"github.com/kmorozov/tabreaper/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes.
func (h *Handler) SetupRoutes(proxyServer *proxy.Server, rateLimiter *ratelimit.Limiter) *mux.Router {
	r := mux.NewRouter()

	// API v1 routes
	api := r.PathPrefix("/v1").Subrouter()

	// Mutating endpoints are rate limited; a runaway UI can't hammer the
	// settings document or trigger sweep storms.
	limited := api.PathPrefix("").Subrouter()
	limited.Use(RateLimitMiddleware(rateLimiter, 60))

	limited.HandleFunc("/settings", h.UpdateSettings).Methods("PUT")
	limited.HandleFunc("/whitelist", h.AddToWhitelist).Methods("POST")
	limited.HandleFunc("/whitelist/{domain}", h.RemoveFromWhitelist).Methods("DELETE")
	limited.HandleFunc("/sweep", h.TriggerSweep).Methods("POST", "OPTIONS")

	// Read endpoints (not rate limited - the UI polls these)
	api.HandleFunc("/settings", h.GetSettings).Methods("GET")
	api.HandleFunc("/status", h.GetStatus).Methods("GET")
	api.HandleFunc("/tabs", h.ListTabs).Methods("GET")

	// Debug passthrough to the attached browser's CDP socket
	if proxyServer != nil {
		api.HandleFunc("/debug/ws", func(w http.ResponseWriter, r *http.Request) {
			proxyServer.HandleDebugConnection(w, r)
		}).Methods("GET")
	}

	r.Use(corsMiddleware)
	r.Use(requestIDMiddleware)

	return r
}

// corsMiddleware adds CORS headers; the settings UI runs as a browser page.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Client-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
