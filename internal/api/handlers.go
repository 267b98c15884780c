package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"

	"github.com/kmorozov/tabreaper/internal/host"
	"github.com/kmorozov/tabreaper/internal/ledger"
	"github.com/kmorozov/tabreaper/internal/lifecycle"
	"github.com/kmorozov/tabreaper/internal/policy"
	"github.com/kmorozov/tabreaper/internal/settings"
	"github.com/kmorozov/tabreaper/pkg/models"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	controller *lifecycle.Controller
	settings   *settings.Store
	tabHost    host.TabHost
	ledger     *ledger.Ledger

	useHostFallback bool
}

// NewHandler creates the API handler.
func NewHandler(controller *lifecycle.Controller, store *settings.Store, tabHost host.TabHost, l *ledger.Ledger, useHostFallback bool) *Handler {
	return &Handler{
		controller:      controller,
		settings:        store,
		tabHost:         tabHost,
		ledger:          l,
		useHostFallback: useHostFallback,
	}
}

// GetSettings handles GET /v1/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.settings.Load()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// UpdateSettings handles PUT /v1/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var cfg models.Settings
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.settings.Save(cfg); err != nil {
		if errors.Is(err, settings.ErrInvalidMinutes) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// AddToWhitelist handles POST /v1/whitelist. An empty body whitelists the
// hostname of the currently focused tab, mirroring the popup's
// "add current site" button.
func (h *Handler) AddToWhitelist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Domain string `json:"domain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	domain := req.Domain
	if domain == "" {
		tab, err := h.tabHost.ActiveTab(r.Context(), 0)
		if err != nil {
			http.Error(w, "No active tab to whitelist: "+err.Error(), http.StatusBadGateway)
			return
		}
		parsed, err := url.Parse(tab.URL)
		if err != nil || parsed.Hostname() == "" {
			http.Error(w, "Active tab has no usable hostname", http.StatusUnprocessableEntity)
			return
		}
		domain = parsed.Hostname()
	}

	cfg, err := h.settings.AddToWhitelist(domain)
	if err != nil {
		if errors.Is(err, settings.ErrInvalidDomain) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// RemoveFromWhitelist handles DELETE /v1/whitelist/{domain}
func (h *Handler) RemoveFromWhitelist(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	cfg, err := h.settings.RemoveFromWhitelist(vars["domain"])
	if err != nil {
		if errors.Is(err, settings.ErrInvalidDomain) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// TriggerSweep handles POST /v1/sweep — the UI's closeTabsNow channel.
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Action != "" && req.Action != "closeTabsNow" {
		http.Error(w, "Unknown action: "+req.Action, http.StatusBadRequest)
		return
	}

	report, err := h.controller.TriggerNow()
	if err != nil {
		if errors.Is(err, lifecycle.ErrNotRunning) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		log.Printf("⚠️ Manual sweep failed: %v", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// GetStatus handles GET /v1/status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.settings.Load()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"state":       h.controller.State(),
		"trackedTabs": h.ledger.Len(),
		"settings":    cfg,
	})
}

// ListTabs handles GET /v1/tabs: the open tabs with the verdict each would
// receive right now. Nothing is closed; this is the UI's "closing soon" view.
func (h *Handler) ListTabs(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.settings.Load()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	tabs, err := h.tabHost.ListTabs(r.Context())
	if err != nil {
		http.Error(w, "Failed to enumerate tabs: "+err.Error(), http.StatusBadGateway)
		return
	}

	pol := policy.Config{
		ThresholdMinutes: cfg.Minutes,
		Whitelist:        cfg.Whitelist,
		UseHostFallback:  h.useHostFallback,
	}

	now := time.Now()
	out := make([]models.TabVerdict, 0, len(tabs))
	for _, tab := range tabs {
		var lastAccessed *int64
		if ms, ok := h.ledger.Get(tab.ID); ok {
			lastAccessed = &ms
		}

		verdict, err := policy.Decide(tab, lastAccessed, pol, now)
		if err != nil {
			log.Printf("⚠️ %v", err)
		}
		out = append(out, models.TabVerdict{Tab: tab, Verdict: verdict})
	}

	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
