package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/portalkit/viewdata/internal/auth"
	"github.com/portalkit/viewdata/internal/domain"
	"github.com/portalkit/viewdata/internal/export"
)

// Handler serves registered views over JSON: POST /views/{name}/data takes a
// page request and returns the trimmed, merged page.
type Handler struct {
	fetcher export.Fetcher
	logger  zerolog.Logger

	mu    sync.RWMutex
	views map[string]*domain.ViewConfig
}

func NewHandler(fetcher export.Fetcher, logger zerolog.Logger) *Handler {
	return &Handler{
		fetcher: fetcher,
		logger:  logger,
		views:   make(map[string]*domain.ViewConfig),
	}
}

// RegisterView makes a view definition addressable by name.
func (h *Handler) RegisterView(name string, view *domain.ViewConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.views[name] = view
}

// ResolveView implements export.ViewResolver.
func (h *Handler) ResolveView(name string) (*domain.ViewConfig, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	view, ok := h.views[name]
	return view, ok
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name, action, ok := splitViewPath(r.URL.Path)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	switch {
	case r.Method == http.MethodPost && action == "data":
		h.handleFetch(w, r, name)
	case r.Method == http.MethodGet && action == "definition":
		h.handleDefinition(w, r, name)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (h *Handler) handleFetch(w http.ResponseWriter, r *http.Request, name string) {
	view, ok := h.ResolveView(name)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown view %q", name), http.StatusNotFound)
		return
	}

	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	defer r.Body.Close()
	var req domain.ViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	result, err := h.fetcher.Fetch(r.Context(), *view, caller, req)
	if err != nil {
		h.logger.Error().Err(err).Str("view", name).Msg("fetch view data")
		http.Error(w, "failed to fetch view data", http.StatusInternalServerError)
		return
	}
	if result.AuthorizationDenied {
		http.Error(w, "access denied", http.StatusForbidden)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleDefinition(w http.ResponseWriter, r *http.Request, name string) {
	view, ok := h.ResolveView(name)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown view %q", name), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// splitViewPath parses /views/{name}/{action}.
func splitViewPath(path string) (name, action string, ok bool) {
	trimmed := strings.Trim(strings.TrimPrefix(path, "/views"), "/")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
