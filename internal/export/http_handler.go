package export

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/portalkit/viewdata/internal/auth"
	"github.com/portalkit/viewdata/internal/domain"
)

// ViewResolver looks up a registered view definition by name.
type ViewResolver func(name string) (*domain.ViewConfig, bool)

type Handler struct {
	service *Service
	views   ViewResolver
}

func NewHTTPHandler(service *Service, views ViewResolver) http.Handler {
	return &Handler{service: service, views: views}
}

// ServeHTTP handles GET /exports/{view}?format=csv|xlsx plus the grid's
// search/sort/filter query state.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/exports"), "/")
	if name == "" {
		http.Error(w, "missing view name", http.StatusBadRequest)
		return
	}
	view, ok := h.views(name)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown view %q", name), http.StatusNotFound)
		return
	}

	caller, err := auth.RequireCaller(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	format := Format(strings.ToLower(r.URL.Query().Get("format")))
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV && format != FormatExcel {
		http.Error(w, fmt.Sprintf("unsupported format %q", format), http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	req := domain.ViewRequest{
		Search:     query.Get("search"),
		Sort:       query.Get("sort"),
		Filter:     query.Get("filter"),
		MetaFilter: query.Get("metaFilter"),
	}

	contentType := "text/csv"
	if format == FormatExcel {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", h.service.FileName(view, format)))

	if _, err := h.service.Export(r.Context(), w, format, view, caller, req); err != nil {
		// Headers are already on the wire; the truncated body is the best
		// signal left.
		return
	}
}
