// internal/app/features/leads/routes.go
package leads

import (
	"github.com/go-chi/chi/v5"
)

// Routes mounts the lead endpoints.
// Typically: r.Mount("/api/leads", leads.Routes(handler))
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/merge", h.HandleMerge)
	r.Get("/{id}", h.ServeLead)
	return r
}
