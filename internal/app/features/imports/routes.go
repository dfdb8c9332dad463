// internal/app/features/imports/routes.go
package imports

import (
	"github.com/go-chi/chi/v5"
)

// Routes mounts the import endpoints.
// Typically: r.Mount("/api/imports", imports.Routes(handler))
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.HandleImport)
	r.Post("/csv", h.HandleUploadCSV)
	return r
}
