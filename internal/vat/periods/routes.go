package periods

import "github.com/go-chi/chi/v5"

// MountRoutes attaches the period lifecycle API.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Show)
	r.Post("/{id}/calculate", h.Calculate)
	r.Post("/{id}/submit", h.Submit)
	r.Post("/{id}/settle", h.Settle)
	r.Post("/{id}/lock", h.Lock)
	r.Post("/{id}/unlock", h.Unlock)
	r.Post("/{id}/close", h.Close)
	r.Get("/{id}/pppdv.xml", h.Declaration)
}
