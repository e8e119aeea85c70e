package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all backtest routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/backtests", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)

		r.Route("/{id}", func(r chi.Router) {
			r.Post("/step", func(w http.ResponseWriter, r *http.Request) {
				h.HandleStep(w, r, chi.URLParam(r, "id"))
			})
			r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
				h.HandleStatus(w, r, chi.URLParam(r, "id"))
			})
			r.Get("/artifacts", func(w http.ResponseWriter, r *http.Request) {
				h.HandleArtifacts(w, r, chi.URLParam(r, "id"))
			})
			r.Get("/artifacts/{file}", func(w http.ResponseWriter, r *http.Request) {
				h.HandleArtifactFile(w, r, chi.URLParam(r, "id"), chi.URLParam(r, "file"))
			})
			r.Get("/stream", func(w http.ResponseWriter, r *http.Request) {
				h.HandleStream(w, r, chi.URLParam(r, "id"))
			})
			r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
				h.HandleDelete(w, r, chi.URLParam(r, "id"))
			})
		})
	})
}
