package masterdata

import "github.com/go-chi/chi/v5"

// MountRoutes registers clients, vendors, projects and labor endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/clients", func(r chi.Router) {
		r.Get("/", h.ListClients)
		r.Post("/", h.CreateClient)
		r.Get("/{id}", h.GetClient)
		r.Delete("/{id}", h.DeleteClient)
	})
	r.Route("/vendors", func(r chi.Router) {
		r.Get("/", h.ListVendors)
		r.Post("/", h.CreateVendor)
		r.Get("/{id}", h.GetVendor)
		r.Delete("/{id}", h.DeleteVendor)
	})
	r.Route("/projects", func(r chi.Router) {
		r.Get("/", h.ListProjects)
		r.Post("/", h.CreateProject)
		r.Get("/{id}", h.GetProject)
		r.Delete("/{id}", h.DeleteProject)
		r.Put("/{id}/vendors/{vendorID}", h.LinkVendor)
		r.Delete("/{id}/vendors/{vendorID}", h.UnlinkVendor)
	})
	r.Route("/labor", func(r chi.Router) {
		r.Get("/", h.ListLabor)
		r.Post("/", h.CreateLabor)
		r.Delete("/{id}", h.DeleteLabor)
	})
}
