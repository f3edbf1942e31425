package purchase

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns billing router
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/tiers", h.ListTiers)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/checkout", h.Checkout)
		r.Get("/history", h.History)
	})

	return r
}

// WebhookRoutes returns the provider callback router (no auth, HMAC signed)
func (h *Handler) WebhookRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/checkout", h.Webhook)
	return r
}

// AdminRoutes returns admin-only credit grant routes
func (h *Handler) AdminRoutes(authMiddleware, adminMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(adminMiddleware)
		r.Post("/users/{id}/credits/grant", h.GrantCredits)
	})

	return r
}
