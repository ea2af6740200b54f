package userapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"saasid/pkg/middleware"
)

// Handler builds the HTTP handler with routes and middleware.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(a.log))
	r.Use(chimw.RealIP)

	r.Get("/user/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	r.Post("/user/reg", a.registerTenantAdmin)
	r.Delete("/user/tenants", a.deprovisionTenant)
	r.Get("/user/pool/{id}", a.getUserPool)
	r.Get("/users", a.listUsers)

	return r
}
