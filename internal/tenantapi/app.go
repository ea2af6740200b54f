package tenantapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"saasid/pkg/apperr"
	"saasid/pkg/middleware"
	"saasid/pkg/problems"
)

// App is the tenant-service application container.
type App struct {
	log   *zap.SugaredLogger
	store Store
}

func New(log *zap.SugaredLogger, store Store) *App {
	return &App{log: log, store: store}
}

// Handler builds the HTTP handler with routes and middleware.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(a.log))
	r.Use(chimw.RealIP)

	r.Get("/tenant/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	r.Post("/tenant", a.createTenant)
	r.Get("/tenants", a.listTenants)
	r.Get("/tenant/{id}", a.getTenant)
	r.Put("/tenant/{id}", a.updateTenant)
	r.Delete("/tenant/{id}", a.deactivateTenant)

	return r
}

func (a *App) createTenant(w http.ResponseWriter, r *http.Request) {
	var t Tenant
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		a.problem(w, apperr.Wrap(err, apperr.InvalidArgument, "decode tenant"))
		return
	}
	if t.ID == "" {
		a.problem(w, apperr.New(apperr.InvalidArgument, "tenant id is required"))
		return
	}
	if t.Tier == "" {
		t.Tier = "Standard"
	}
	if err := a.store.Create(r.Context(), t); err != nil {
		a.problem(w, err)
		return
	}
	writeJSON(w, t, http.StatusCreated)
}

func (a *App) listTenants(w http.ResponseWriter, r *http.Request) {
	out, err := a.store.List(r.Context())
	if err != nil {
		a.problem(w, err)
		return
	}
	writeJSON(w, out, http.StatusOK)
}

func (a *App) getTenant(w http.ResponseWriter, r *http.Request) {
	t, err := a.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.problem(w, err)
		return
	}
	writeJSON(w, t, http.StatusOK)
}

func (a *App) updateTenant(w http.ResponseWriter, r *http.Request) {
	var u Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		a.problem(w, apperr.Wrap(err, apperr.InvalidArgument, "decode tenant update"))
		return
	}
	t, err := a.store.Update(r.Context(), chi.URLParam(r, "id"), u)
	if err != nil {
		a.problem(w, err)
		return
	}
	writeJSON(w, t, http.StatusOK)
}

// deactivateTenant disables the tenant record. Infrastructure teardown
// happens through the user service; the record stays for audit.
func (a *App) deactivateTenant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.store.Deactivate(r.Context(), id); err != nil {
		a.problem(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "deactivated", "tenantId": id}, http.StatusOK)
}

func (a *App) problem(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	var status int
	var slug string
	switch kind {
	case apperr.InvalidArgument:
		status, slug = http.StatusBadRequest, "invalid-request"
	case apperr.NotFound:
		status, slug = http.StatusNotFound, "not-found"
	case apperr.Conflict:
		status, slug = http.StatusConflict, "tenant-exists"
	default:
		status, slug = http.StatusBadGateway, "upstream-failure"
		a.log.Errorw("request failed", "kind", kind, "err", err)
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   problems.Type(slug),
		"title":  string(kind),
		"status": status,
		"detail": apperr.Message(err),
	})
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
