package registration

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

// App is the registration-service application container.
type App struct {
	log *zap.SugaredLogger
	svc *Service
}

func New(log *zap.SugaredLogger, svc *Service) *App {
	return &App{log: log, svc: svc}
}

// Handler builds the HTTP handler with routes and middleware.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(a.log))
	r.Use(chimw.RealIP)

	r.Get("/registration/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	r.Post("/registration", a.registerTenant)

	return r
}

func (a *App) registerTenant(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.problem(w, apperr.Wrap(err, apperr.InvalidArgument, "decode registration"))
		return
	}
	res, err := a.svc.Register(r.Context(), req)
	if err != nil {
		a.problem(w, err)
		return
	}
	a.log.Infow("tenant onboarded", "tenant", res.TenantID, "admin", res.Admin.UserName)
	writeJSON(w, res, http.StatusCreated)
}

func (a *App) problem(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	var status int
	var slug string
	switch kind {
	case apperr.InvalidArgument:
		status, slug = http.StatusBadRequest, "invalid-request"
	case apperr.Conflict:
		status, slug = http.StatusConflict, "user-exists"
	case apperr.IdentityCreationFailed:
		status, slug = http.StatusUnprocessableEntity, "identity-rejected"
	default:
		status, slug = http.StatusBadGateway, "upstream-failure"
		a.log.Errorw("registration failed", "kind", kind, "err", err)
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
