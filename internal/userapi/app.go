// Package userapi is the user-management HTTP surface: tenant admin
// registration, tenant teardown, record lookup by user id, and the
// tenant-scoped directory listing.
package userapi

import (
	"context"

	"go.uber.org/zap"

	"saasid/internal/identity"
	"saasid/internal/orchestrator"
	"saasid/internal/userstore"
	"saasid/pkg/token"
)

// Lifecycle is the slice of the orchestrator the handlers need.
type Lifecycle interface {
	RegisterTenantAdmin(ctx context.Context, req orchestrator.RegisterRequest) (userstore.Record, error)
	DeprovisionTenant(ctx context.Context, req orchestrator.DeprovisionRequest) error
}

// App is the user-service application container.
// Keep it lean: shared deps only; request-scoped work uses context.
type App struct {
	log       *zap.SugaredLogger
	lifecycle Lifecycle
	store     userstore.Store
	directory identity.Provisioner
	broker    *token.Broker
}

func New(log *zap.SugaredLogger, lc Lifecycle, store userstore.Store, dir identity.Provisioner, broker *token.Broker) *App {
	return &App{
		log:       log,
		lifecycle: lc,
		store:     store,
		directory: dir,
		broker:    broker,
	}
}
