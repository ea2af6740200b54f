// cmd/user-service/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"saasid/internal/federation"
	"saasid/internal/identity"
	"saasid/internal/journal"
	"saasid/internal/orchestrator"
	"saasid/internal/roles"
	"saasid/internal/userapi"
	"saasid/internal/userstore"
	"saasid/pkg/awsx"
	"saasid/pkg/config"
	"saasid/pkg/db"
	"saasid/pkg/lease"
	"saasid/pkg/logger"
	"saasid/pkg/middleware"
	"saasid/pkg/token"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	awsCfg, err := awsx.Load(ctx, cfg)
	if err != nil {
		log.Fatalw("aws config", "err", err)
	}

	pool := db.MustConnect(cfg, log)
	rdb := db.MustRedis(cfg, log)

	jr := journal.NewNoop()
	if pool != nil {
		if err := journal.EnsureSchema(ctx, pool); err != nil {
			log.Fatalw("journal schema", "err", err)
		}
		jr = journal.NewPostgres(pool)
	}
	cancel()

	ls := lease.NewMemory()
	if rdb != nil {
		ls = lease.NewRedis(rdb)
	}

	idp := identity.NewCognito(awsCfg, cfg)
	fed := federation.NewCognitoIdentity(awsCfg, cfg)
	rp := roles.NewIAM(awsCfg, cfg, log)
	store := userstore.NewDynamo(awsCfg, cfg)

	orch := orchestrator.New(log, idp, fed, rp, store, jr, ls, cfg)

	// Sweep for workflows a crashed replica left behind.
	go func() {
		t := time.NewTicker(5 * time.Minute)
		defer t.Stop()
		for range t.C {
			if err := orch.ReconcileStale(context.Background(), 2*cfg.WorkflowDeadline); err != nil {
				log.Warnw("reconcile", "err", err)
			}
		}
	}()

	app := userapi.New(log, orch, store, idp, token.NewBroker(cfg.TokenServiceURL))

	r := chi.NewRouter()
	r.Use(middleware.Tracing("user-service"))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Mount("/", app.Handler())

	srv := &http.Server{Addr: cfg.UserAddr, Handler: r}
	go func() {
		log.Infow("user-service listening", "addr", cfg.UserAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	_ = srv.Shutdown(sctx)
	fmt.Println("user-service stopped")
}
