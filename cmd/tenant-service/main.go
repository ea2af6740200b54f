// cmd/tenant-service/main.go
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

	"saasid/internal/tenantapi"
	"saasid/pkg/config"
	"saasid/pkg/db"
	"saasid/pkg/logger"
	"saasid/pkg/middleware"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)

	pool := db.MustConnect(cfg, log)
	if pool == nil {
		log.Fatalw("tenant-service requires DATABASE_URL")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := tenantapi.EnsureSchema(ctx, pool); err != nil {
		log.Fatalw("tenant schema", "err", err)
	}
	cancel()

	app := tenantapi.New(log, tenantapi.NewPostgres(pool))

	r := chi.NewRouter()
	r.Use(middleware.Tracing("tenant-service"))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Mount("/", app.Handler())

	srv := &http.Server{Addr: cfg.TenantAddr, Handler: r}
	go func() {
		log.Infow("tenant-service listening", "addr", cfg.TenantAddr)
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
	fmt.Println("tenant-service stopped")
}
