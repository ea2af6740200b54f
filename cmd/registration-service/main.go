// cmd/registration-service/main.go
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

	"saasid/internal/registration"
	"saasid/pkg/config"
	"saasid/pkg/logger"
	"saasid/pkg/middleware"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)

	svc := registration.NewService(cfg.UserServiceURL, cfg.TenantServiceURL)
	app := registration.New(log, svc)

	r := chi.NewRouter()
	r.Use(middleware.Tracing("registration-service"))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Mount("/", app.Handler())

	srv := &http.Server{Addr: cfg.RegAddr, Handler: r}
	go func() {
		log.Infow("registration-service listening", "addr", cfg.RegAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	fmt.Println("registration-service stopped")
}
