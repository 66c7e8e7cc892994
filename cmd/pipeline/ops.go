package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shiplinehq/shipline/pkg/db"
	"github.com/shiplinehq/shipline/pkg/logger"
	"github.com/shiplinehq/shipline/pkg/redis"
)

// opsServer exposes /healthz and /metrics while a run is in flight. It is
// optional: without an address configured it does nothing.
type opsServer struct {
	logg   *logger.Logger
	server *http.Server
}

func newOpsServer(logg *logger.Logger, addr string, dbClient *db.Client, redisClient *redis.Client) *opsServer {
	if addr == "" {
		return &opsServer{logg: logg}
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := dbClient.Ping(ctx); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		if err := redisClient.Ping(ctx); err != nil {
			http.Error(w, "redis unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	return &opsServer{
		logg:   logg,
		server: &http.Server{Addr: addr, Handler: router},
	}
}

func (o *opsServer) Start(ctx context.Context) {
	if o.server == nil {
		return
	}
	o.logg.Info(o.logg.WithField(ctx, "addr", o.server.Addr), "ops listener starting")
	go func() {
		if err := o.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			o.logg.Error(ctx, "ops listener stopped unexpectedly", err)
		}
	}()
}

func (o *opsServer) Stop() {
	if o.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = o.server.Shutdown(ctx)
}
