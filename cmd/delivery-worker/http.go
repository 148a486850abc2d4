package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BearBump/RiderTrack/config"
	"github.com/BearBump/RiderTrack/internal/services/poller"
)

type workerHTTPOpts struct {
	httpAddr string
	onListen func(httpAddr string)

	poller *poller.Poller
	cfg    *config.Config
}

// runWorkerHTTPServer поднимает отладочный HTTP воркера: health-пробы,
// статистика опроса, операционный конфиг без секретов и ручной триггер цикла.
func runWorkerHTTPServer(ctx context.Context, opts workerHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.poller == nil {
			_, _ = w.Write([]byte(`{"error":"poller not wired"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(opts.poller.Stats())
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.cfg == nil {
			_, _ = w.Write([]byte(`{"error":"config not wired"}`))
			return
		}
		// Секреты в дамп не попадают, только операционные настройки воркера.
		out := map[string]any{
			"pollIntervalSeconds":             opts.cfg.Delivery.WorkerPollIntervalSeconds,
			"batchSize":                       opts.cfg.Delivery.WorkerBatchSize,
			"concurrency":                     opts.cfg.Delivery.WorkerConcurrency,
			"leaseSeconds":                    opts.cfg.Delivery.WorkerLeaseSeconds,
			"rateLimitPerMinute":              opts.cfg.Delivery.WorkerRateLimitPerMinute,
			"rateLimitSweetTrackerPerMinute":  opts.cfg.Delivery.WorkerRateLimitSweetTrackerPerMinute,
			"nextCheckActiveMinSeconds":       opts.cfg.Delivery.WorkerNextCheckActiveMinSeconds,
			"nextCheckActiveMaxSeconds":       opts.cfg.Delivery.WorkerNextCheckActiveMaxSeconds,
			"nextCheckPreparingSeconds":       opts.cfg.Delivery.WorkerNextCheckPreparingSeconds,
			"providerMode":                    opts.cfg.Delivery.ProviderMode,
			"externalProvider":                opts.cfg.Delivery.ExternalProvider,
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.poller == nil {
			_, _ = w.Write([]byte(`{"error":"poller not wired"}`))
			return
		}
		opts.poller.Trigger()
		_, _ = w.Write([]byte(`{"triggered":true}`))
	})

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	return srv.Serve(lis)
}
