package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/RiderTrack/config"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	p, closeFn, err := buildPoller(cfg, defaultWorkerFactories())
	if err != nil {
		panic(err)
	}
	if closeFn != nil {
		defer closeFn()
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr: cfg.Delivery.WorkerHTTPAddr,
			poller:   p,
			cfg:      cfg,
			onListen: func(addr string) {
				slog.Info("worker HTTP listening", "addr", addr)
			},
		})
	}()

	pollErr := make(chan error, 1)
	go func() {
		pollErr <- p.Run(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-pollErr:
		if err != nil && err != context.Canceled {
			panic(err)
		}
	case err := <-httpErr:
		if err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}
}
