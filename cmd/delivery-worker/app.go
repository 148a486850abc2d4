package main

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/RiderTrack/config"
	"github.com/BearBump/RiderTrack/internal/broker/kafka"
	"github.com/BearBump/RiderTrack/internal/broker/messages"
	"github.com/BearBump/RiderTrack/internal/cache/rediscache"
	"github.com/BearBump/RiderTrack/internal/providers"
	"github.com/BearBump/RiderTrack/internal/providers/internalprov"
	"github.com/BearBump/RiderTrack/internal/providers/mock"
	"github.com/BearBump/RiderTrack/internal/providers/sweettracker"
	"github.com/BearBump/RiderTrack/internal/services/poller"
	"github.com/BearBump/RiderTrack/internal/storage/pgdelivery"
)

type workerFactories struct {
	newStorage     func(cfg *config.Config) (repo poller.Repository, closeFn func(), err error)
	newProducer    func(cfg *config.Config) poller.Producer
	newRateLimiter func(cfg *config.Config) poller.RateLimiter
	newRegistry    func(cfg *config.Config) *providers.Registry
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (poller.Repository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgdelivery.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) poller.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) poller.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newRegistry: func(cfg *config.Config) *providers.Registry {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)

			rest := []providers.Provider{internalprov.New(redisAddr)}
			if cfg.SweetTracker.APIKey != "" || cfg.SweetTracker.SandboxMode {
				rest = append(rest, sweettracker.New(sweettracker.Config{
					APIKey:             cfg.SweetTracker.APIKey,
					BaseURL:            cfg.SweetTracker.BaseURL,
					DefaultCourierCode: cfg.SweetTracker.DefaultCourierCode,
					SandboxMode:        cfg.SweetTracker.SandboxMode,
					SandboxDelay:       time.Duration(cfg.SweetTracker.SandboxDelayMS) * time.Millisecond,
					WebhookSecret:      cfg.SweetTracker.WebhookSecret,
				}))
			}
			return providers.NewRegistry(cfg.Delivery.ProviderMode, cfg.Delivery.ExternalProvider, mock.New(), rest...)
		},
	}
}

func buildPoller(cfg *config.Config, f workerFactories) (*poller.Poller, func(), error) {
	topic := cfg.Kafka.DeliveryUpdatedTopicName
	if topic == "" {
		topic = messages.TopicDeliveryUpdated
	}

	pollInterval := time.Duration(cfg.Delivery.WorkerPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	batchSize := cfg.Delivery.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	concurrency := cfg.Delivery.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	lease := time.Duration(cfg.Delivery.WorkerLeaseSeconds) * time.Second
	if lease <= 0 {
		lease = 120 * time.Second
	}
	rlPerMin := int64(cfg.Delivery.WorkerRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 120
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return nil, nil, err
	}

	producer := f.newProducer(cfg)
	rl := f.newRateLimiter(cfg)
	registry := f.newRegistry(cfg)

	p := poller.New(repo, registry, producer, rl, topic).
		WithSettings(pollInterval, batchSize, concurrency, lease, rlPerMin).
		WithPlanner(plannerConfig(cfg))

	if cfg.Delivery.WorkerRateLimitSweetTrackerPerMinute > 0 {
		p = p.WithProviderRateLimits(map[string]int64{
			providers.NameSweetTracker: int64(cfg.Delivery.WorkerRateLimitSweetTrackerPerMinute),
		})
	}

	return p, closeFn, nil
}

func plannerConfig(cfg *config.Config) poller.PlannerConfig {
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return poller.PlannerConfig{
		ActiveMinDelay: sec(cfg.Delivery.WorkerNextCheckActiveMinSeconds),
		ActiveMaxDelay: sec(cfg.Delivery.WorkerNextCheckActiveMaxSeconds),
		PreparingDelay: sec(cfg.Delivery.WorkerNextCheckPreparingSeconds),
		Backoff1:       sec(cfg.Delivery.WorkerBackoff1Seconds),
		Backoff2:       sec(cfg.Delivery.WorkerBackoff2Seconds),
		Backoff3:       sec(cfg.Delivery.WorkerBackoff3Seconds),
		Backoff4:       sec(cfg.Delivery.WorkerBackoff4Seconds),
	}
}

func RunDeliveryWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	p, closeFn, err := buildPoller(cfg, f)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	return p.Run(ctx)
}
