package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BearBump/RiderTrack/config"
	"github.com/BearBump/RiderTrack/internal/models"
	"github.com/BearBump/RiderTrack/internal/providers"
	"github.com/BearBump/RiderTrack/internal/providers/sweettracker"
	"github.com/BearBump/RiderTrack/internal/services/poller"
)

type fakeRepo struct{}

func (r *fakeRepo) ClaimDueDeliveries(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.DeliveryOrder, error) {
	return []*models.DeliveryOrder{}, nil
}

type noopProducer struct{}

func (p noopProducer) Publish(ctx context.Context, topic string, key, value []byte) error { return nil }

func TestDefaultWorkerFactories_RegistryFromConfig(t *testing.T) {
	f := defaultWorkerFactories()

	// sandbox-режим регистрирует sweettracker даже без ключа
	cfgSandbox := &config.Config{
		Delivery:     config.DeliveryConfig{ProviderMode: "external", ExternalProvider: "sweettracker"},
		SweetTracker: config.SweetTrackerConfig{SandboxMode: true},
	}
	reg := f.newRegistry(cfgSandbox)
	_, ok := reg.ByName(providers.NameSweetTracker).(*sweettracker.Adapter)
	require.True(t, ok)
	require.Equal(t, providers.ModeExternal, reg.Mode())

	// без ключа и без sandbox'а внешнего адаптера нет, лукап падает в mock
	cfgBare := &config.Config{
		Delivery: config.DeliveryConfig{ProviderMode: "external", ExternalProvider: "sweettracker"},
	}
	reg = f.newRegistry(cfgBare)
	require.Equal(t, providers.NameMock, reg.ByName(providers.NameSweetTracker).Name())
}

func TestDefaultWorkerFactories_ProducerAndRateLimiter_NonNil(t *testing.T) {
	f := defaultWorkerFactories()
	cfg := &config.Config{
		Kafka: config.KafkaConfig{Host: "localhost", Port: 9092},
		Redis: config.RedisConfig{Host: "localhost", Port: 6379},
	}
	require.NotNil(t, f.newProducer(cfg))
	require.NotNil(t, f.newRateLimiter(cfg))
}

func TestRunDeliveryWorker_ContextCanceled(t *testing.T) {
	calledClose := false

	f := workerFactories{
		newStorage: func(cfg *config.Config) (repo poller.Repository, closeFn func(), err error) {
			return &fakeRepo{}, func() { calledClose = true }, nil
		},
		newProducer: func(cfg *config.Config) poller.Producer {
			return noopProducer{}
		},
		newRateLimiter: func(cfg *config.Config) poller.RateLimiter {
			return nil
		},
		newRegistry: func(cfg *config.Config) *providers.Registry {
			return defaultWorkerFactories().newRegistry(cfg)
		},
	}

	cfg := &config.Config{
		Kafka:    config.KafkaConfig{DeliveryUpdatedTopicName: "t"},
		Delivery: config.DeliveryConfig{WorkerPollIntervalSeconds: 1},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunDeliveryWorker(ctx, cfg, f)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, calledClose)
}
