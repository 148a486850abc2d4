package poller

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BearBump/RiderTrack/internal/broker/messages"
	"github.com/BearBump/RiderTrack/internal/models"
	"github.com/BearBump/RiderTrack/internal/providers"
	"github.com/BearBump/RiderTrack/internal/providers/mock"
)

type fakeProducer struct {
	topic string
	key   []byte
	value []byte
	calls int
	err   error
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	p.calls++
	p.topic, p.key, p.value = topic, key, value
	return p.err
}

type fakeRL struct {
	allowed bool
	count   int64
	err     error
	lastKey string
}

func (r *fakeRL) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	r.lastKey = key
	return r.allowed, r.count, r.err
}

func mockRegistry() *providers.Registry {
	return providers.NewRegistry(providers.ModeMock, "", mock.New())
}

func TestPoller_processOne_okPublishes(t *testing.T) {
	fp := &fakeProducer{}
	rl := &fakeRL{allowed: true}
	p := New(nil, mockRegistry(), fp, rl, messages.TopicDeliveryUpdated)

	order := &models.DeliveryOrder{
		ID:                 42,
		DeliveryProvider:   providers.NameMock,
		DeliveryStatus:     models.DeliveryStatusPreparing,
		ExternalDeliveryID: "MOCK-42",
	}
	require.NoError(t, p.processOne(context.Background(), order))
	require.Equal(t, 1, fp.calls)
	require.Equal(t, messages.TopicDeliveryUpdated, fp.topic)
	require.Equal(t, []byte("42"), fp.key)
	require.Contains(t, rl.lastKey, "rl:provider:mock:")

	var msg messages.DeliveryUpdated
	require.NoError(t, json.Unmarshal(fp.value, &msg))
	require.Equal(t, uint64(42), msg.OrderID)
	require.Nil(t, msg.Error)
	require.NotEmpty(t, msg.ExternalStatus)
	require.False(t, msg.NextCheckAt.IsZero())
	require.NotNil(t, msg.RiderLat)
	require.NotNil(t, msg.RiderUpdatedAt)
}

func TestPoller_processOne_errorBackoff(t *testing.T) {
	fp := &fakeProducer{}
	p := New(nil, mockRegistry(), fp, nil, messages.TopicDeliveryUpdated)

	// пустой externalDeliveryId — mock-провайдер ответит ошибкой
	order := &models.DeliveryOrder{ID: 1, DeliveryProvider: providers.NameMock, CheckFailCount: 2}
	require.NoError(t, p.processOne(context.Background(), order))
	require.Equal(t, 1, fp.calls)

	var msg messages.DeliveryUpdated
	require.NoError(t, json.Unmarshal(fp.value, &msg))
	require.NotNil(t, msg.Error)
	// третий фейл подряд — третья ступень лестницы бэкоффа
	require.WithinDuration(t, msg.CheckedAt.Add(30*time.Minute), msg.NextCheckAt, time.Second)
}

func TestPoller_WithSettings(t *testing.T) {
	p := New(nil, mockRegistry(), &fakeProducer{}, nil, "t").
		WithSettings(5*time.Second, 7, 9, 11*time.Second, 13)
	require.Equal(t, 5*time.Second, p.pollInterval)
	require.Equal(t, 7, p.batchSize)
	require.Equal(t, 9, p.concurrency)
	require.Equal(t, 11*time.Second, p.lease)
	require.Equal(t, int64(13), p.rateLimitPerMinute)
}

func TestPoller_WithProviderRateLimits(t *testing.T) {
	rl := &fakeRL{allowed: true}
	p := New(nil, mockRegistry(), &fakeProducer{}, rl, "t").
		WithProviderRateLimits(map[string]int64{providers.NameMock: 5})
	require.Equal(t, int64(5), p.providerLimits[providers.NameMock])
}
