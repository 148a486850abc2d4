package poller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BearBump/RiderTrack/internal/models"
)

type fakeRepo struct {
	calls atomic.Int64
}

func (r *fakeRepo) ClaimDueDeliveries(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.DeliveryOrder, error) {
	r.calls.Add(1)
	return []*models.DeliveryOrder{}, nil
}

func TestPoller_Run_StopsOnContextCancel(t *testing.T) {
	repo := &fakeRepo{}
	p := New(repo, mockRegistry(), &fakeProducer{}, nil, "t").
		WithSettings(5*time.Millisecond, 1, 1, time.Second, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := p.Run(ctx)
	require.Error(t, err)
	require.GreaterOrEqual(t, repo.calls.Load(), int64(1))
}

func TestPoller_TriggerForcesCycle(t *testing.T) {
	repo := &fakeRepo{}
	p := New(repo, mockRegistry(), &fakeProducer{}, nil, "t").
		WithSettings(time.Hour, 1, 1, time.Second, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); _ = p.Run(ctx) }()

	p.Trigger()
	require.Eventually(t, func() bool { return repo.calls.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)

	st := p.Stats()
	require.NotNil(t, st.LastTriggerAt)
	cancel()
	<-done
}
