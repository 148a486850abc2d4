// Package poller — воркерная половина трекинга: выбирает заказы, у которых
// подошёл next_check_at, опрашивает провайдера и публикует апдейты в Kafka.
package poller

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/RiderTrack/internal/broker/messages"
	"github.com/BearBump/RiderTrack/internal/cache/rediscache"
	"github.com/BearBump/RiderTrack/internal/models"
	"github.com/BearBump/RiderTrack/internal/providers"
	"github.com/BearBump/RiderTrack/internal/status"
)

type Repository interface {
	ClaimDueDeliveries(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.DeliveryOrder, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Poller struct {
	repo     Repository
	registry *providers.Registry
	producer Producer
	rl       RateLimiter

	topic string

	planner *Planner

	pollInterval       time.Duration
	batchSize          int
	concurrency        int
	lease              time.Duration
	rateLimitPerMinute int64
	providerLimits     map[string]int64

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, registry *providers.Registry, producer Producer, rl RateLimiter, topic string) *Poller {
	return &Poller{
		repo: repo, registry: registry, producer: producer, rl: rl, topic: topic,
		planner:            DefaultPlanner(),
		pollInterval:       2 * time.Second,
		batchSize:          100,
		concurrency:        10,
		lease:              120 * time.Second,
		rateLimitPerMinute: 120,
		triggerCh:          make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func DefaultPlanner() *Planner {
	return NewPlanner(DefaultPlannerConfig(), nil)
}

func (p *Poller) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration, rlPerMin int64) *Poller {
	if pollInterval > 0 {
		p.pollInterval = pollInterval
	}
	if batchSize > 0 {
		p.batchSize = batchSize
	}
	if concurrency > 0 {
		p.concurrency = concurrency
	}
	if lease > 0 {
		p.lease = lease
	}
	if rlPerMin > 0 {
		p.rateLimitPerMinute = rlPerMin
	}
	return p
}

func (p *Poller) WithPlanner(cfg PlannerConfig) *Poller {
	p.planner = NewPlanner(cfg, nil)
	return p
}

// WithProviderRateLimits задаёт персональные лимиты опроса по имени провайдера
// (у SweetTracker своя квота, у внутреннего флота лимит не нужен).
func (p *Poller) WithProviderRateLimits(limits map[string]int64) *Poller {
	if len(limits) > 0 {
		p.providerLimits = limits
	}
	return p
}

// Trigger forces an immediate poll cycle (best-effort, non-blocking).
func (p *Poller) Trigger() {
	p.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed   int64      `json:"totalClaimed"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (p *Poller) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, p.startedAtUnixNano).UTC(),
		TotalClaimed:   p.totalClaimed.Load(),
		TotalProcessed: p.totalProcessed.Load(),
		TotalErrors:    p.totalErrors.Load(),
		InFlight:       p.inFlight.Load(),
	}
	if n := p.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := p.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}

func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.runOnce(ctx)
		case <-p.triggerCh:
			p.runOnce(ctx)
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	p.lastCycleUnixNano.Store(now.UnixNano())

	items, err := p.repo.ClaimDueDeliveries(ctx, now, p.batchSize, p.lease)
	if err != nil {
		slog.Error("claim due deliveries", "error", err.Error())
		p.lastErrorMu.Lock()
		p.lastError = err.Error()
		p.lastErrorMu.Unlock()
		return
	}
	p.totalClaimed.Add(int64(len(items)))

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for _, o := range items {
		sem <- struct{}{}
		wg.Add(1)
		oCopy := o
		p.inFlight.Add(1)
		go func() {
			defer func() {
				p.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := p.processOne(ctx, oCopy); err != nil {
				p.totalErrors.Add(1)
				p.lastErrorMu.Lock()
				p.lastError = err.Error()
				p.lastErrorMu.Unlock()
				slog.Error("process delivery", "order_id", oCopy.ID, "error", err.Error())
			}
			p.totalProcessed.Add(1)
		}()
	}
	wg.Wait()
}

func (p *Poller) processOne(ctx context.Context, order *models.DeliveryOrder) error {
	now := time.Now().UTC()

	if p.rl != nil && p.rateLimitPerMinute > 0 {
		limit := p.rateLimitPerMinute
		if l, ok := p.providerLimits[order.DeliveryProvider]; ok && l > 0 {
			limit = l
		}

		minuteKey := rediscache.ProviderMinuteKey(order.DeliveryProvider, now)
		allowed, n, err := p.rl.Allow(ctx, minuteKey, limit, 70*time.Second)
		if err != nil {
			return err
		}
		if !allowed {
			// Слишком много запросов в минуту: подождём немного, чтобы разгрузить источник.
			slog.Warn("rate limit exceeded", "provider", order.DeliveryProvider, "count", n)
			time.Sleep(500 * time.Millisecond)
		}
	}

	prov := p.registry.ByName(order.DeliveryProvider)
	snap, err := prov.GetDelivery(ctx, order.ExternalDeliveryID)

	msg := messages.DeliveryUpdated{
		OrderID:   order.ID,
		CheckedAt: now,
	}

	if err != nil {
		e := err.Error()
		msg.Error = &e
		nextFail := order.CheckFailCount + 1
		msg.NextCheckAt = now.Add(p.planner.BackoffDelay(nextFail))
	} else {
		msg.DeliveryStatus = status.NextDeliveryStatus(order.DeliveryStatus, snap.ExternalDeliveryStatus)
		msg.ExternalStatus = status.NormalizeExternalStatus(snap.ExternalDeliveryStatus)
		msg.TrackingURL = snap.TrackingURL
		if snap.Lat != nil && snap.Lng != nil {
			msg.RiderLat = snap.Lat
			msg.RiderLng = snap.Lng
			trackedAt := snap.TrackedAt
			if trackedAt.IsZero() {
				trackedAt = now
			}
			msg.RiderUpdatedAt = &trackedAt
		}

		planStatus := msg.DeliveryStatus
		if planStatus == "" {
			planStatus = order.DeliveryStatus
		}
		msg.NextCheckAt = now.Add(p.planner.NextCheckDelay(planStatus))

		for _, e := range snap.Events {
			var payload json.RawMessage
			if e.PayloadJSON != nil && *e.PayloadJSON != "" {
				payload = json.RawMessage(*e.PayloadJSON)
			}
			msg.Events = append(msg.Events, messages.DeliveryEvent{
				Status:    e.Status,
				StatusRaw: e.StatusRaw,
				EventTime: e.EventTime,
				Location:  e.Location,
				Message:   e.Message,
				Payload:   payload,
			})
		}
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal kafka msg")
	}

	// Kafka может быть не готова сразу после старта docker compose.
	// Для устойчивости делаем небольшой retry.
	var pubErr error
	for i := 0; i < 10; i++ {
		if err := p.producer.Publish(ctx, p.topic, msg.Key(), b); err == nil {
			pubErr = nil
			break
		} else {
			pubErr = err
			time.Sleep(time.Duration(150*(i+1)) * time.Millisecond)
		}
	}
	return pubErr
}
