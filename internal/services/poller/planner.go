package poller

import (
	"math/rand"
	"time"

	"github.com/BearBump/RiderTrack/internal/models"
)

type Rand interface {
	Intn(n int) int
}

type PlannerConfig struct {
	DeliveredDelay time.Duration // default: 365 days

	ActiveMinDelay time.Duration // default: 1 minute
	ActiveMaxDelay time.Duration // default: 1 minute

	PreparingDelay time.Duration // default: 5 minutes
	UnknownDelay   time.Duration // default: 5 minutes

	Backoff1 time.Duration // default: 5 minutes
	Backoff2 time.Duration // default: 15 minutes
	Backoff3 time.Duration // default: 30 minutes
	Backoff4 time.Duration // default: 60 minutes
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		DeliveredDelay: 365 * 24 * time.Hour,

		// Пока курьер едет, опрашиваем часто; разброс min..max размазывает
		// нагрузку на API провайдера.
		ActiveMinDelay: 1 * time.Minute,
		ActiveMaxDelay: 1 * time.Minute,

		PreparingDelay: 5 * time.Minute,
		UnknownDelay:   5 * time.Minute,

		Backoff1: 5 * time.Minute,
		Backoff2: 15 * time.Minute,
		Backoff3: 30 * time.Minute,
		Backoff4: 60 * time.Minute,
	}
}

type Planner struct {
	cfg PlannerConfig
	r   Rand
}

func NewPlanner(cfg PlannerConfig, r Rand) *Planner {
	def := DefaultPlannerConfig()
	if cfg.DeliveredDelay <= 0 {
		cfg.DeliveredDelay = def.DeliveredDelay
	}
	if cfg.ActiveMinDelay <= 0 {
		cfg.ActiveMinDelay = def.ActiveMinDelay
	}
	if cfg.ActiveMaxDelay <= 0 {
		cfg.ActiveMaxDelay = def.ActiveMaxDelay
	}
	if cfg.ActiveMaxDelay < cfg.ActiveMinDelay {
		cfg.ActiveMaxDelay = cfg.ActiveMinDelay
	}
	if cfg.PreparingDelay <= 0 {
		cfg.PreparingDelay = def.PreparingDelay
	}
	if cfg.UnknownDelay <= 0 {
		cfg.UnknownDelay = def.UnknownDelay
	}
	if cfg.Backoff1 <= 0 {
		cfg.Backoff1 = def.Backoff1
	}
	if cfg.Backoff2 <= 0 {
		cfg.Backoff2 = def.Backoff2
	}
	if cfg.Backoff3 <= 0 {
		cfg.Backoff3 = def.Backoff3
	}
	if cfg.Backoff4 <= 0 {
		cfg.Backoff4 = def.Backoff4
	}
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Planner{cfg: cfg, r: r}
}

// NextCheckDelay планирует следующий опрос по внутреннему статусу доставки.
// DELIVERED паркуется надолго, активная доставка опрашивается часто.
func (p *Planner) NextCheckDelay(deliveryStatus string) time.Duration {
	switch deliveryStatus {
	case models.DeliveryStatusDelivered:
		return p.cfg.DeliveredDelay
	case models.DeliveryStatusInDelivery, models.DeliveryStatusArriving:
		min := p.cfg.ActiveMinDelay
		max := p.cfg.ActiveMaxDelay
		if max == min {
			return min
		}
		secMin := int(min.Seconds())
		secMax := int(max.Seconds())
		if secMin < 0 {
			secMin = 0
		}
		if secMax < secMin {
			secMax = secMin
		}
		return time.Duration(secMin+p.r.Intn(secMax-secMin+1)) * time.Second
	case models.DeliveryStatusOrderComplete, models.DeliveryStatusPreparing:
		return p.cfg.PreparingDelay
	default:
		return p.cfg.UnknownDelay
	}
}

func (p *Planner) BackoffDelay(nextFailCount int32) time.Duration {
	switch {
	case nextFailCount <= 1:
		return p.cfg.Backoff1
	case nextFailCount == 2:
		return p.cfg.Backoff2
	case nextFailCount == 3:
		return p.cfg.Backoff3
	default:
		return p.cfg.Backoff4
	}
}
