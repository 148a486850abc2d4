package maps

import (
	"log/slog"
	"sync"
	"time"

	"github.com/BearBump/RiderTrack/internal/models"
)

// Animation — хэндл запущенной анимации. Отмена кооперативная: флаг
// проверяется на каждом кадре, горутина никогда не убивается насильно.
type Animation struct {
	cancelOnce sync.Once
	cancel     chan struct{}
	done       chan struct{}
}

func (a *Animation) Cancel() {
	a.cancelOnce.Do(func() { close(a.cancel) })
}

// Done закрывается, когда анимация доиграла или была отменена.
func (a *Animation) Done() <-chan struct{} { return a.done }

// Animator двигает маркер вдоль пути за фиксированную длительность.
// Прогресс считается от wall-clock, а не от номера кадра: при просадке
// частоты кадров маркер всё равно приедет вовремя.
type Animator struct {
	duration time.Duration
	frame    time.Duration
}

const (
	defaultAnimationDuration = 1100 * time.Millisecond
	defaultFrameInterval     = 16 * time.Millisecond
)

func NewAnimator(duration time.Duration) *Animator {
	if duration <= 0 {
		duration = defaultAnimationDuration
	}
	return &Animator{duration: duration, frame: defaultFrameInterval}
}

// Start запускает анимацию и сразу возвращает хэндл.
// onFrame вызывается с промежуточной точкой; паника в колбэке (например,
// обращение к уже разобранной карте) логируется и гасится — анимация
// не должна ронять рендеринг.
func (an *Animator) Start(path []models.RoutePoint, onFrame func(models.RoutePoint)) *Animation {
	anim := &Animation{
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(anim.done)

		if len(path) == 0 {
			return
		}

		start := time.Now()
		t := time.NewTicker(an.frame)
		defer t.Stop()

		for {
			select {
			case <-anim.cancel:
				return
			case now := <-t.C:
				progress := float64(now.Sub(start)) / float64(an.duration)
				if progress >= 1 {
					safeFrame(onFrame, PointOnPath(path, 1))
					return
				}
				safeFrame(onFrame, PointOnPath(path, EaseInOutQuad(progress)))
			}
		}
	}()

	return anim
}

func safeFrame(onFrame func(models.RoutePoint), p models.RoutePoint) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("animation frame panic", "panic", r)
		}
	}()
	onFrame(p)
}
