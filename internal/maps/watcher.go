package maps

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// ViewSource отдаёт актуальное состояние активной доставки для карты.
// Второе значение — адрес доставки: его смена означает новую сессию рендера.
type ViewSource func(ctx context.Context) (RenderView, string, error)

// Watcher опрашивает ViewSource с фиксированным интервалом и прогоняет
// результат через рендерер. Скрытая вкладка опросы не делает — флаг видимости
// переключается снаружи.
type Watcher struct {
	renderer *Renderer
	source   ViewSource
	interval time.Duration

	visible atomic.Bool
	addr    string
}

const defaultPollInterval = 15 * time.Second

func NewWatcher(renderer *Renderer, source ViewSource, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	w := &Watcher{renderer: renderer, source: source, interval: interval}
	w.visible.Store(true)
	return w
}

// SetVisible управляет воротами опроса. false останавливает сетевые вызовы,
// true возобновляет со следующего тика.
func (w *Watcher) SetVisible(v bool) { w.visible.Store(v) }

// Run крутит цикл опроса до отмены контекста. Первый проход — сразу,
// не дожидаясь первого тика.
func (w *Watcher) Run(ctx context.Context) {
	w.poll(ctx)

	t := time.NewTicker(w.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	if !w.visible.Load() {
		return
	}

	view, addr, err := w.source(ctx)
	if err != nil {
		slog.Warn("delivery poll failed", "err", err)
		return
	}

	if w.addr != "" && addr != w.addr {
		// адрес сменился: прошлый курьер и запрет дорог больше не актуальны
		w.renderer.ResetSession()
	}
	w.addr = addr

	if err := w.renderer.Render(ctx, view); err != nil {
		slog.Warn("render failed", "err", err)
	}
}
