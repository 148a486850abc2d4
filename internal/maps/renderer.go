package maps

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BearBump/RiderTrack/internal/models"
	"github.com/BearBump/RiderTrack/internal/routes"
)

// Canvas — поверхность, на которой рендерер рисует доставку. Реализация
// транслирует вызовы конкретному картографическому виджету; рендерер о нём
// ничего не знает и одинаково работает с настоящей картой и с фейком в тестах.
type Canvas interface {
	AddMarker(id string, p models.RoutePoint, label string) error
	MoveMarker(id string, p models.RoutePoint) error
	AddPolyline(id string, path []models.RoutePoint, style string) error
	AddInfoWindow(id string, anchor models.RoutePoint, content string) error
	Remove(id string) error
	FitBounds(b Bounds) error
}

// RouteFetcher отдаёт маршрут между двумя точками. Ошибок нет по контракту:
// неудача превращается в двухточечный fallback внутри реализации.
type RouteFetcher interface {
	FetchRoute(ctx context.Context, start, goal models.RoutePoint) routes.Route
}

// Состояния рендерера. Движение только вперёд в пределах одного цикла,
// ResetSession возвращает к Idle.
const (
	StateIdle          = "IDLE"
	StateRoutesFetched = "ROUTES_FETCHED"
	StateAnimating     = "ANIMATING"
	StateDisposed      = "DISPOSED"
)

const (
	markerStore   = "marker:store"
	markerDest    = "marker:destination"
	markerRider   = "marker:rider"
	polyPrimary   = "poly:store-rider"
	polySecondary = "poly:rider-destination"
	infoStore     = "info:store"
	infoDest      = "info:destination"
	styleRoad     = "road"
	styleStraight = "straight"
)

// RenderView — входные данные одного цикла отрисовки.
type RenderView struct {
	Store       models.RoutePoint
	Destination models.RoutePoint
	Rider       *models.RoutePoint
	StatusText  string
}

type fetchedRoutes struct {
	primary   *routes.Route // магазин → курьер
	secondary *routes.Route // курьер → адрес
	animation *routes.Route // прошлая позиция курьера → текущая
}

// Renderer ведёт живую карту доставки: маркеры, полилинии, анимация курьера.
// Потокобезопасен; параллельные Render сериализуются.
type Renderer struct {
	canvas   Canvas
	fetcher  RouteFetcher
	animator *Animator

	mu           sync.Mutex
	state        string
	roadDisabled bool // после первого fallback дорожные запросы в этой сессии не делаются
	prevRider    *models.RoutePoint
	overlays     []string
	anim         *Animation
}

func NewRenderer(canvas Canvas, fetcher RouteFetcher, animationDuration time.Duration) *Renderer {
	return &Renderer{
		canvas:   canvas,
		fetcher:  fetcher,
		animator: NewAnimator(animationDuration),
		state:    StateIdle,
	}
}

func (r *Renderer) State() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Render — полный цикл: снести старые оверлеи, запросить маршруты, нарисовать
// заново, подогнать вьюпорт и запустить анимацию курьера.
func (r *Renderer) Render(ctx context.Context, view RenderView) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateDisposed {
		return fmt.Errorf("renderer is disposed")
	}

	r.cancelAnimationLocked()
	r.teardownLocked()

	animStart := view.Store
	if r.prevRider != nil {
		animStart = *r.prevRider
	}

	fetched := r.fetchRoutesLocked(ctx, view, animStart)
	r.state = StateRoutesFetched

	var bounds Bounds
	bounds.Extend(view.Store)
	bounds.Extend(view.Destination)

	r.addMarker(markerStore, view.Store, "가게")
	r.addInfoWindow(infoStore, view.Store, "가게")
	r.addMarker(markerDest, view.Destination, "배송지")
	r.addInfoWindow(infoDest, view.Destination, view.StatusText)

	if fetched.primary != nil {
		r.addPolyline(polyPrimary, fetched.primary)
		bounds.ExtendPath(fetched.primary.Path)
	}
	if fetched.secondary != nil {
		r.addPolyline(polySecondary, fetched.secondary)
		bounds.ExtendPath(fetched.secondary.Path)
	}

	if view.Rider != nil {
		bounds.Extend(*view.Rider)
		bounds.Extend(animStart)
		if fetched.animation != nil {
			bounds.ExtendPath(fetched.animation.Path)
		}

		r.addMarker(markerRider, animStart, "라이더")
		r.startAnimationLocked(fetched.animation, animStart, *view.Rider)
		rider := *view.Rider
		r.prevRider = &rider
	}

	if err := r.canvas.FitBounds(bounds); err != nil {
		slog.Warn("fit bounds failed", "err", err)
	}
	return nil
}

// fetchRoutesLocked запрашивает до трёх независимых маршрутов параллельно.
// Падение одного плеча не трогает остальные; после первого fallback сессия
// переводится на прямые линии.
func (r *Renderer) fetchRoutesLocked(ctx context.Context, view RenderView, animStart models.RoutePoint) fetchedRoutes {
	var out fetchedRoutes
	if view.Rider == nil {
		return out
	}
	rider := *view.Rider

	roadDisabled := r.roadDisabled

	fetch := func(start, goal models.RoutePoint) routes.Route {
		if roadDisabled {
			return routes.StraightLine(start, goal, "")
		}
		return r.fetcher.FetchRoute(ctx, start, goal)
	}

	var wg sync.WaitGroup
	var primary, secondary, animation routes.Route
	wg.Add(3)
	go func() { defer wg.Done(); primary = fetch(view.Store, rider) }()
	go func() { defer wg.Done(); secondary = fetch(rider, view.Destination) }()
	go func() { defer wg.Done(); animation = fetch(animStart, rider) }()
	wg.Wait()

	if !roadDisabled && (primary.IsFallback || secondary.IsFallback || animation.IsFallback) {
		r.roadDisabled = true
		slog.Warn("road routing failed, session falls back to straight lines",
			"primary", primary.Reason, "secondary", secondary.Reason, "animation", animation.Reason)
	}

	out.primary = &primary
	out.secondary = &secondary
	out.animation = &animation
	return out
}

func (r *Renderer) startAnimationLocked(route *routes.Route, start, goal models.RoutePoint) {
	path := []models.RoutePoint{start, goal}
	if route != nil && len(route.Path) >= 2 {
		path = route.Path
	}

	r.state = StateAnimating
	canvas := r.canvas
	anim := r.animator.Start(path, func(p models.RoutePoint) {
		if err := canvas.MoveMarker(markerRider, p); err != nil {
			slog.Warn("move rider marker failed", "err", err)
		}
	})
	r.anim = anim

	go func() {
		<-anim.Done()
		r.mu.Lock()
		if r.anim == anim && r.state == StateAnimating {
			r.state = StateIdle
		}
		r.mu.Unlock()
	}()
}

func (r *Renderer) addMarker(id string, p models.RoutePoint, label string) {
	if err := r.canvas.AddMarker(id, p, label); err != nil {
		slog.Warn("add marker failed", "id", id, "err", err)
		return
	}
	r.overlays = append(r.overlays, id)
}

func (r *Renderer) addInfoWindow(id string, anchor models.RoutePoint, content string) {
	if err := r.canvas.AddInfoWindow(id, anchor, content); err != nil {
		slog.Warn("add info window failed", "id", id, "err", err)
		return
	}
	r.overlays = append(r.overlays, id)
}

func (r *Renderer) addPolyline(id string, route *routes.Route) {
	style := styleRoad
	if route.IsFallback {
		style = styleStraight
	}
	if err := r.canvas.AddPolyline(id, route.Path, style); err != nil {
		slog.Warn("add polyline failed", "id", id, "err", err)
		return
	}
	r.overlays = append(r.overlays, id)
}

// teardownLocked снимает все оверлеи прошлого цикла. Ошибки логируются и не
// прерывают разбор: частично разобранная карта хуже записи в лог.
func (r *Renderer) teardownLocked() {
	for _, id := range r.overlays {
		if err := r.canvas.Remove(id); err != nil {
			slog.Warn("overlay removal failed", "id", id, "err", err)
		}
	}
	r.overlays = r.overlays[:0]
}

func (r *Renderer) cancelAnimationLocked() {
	if r.anim != nil {
		r.anim.Cancel()
		r.anim = nil
	}
}

// ResetSession сбрасывает сессионное состояние (запрет дорог, прошлая позиция
// курьера). Зовётся при смене адреса доставки или активного заказа.
func (r *Renderer) ResetSession() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateDisposed {
		return
	}
	r.cancelAnimationLocked()
	r.teardownLocked()
	r.roadDisabled = false
	r.prevRider = nil
	r.state = StateIdle
}

// Dispose окончательно разбирает рендерер; дальнейшие Render возвращают ошибку.
func (r *Renderer) Dispose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateDisposed {
		return
	}
	r.cancelAnimationLocked()
	r.teardownLocked()
	r.state = StateDisposed
}
