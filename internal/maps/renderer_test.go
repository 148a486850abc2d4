package maps

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/RiderTrack/internal/models"
	"github.com/BearBump/RiderTrack/internal/routes"
	"github.com/stretchr/testify/require"
)

type fakeCanvas struct {
	mu       sync.Mutex
	overlays map[string]bool
	polyline map[string][]models.RoutePoint
	styles   map[string]string
	moves    []models.RoutePoint
	removed  []string
	bounds   *Bounds
}

func newFakeCanvas() *fakeCanvas {
	return &fakeCanvas{
		overlays: map[string]bool{},
		polyline: map[string][]models.RoutePoint{},
		styles:   map[string]string{},
	}
}

func (c *fakeCanvas) AddMarker(id string, p models.RoutePoint, label string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overlays[id] = true
	return nil
}

func (c *fakeCanvas) MoveMarker(id string, p models.RoutePoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.moves = append(c.moves, p)
	return nil
}

func (c *fakeCanvas) AddPolyline(id string, path []models.RoutePoint, style string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overlays[id] = true
	c.polyline[id] = path
	c.styles[id] = style
	return nil
}

func (c *fakeCanvas) AddInfoWindow(id string, anchor models.RoutePoint, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overlays[id] = true
	return nil
}

func (c *fakeCanvas) Remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.overlays, id)
	c.removed = append(c.removed, id)
	return nil
}

func (c *fakeCanvas) FitBounds(b Bounds) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bounds = &b
	return nil
}

func (c *fakeCanvas) overlayCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.overlays)
}

type fakeFetcher struct {
	mu       sync.Mutex
	calls    int
	fallback bool
}

func (f *fakeFetcher) FetchRoute(ctx context.Context, start, goal models.RoutePoint) routes.Route {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fallback {
		return routes.StraightLine(start, goal, routes.ReasonHTTPError)
	}
	mid := models.RoutePoint{Lat: (start.Lat + goal.Lat) / 2, Lng: (start.Lng + goal.Lng) / 2}
	return routes.Route{Path: []models.RoutePoint{start, mid, goal}}
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func trackableView() RenderView {
	rider := pt(37.52, 127.01)
	return RenderView{
		Store:       pt(37.4979, 127.0276),
		Destination: pt(37.5665, 126.978),
		Rider:       &rider,
		StatusText:  "배달 중",
	}
}

func waitIdle(t *testing.T, r *Renderer) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.State() == StateIdle {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("renderer did not become idle, state=%s", r.State())
}

func TestRenderer_DrawsFullScene(t *testing.T) {
	canvas := newFakeCanvas()
	fetcher := &fakeFetcher{}
	r := NewRenderer(canvas, fetcher, 50*time.Millisecond)

	require.NoError(t, r.Render(context.Background(), trackableView()))
	waitIdle(t, r)

	// три маршрутных запроса: магазин→курьер, курьер→адрес, анимация
	require.Equal(t, 3, fetcher.callCount())
	// маркеры, инфоокна и две полилинии на месте
	require.Equal(t, 7, canvas.overlayCount())
	require.Equal(t, styleRoad, canvas.styles[polyPrimary])
	require.Len(t, canvas.polyline[polyPrimary], 3)
	require.NotNil(t, canvas.bounds)
	require.False(t, canvas.bounds.IsEmpty())
	// анимация двигала маркер и закончила в точке курьера
	require.NotEmpty(t, canvas.moves)
	require.Equal(t, *trackableView().Rider, canvas.moves[len(canvas.moves)-1])
}

func TestRenderer_NoRiderSkipsRoutes(t *testing.T) {
	canvas := newFakeCanvas()
	fetcher := &fakeFetcher{}
	r := NewRenderer(canvas, fetcher, 50*time.Millisecond)

	view := trackableView()
	view.Rider = nil
	require.NoError(t, r.Render(context.Background(), view))

	require.Zero(t, fetcher.callCount())
	// магазин и адрес с инфоокнами, без курьера и полилиний
	require.Equal(t, 4, canvas.overlayCount())
}

func TestRenderer_TeardownBetweenRenders(t *testing.T) {
	canvas := newFakeCanvas()
	r := NewRenderer(canvas, &fakeFetcher{}, 30*time.Millisecond)

	require.NoError(t, r.Render(context.Background(), trackableView()))
	waitIdle(t, r)
	require.NoError(t, r.Render(context.Background(), trackableView()))
	waitIdle(t, r)

	// перед вторым циклом сняты все семь оверлеев первого
	require.Len(t, canvas.removed, 7)
	require.Equal(t, 7, canvas.overlayCount())
}

func TestRenderer_FallbackDisablesRoadForSession(t *testing.T) {
	canvas := newFakeCanvas()
	fetcher := &fakeFetcher{fallback: true}
	r := NewRenderer(canvas, fetcher, 30*time.Millisecond)

	require.NoError(t, r.Render(context.Background(), trackableView()))
	waitIdle(t, r)
	require.Equal(t, 3, fetcher.callCount())
	require.Equal(t, styleStraight, canvas.styles[polyPrimary])

	// вторая отрисовка дорог не просит вовсе
	require.NoError(t, r.Render(context.Background(), trackableView()))
	waitIdle(t, r)
	require.Equal(t, 3, fetcher.callCount())

	// сброс сессии возвращает дорожные запросы
	r.ResetSession()
	require.NoError(t, r.Render(context.Background(), trackableView()))
	waitIdle(t, r)
	require.Equal(t, 6, fetcher.callCount())
}

func TestRenderer_AnimationStartsFromPrevRider(t *testing.T) {
	canvas := newFakeCanvas()
	r := NewRenderer(canvas, &fakeFetcher{fallback: true}, 40*time.Millisecond)

	view := trackableView()
	require.NoError(t, r.Render(context.Background(), view))
	waitIdle(t, r)

	firstRider := *view.Rider
	moved := pt(37.54, 126.99)
	view.Rider = &moved
	canvas.mu.Lock()
	canvas.moves = nil
	canvas.mu.Unlock()

	require.NoError(t, r.Render(context.Background(), view))
	waitIdle(t, r)

	canvas.mu.Lock()
	defer canvas.mu.Unlock()
	require.NotEmpty(t, canvas.moves)
	// путь анимации начинается у прошлой позиции курьера, а не у магазина
	first := canvas.moves[0]
	require.InDelta(t, firstRider.Lat, first.Lat, 0.02)
	require.InDelta(t, firstRider.Lng, first.Lng, 0.02)
	require.Equal(t, moved, canvas.moves[len(canvas.moves)-1])
}

func TestRenderer_DisposeRejectsFurtherRenders(t *testing.T) {
	canvas := newFakeCanvas()
	r := NewRenderer(canvas, &fakeFetcher{}, 30*time.Millisecond)

	require.NoError(t, r.Render(context.Background(), trackableView()))
	r.Dispose()

	require.Equal(t, StateDisposed, r.State())
	require.Zero(t, canvas.overlayCount())
	require.Error(t, r.Render(context.Background(), trackableView()))
}
