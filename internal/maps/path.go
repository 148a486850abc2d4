// Package maps — отрисовка живой карты доставки: интерполяция пути,
// анимация маркера курьера и управление оверлеями через интерфейс Canvas.
package maps

import (
	"math"

	"github.com/BearBump/RiderTrack/internal/models"
)

func segmentLength(a, b models.RoutePoint) float64 {
	dLat := b.Lat - a.Lat
	dLng := b.Lng - a.Lng
	return math.Sqrt(dLat*dLat + dLng*dLng)
}

// PathLength — сумма евклидовых длин сегментов полилинии.
func PathLength(path []models.RoutePoint) float64 {
	total := 0.0
	for i := 0; i+1 < len(path); i++ {
		total += segmentLength(path[i], path[i+1])
	}
	return total
}

// PointOnPath возвращает точку на полилинии на доле progress ∈ [0,1] от её
// накопленной длины, с линейной интерполяцией внутри сегмента.
// Вырожденные случаи: одна точка — она сама; progress вне [0,1] — клампится
// к концам; нулевая суммарная длина — последняя точка.
func PointOnPath(path []models.RoutePoint, progress float64) models.RoutePoint {
	if len(path) == 0 {
		return models.RoutePoint{}
	}
	if len(path) == 1 {
		return path[0]
	}
	if progress <= 0 {
		return path[0]
	}
	if progress >= 1 {
		return path[len(path)-1]
	}

	total := PathLength(path)
	if total == 0 {
		return path[len(path)-1]
	}

	target := progress * total
	acc := 0.0
	for i := 0; i+1 < len(path); i++ {
		seg := segmentLength(path[i], path[i+1])
		if seg == 0 {
			continue
		}
		if acc+seg >= target {
			t := (target - acc) / seg
			return models.RoutePoint{
				Lat: path[i].Lat + (path[i+1].Lat-path[i].Lat)*t,
				Lng: path[i].Lng + (path[i+1].Lng-path[i].Lng)*t,
			}
		}
		acc += seg
	}
	return path[len(path)-1]
}

// EaseInOutQuad — квадратичный ease-in-out: маркер замедляется на концах пути
// вместо движения с постоянной скоростью.
func EaseInOutQuad(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	if t < 0.5 {
		return 2 * t * t
	}
	return 1 - math.Pow(-2*t+2, 2)/2
}

// Bounds — расширяемая рамка вьюпорта.
type Bounds struct {
	MinLat, MinLng float64
	MaxLat, MaxLng float64
	set            bool
}

func (b *Bounds) Extend(p models.RoutePoint) {
	if !b.set {
		b.MinLat, b.MaxLat = p.Lat, p.Lat
		b.MinLng, b.MaxLng = p.Lng, p.Lng
		b.set = true
		return
	}
	b.MinLat = math.Min(b.MinLat, p.Lat)
	b.MaxLat = math.Max(b.MaxLat, p.Lat)
	b.MinLng = math.Min(b.MinLng, p.Lng)
	b.MaxLng = math.Max(b.MaxLng, p.Lng)
}

func (b *Bounds) ExtendPath(path []models.RoutePoint) {
	for _, p := range path {
		b.Extend(p)
	}
}

func (b *Bounds) IsEmpty() bool { return !b.set }
