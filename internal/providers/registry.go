package providers

import "strings"

// Режимы выбора провайдера. Неизвестное значение трактуем как mock:
// безопаснее отдать фейковый трекинг, чем уронить оформление заказа.
const (
	ModeExternal = "external"
	ModeMock     = "mock"
	ModeInternal = "internal"
)

// Канонические имена провайдеров.
const (
	NameMock         = "mock"
	NameSweetTracker = "sweettracker"
	NameInternal     = "internal"
)

// NormalizeMode maps a raw mode flag to the closed mode set, defaulting to mock.
func NormalizeMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ModeExternal:
		return ModeExternal
	case ModeInternal:
		return ModeInternal
	default:
		return ModeMock
	}
}

// NormalizeExternalName maps a configured provider string to a canonical name,
// defaulting to the primary integrated provider (sweettracker).
func NormalizeExternalName(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case NameSweetTracker, "sweet-tracker", "sweet_tracker":
		return NameSweetTracker
	default:
		return NameSweetTracker
	}
}

// Registry резолвит адаптер по конфигу (mode + имя провайдера).
// Никогда не возвращает nil и не падает: на всё неизвестное отвечает mock.
type Registry struct {
	mode         string
	externalName string
	byName       map[string]Provider
	mock         Provider
}

func NewRegistry(mode, externalName string, mock Provider, rest ...Provider) *Registry {
	r := &Registry{
		mode:         NormalizeMode(mode),
		externalName: NormalizeExternalName(externalName),
		byName:       map[string]Provider{},
		mock:         mock,
	}
	r.byName[mock.Name()] = mock
	for _, p := range rest {
		r.byName[p.Name()] = p
	}
	return r
}

func (r *Registry) Mode() string { return r.mode }

func (r *Registry) ExternalProviderName() string { return r.externalName }

// DispatchProvider выбирает адаптер для новых dispatch/lookup операций.
func (r *Registry) DispatchProvider() Provider {
	switch r.mode {
	case ModeExternal:
		return r.ByName(r.externalName)
	case ModeInternal:
		return r.ByName(NameInternal)
	default:
		return r.mock
	}
}

// ByName — явный лукап по имени; для незарегистрированного имени отдаёт mock.
func (r *Registry) ByName(name string) Provider {
	if p, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return r.mock
}
