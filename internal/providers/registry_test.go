package providers

import (
	"context"
	"testing"

	"github.com/BearBump/RiderTrack/internal/models"
	"github.com/stretchr/testify/require"
)

type stubProvider struct{ name string }

func (s stubProvider) Name() string { return s.name }
func (s stubProvider) CreateDelivery(ctx context.Context, in CreateDeliveryInput) (CreateDeliveryResult, error) {
	return CreateDeliveryResult{}, nil
}
func (s stubProvider) CancelDelivery(ctx context.Context, id string) error { return nil }
func (s stubProvider) GetDelivery(ctx context.Context, id string) (models.DeliverySnapshot, error) {
	return models.DeliverySnapshot{Provider: s.name}, nil
}
func (s stubProvider) NormalizeWebhook(payload []byte, v WebhookVerifyInput) (*NormalizedWebhookEvent, error) {
	return nil, nil
}
func (s stubProvider) VerifyWebhook(v WebhookVerifyInput) bool { return true }

func TestNormalizeMode(t *testing.T) {
	require.Equal(t, ModeExternal, NormalizeMode("external"))
	require.Equal(t, ModeExternal, NormalizeMode(" EXTERNAL "))
	require.Equal(t, ModeInternal, NormalizeMode("internal"))
	require.Equal(t, ModeMock, NormalizeMode("mock"))
	require.Equal(t, ModeMock, NormalizeMode(""))
	require.Equal(t, ModeMock, NormalizeMode("whatever"))
}

func TestNormalizeExternalName(t *testing.T) {
	require.Equal(t, NameSweetTracker, NormalizeExternalName("sweettracker"))
	require.Equal(t, NameSweetTracker, NormalizeExternalName("Sweet-Tracker"))
	require.Equal(t, NameSweetTracker, NormalizeExternalName("unheard-of"))
	require.Equal(t, NameSweetTracker, NormalizeExternalName(""))
}

func TestRegistry_DispatchProvider(t *testing.T) {
	mock := stubProvider{name: NameMock}
	st := stubProvider{name: NameSweetTracker}
	internal := stubProvider{name: NameInternal}

	r := NewRegistry("external", "sweettracker", mock, st, internal)
	require.Equal(t, NameSweetTracker, r.DispatchProvider().Name())

	r = NewRegistry("internal", "", mock, st, internal)
	require.Equal(t, NameInternal, r.DispatchProvider().Name())

	r = NewRegistry("bogus", "", mock, st, internal)
	require.Equal(t, NameMock, r.DispatchProvider().Name())

	// external mode, но внешний провайдер не зарегистрирован — падаем на mock
	r = NewRegistry("external", "sweettracker", mock)
	require.Equal(t, NameMock, r.DispatchProvider().Name())
}

func TestRegistry_ByNameNeverNil(t *testing.T) {
	mock := stubProvider{name: NameMock}
	r := NewRegistry("mock", "", mock, stubProvider{name: NameSweetTracker})

	require.Equal(t, NameSweetTracker, r.ByName("SweetTracker").Name())
	require.Equal(t, NameMock, r.ByName("nope").Name())
	require.Equal(t, NameMock, r.ByName("").Name())
}
