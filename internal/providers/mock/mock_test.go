package mock

import (
	"context"
	"testing"

	"github.com/BearBump/RiderTrack/internal/providers"
	"github.com/stretchr/testify/require"
)

func createInput(orderID uint64) providers.CreateDeliveryInput {
	return providers.CreateDeliveryInput{OrderID: orderID, TrackingNumber: "T1"}
}

func webhookInput() providers.WebhookVerifyInput {
	return providers.WebhookVerifyInput{}
}

func TestProvider_GetDelivery_Deterministic(t *testing.T) {
	p := New()

	a, err := p.GetDelivery(context.Background(), "MOCK-42")
	require.NoError(t, err)
	b, err := p.GetDelivery(context.Background(), "MOCK-42")
	require.NoError(t, err)

	require.Equal(t, a.ExternalDeliveryStatus, b.ExternalDeliveryStatus)
	require.Equal(t, *a.Lat, *b.Lat)
	require.Equal(t, *a.Lng, *b.Lng)
	require.Len(t, a.Events, 1)
}

func TestProvider_GetDelivery_RequiresID(t *testing.T) {
	p := New()
	_, err := p.GetDelivery(context.Background(), "")
	require.Error(t, err)
}

func TestProvider_CreateDelivery(t *testing.T) {
	p := New()
	res, err := p.CreateDelivery(context.Background(), createInput(7))
	require.NoError(t, err)
	require.Equal(t, "MOCK-7", res.ExternalDeliveryID)
	require.NotEmpty(t, res.ExternalStatus)

	_, err = p.CreateDelivery(context.Background(), createInput(0))
	require.Error(t, err)
}

func TestProvider_NormalizeWebhook(t *testing.T) {
	p := New()

	ev, err := p.NormalizeWebhook([]byte(`{"externalDeliveryId":"MOCK-1","status":"IN_TRANSIT"}`), webhookInput())
	require.NoError(t, err)
	require.NotNil(t, ev)
	require.Equal(t, "MOCK-1", ev.ExternalDeliveryID)

	// неполный payload — событие игнорируется, а не превращается в ошибку
	ev, err = p.NormalizeWebhook([]byte(`{"status":"IN_TRANSIT"}`), webhookInput())
	require.NoError(t, err)
	require.Nil(t, ev)
}
