package internalprov

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/BearBump/RiderTrack/internal/providers"
	"github.com/BearBump/RiderTrack/internal/status"
	"github.com/stretchr/testify/require"
)

func TestProvider_CreateThenGet(t *testing.T) {
	mr := miniredis.RunT(t)
	p := New(mr.Addr())
	ctx := context.Background()

	res, err := p.CreateDelivery(ctx, providers.CreateDeliveryInput{OrderID: 11})
	require.NoError(t, err)
	require.Equal(t, "INT-11", res.ExternalDeliveryID)

	snap, err := p.GetDelivery(ctx, res.ExternalDeliveryID)
	require.NoError(t, err)
	require.Equal(t, status.ExternalRequested, snap.ExternalDeliveryStatus)
	require.Nil(t, snap.Lat)
}

func TestProvider_GetDelivery_ReadsFleetRecord(t *testing.T) {
	mr := miniredis.RunT(t)
	p := New(mr.Addr())
	ctx := context.Background()

	mr.Set("fleet:delivery:INT-5", `{"status":"OUT_FOR_DELIVERY","lat":37.5,"lng":127.02,"updatedAt":"2025-01-01T00:00:00Z"}`)

	snap, err := p.GetDelivery(ctx, "INT-5")
	require.NoError(t, err)
	require.Equal(t, "OUT_FOR_DELIVERY", snap.ExternalDeliveryStatus)
	require.NotNil(t, snap.Lat)
	require.InDelta(t, 37.5, *snap.Lat, 1e-9)
}

func TestProvider_GetDelivery_MissingIsRequested(t *testing.T) {
	mr := miniredis.RunT(t)
	p := New(mr.Addr())

	snap, err := p.GetDelivery(context.Background(), "INT-404")
	require.NoError(t, err)
	require.Equal(t, status.ExternalRequested, snap.ExternalDeliveryStatus)
}

func TestProvider_CancelDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	p := New(mr.Addr())
	ctx := context.Background()

	_, err := p.CreateDelivery(ctx, providers.CreateDeliveryInput{OrderID: 3})
	require.NoError(t, err)
	require.NoError(t, p.CancelDelivery(ctx, "INT-3"))
	require.False(t, mr.Exists("fleet:delivery:INT-3"))
}
