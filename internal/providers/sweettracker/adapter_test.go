package sweettracker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BearBump/RiderTrack/internal/providers"
	"github.com/BearBump/RiderTrack/internal/status"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func intp(n int) *int    { return &n }
func boolp(b bool) *bool { return &b }

func TestResolveExternalStatus_Levels(t *testing.T) {
	require.Equal(t, status.ExternalDelivered, resolveExternalStatus(&TrackingInfo{Level: intp(6)}))
	require.Equal(t, status.ExternalArriving, resolveExternalStatus(&TrackingInfo{Level: intp(5)}))
	require.Equal(t, status.ExternalInTransit, resolveExternalStatus(&TrackingInfo{Level: intp(4)}))
	require.Equal(t, status.ExternalInTransit, resolveExternalStatus(&TrackingInfo{Level: intp(3)}))
	require.Equal(t, status.ExternalRequested, resolveExternalStatus(&TrackingInfo{Level: intp(2)}))
	require.Equal(t, status.ExternalRequested, resolveExternalStatus(&TrackingInfo{Level: intp(1)}))
}

func TestResolveExternalStatus_CompleteOverridesLevel(t *testing.T) {
	require.Equal(t, status.ExternalDelivered,
		resolveExternalStatus(&TrackingInfo{Level: intp(2), Complete: boolp(true)}))
	require.Equal(t, status.ExternalDelivered,
		resolveExternalStatus(&TrackingInfo{Level: intp(2), CompleteYN: "Y"}))
	require.Equal(t, status.ExternalDelivered,
		resolveExternalStatus(&TrackingInfo{CompleteYN: " y "}))
}

func TestResolveExternalStatus_KeywordFallback(t *testing.T) {
	require.Equal(t, status.ExternalOutForDelivery, resolveExternalStatus(&TrackingInfo{
		TrackingDetails: []TrackingDetail{{Kind: "집화처리"}, {Kind: "배달출발"}},
	}))
	require.Equal(t, status.ExternalDelivered, resolveExternalStatus(&TrackingInfo{
		TrackingDetails: []TrackingDetail{{Kind: "배달완료", Where: "서울"}},
	}))
	require.Equal(t, status.ExternalInTransit, resolveExternalStatus(&TrackingInfo{
		TrackingDetails: []TrackingDetail{{Kind: "간선상차"}},
	}))
	require.Equal(t, status.ExternalRequested, resolveExternalStatus(&TrackingInfo{
		TrackingDetails: []TrackingDetail{{Kind: "접수"}},
	}))
	require.Equal(t, status.ExternalRequested, resolveExternalStatus(&TrackingInfo{}))
}

func TestAdapter_CreateDelivery_RequiresCodeAndNumber(t *testing.T) {
	a := New(Config{SandboxMode: true})

	_, err := a.CreateDelivery(context.Background(), providers.CreateDeliveryInput{TrackingNumber: "123"})
	require.Error(t, err)

	_, err = a.CreateDelivery(context.Background(), providers.CreateDeliveryInput{CourierCode: "CJ"})
	require.Error(t, err)

	_, err = a.CreateDelivery(context.Background(), providers.CreateDeliveryInput{CourierCode: "bogus", TrackingNumber: "123"})
	require.Error(t, err)
}

func TestAdapter_CreateDelivery_Sandbox(t *testing.T) {
	a := New(Config{SandboxMode: true})

	res, err := a.CreateDelivery(context.Background(), providers.CreateDeliveryInput{
		CourierCode:    "CJ",
		TrackingNumber: " 123456789 ",
	})
	require.NoError(t, err)
	require.Equal(t, "04:123456789", res.ExternalDeliveryID)
	require.NotEmpty(t, res.ExternalStatus)
	require.Contains(t, res.TrackingURL, "04/123456789")
}

func TestAdapter_CancelDelivery_AlwaysFails(t *testing.T) {
	a := New(Config{SandboxMode: true})
	err := a.CancelDelivery(context.Background(), "04:123")
	require.Error(t, err)
	require.True(t, errors.Is(err, providers.ErrCancelNotSupported))
}

func TestAdapter_GetDelivery_DecodesExternalID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/trackingInfo", r.URL.Path)
		require.Equal(t, "k", r.URL.Query().Get("t_key"))
		require.Equal(t, "04", r.URL.Query().Get("t_code"))
		require.Equal(t, "555", r.URL.Query().Get("t_invoice"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "status": true,
  "result": {
    "invoiceNo": "555",
    "level": 5,
    "trackingDetails": [
      {"timeString":"2025-01-02 10:00:00","kind":"집화처리","where":"성남","level":2},
      {"timeString":"2025-01-02 14:00:00","kind":"배달출발","where":"강남","level":5}
    ]
  }
}`))
	}))
	defer srv.Close()

	a := New(Config{APIKey: "k", BaseURL: srv.URL})
	snap, err := a.GetDelivery(context.Background(), "04:555")
	require.NoError(t, err)
	require.Equal(t, status.ExternalArriving, snap.ExternalDeliveryStatus)
	require.Equal(t, "04:555", snap.ExternalDeliveryID)
	require.Len(t, snap.Events, 2)
	require.Equal(t, "강남", *snap.Events[1].Location)
	require.NotEmpty(t, snap.RawPayload)
}

func TestAdapter_GetDelivery_DefaultCourierCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "05", r.URL.Query().Get("t_code"))
		_, _ = w.Write([]byte(`{"status":true,"result":{"invoiceNo":"777","level":3}}`))
	}))
	defer srv.Close()

	a := New(Config{APIKey: "k", BaseURL: srv.URL, DefaultCourierCode: "05"})
	snap, err := a.GetDelivery(context.Background(), ":777")
	require.NoError(t, err)
	require.Equal(t, "05:777", snap.ExternalDeliveryID)

	// без кода и без дефолта — явная ошибка
	a = New(Config{APIKey: "k", BaseURL: srv.URL})
	_, err = a.GetDelivery(context.Background(), ":777")
	require.Error(t, err)
}

func TestAdapter_GetDelivery_UpstreamErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("t_invoice") {
		case "500":
			w.WriteHeader(http.StatusInternalServerError)
		case "apierr":
			_, _ = w.Write([]byte(`{"status":false,"code":"104","msg":"유효하지 않은 운송장번호 입니다."}`))
		default:
			_, _ = w.Write([]byte(`{not json`))
		}
	}))
	defer srv.Close()

	a := New(Config{APIKey: "k", BaseURL: srv.URL})

	_, err := a.GetDelivery(context.Background(), "04:500")
	require.ErrorContains(t, err, "http 500")

	_, err = a.GetDelivery(context.Background(), "04:apierr")
	require.ErrorContains(t, err, "code=104")

	_, err = a.GetDelivery(context.Background(), "04:garbage")
	require.Error(t, err)
}

func TestAdapter_GetDelivery_NoAPIKey(t *testing.T) {
	a := New(Config{})
	_, err := a.GetDelivery(context.Background(), "04:1")
	require.ErrorContains(t, err, "api key")
}
