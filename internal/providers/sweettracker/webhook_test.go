package sweettracker

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/BearBump/RiderTrack/internal/providers"
	"github.com/BearBump/RiderTrack/internal/status"
	"github.com/stretchr/testify/require"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhook(t *testing.T) {
	a := New(Config{WebhookSecret: "s3cret"})
	body := []byte(`{"invoiceNo":"1"}`)

	require.True(t, a.VerifyWebhook(providers.WebhookVerifyInput{
		Signature: sign("s3cret", body),
		RawBody:   body,
	}))
	require.True(t, a.VerifyWebhook(providers.WebhookVerifyInput{
		Signature: "sha256=" + sign("s3cret", body),
		RawBody:   body,
	}))
	require.False(t, a.VerifyWebhook(providers.WebhookVerifyInput{
		Signature: sign("wrong", body),
		RawBody:   body,
	}))
}

func TestVerifyWebhook_NoSecretIsPermissive(t *testing.T) {
	a := New(Config{})
	require.True(t, a.VerifyWebhook(providers.WebhookVerifyInput{Signature: "", RawBody: []byte("x")}))
}

func TestNormalizeWebhook(t *testing.T) {
	a := New(Config{DefaultCourierCode: "04"})

	ev, err := a.NormalizeWebhook([]byte(`{"invoiceNo":"555","courierCode":"HANJIN","level":6}`), providers.WebhookVerifyInput{})
	require.NoError(t, err)
	require.NotNil(t, ev)
	require.Equal(t, "05:555", ev.ExternalDeliveryID)
	require.Equal(t, status.ExternalDelivered, ev.ExternalStatus)

	// нет кода перевозчика — берём дефолтный
	ev, err = a.NormalizeWebhook([]byte(`{"invoiceNo":"555","completeYN":"Y"}`), providers.WebhookVerifyInput{})
	require.NoError(t, err)
	require.Equal(t, "04:555", ev.ExternalDeliveryID)

	// дефолт-алиас резолвится в числовой код, иначе id не совпадёт с БД
	aliased := New(Config{DefaultCourierCode: "CJ"})
	ev, err = aliased.NormalizeWebhook([]byte(`{"invoiceNo":"777","level":3}`), providers.WebhookVerifyInput{})
	require.NoError(t, err)
	require.Equal(t, "04:777", ev.ExternalDeliveryID)

	// нет накладной — событие бесполезно, но это не ошибка
	ev, err = a.NormalizeWebhook([]byte(`{"level":3}`), providers.WebhookVerifyInput{})
	require.NoError(t, err)
	require.Nil(t, ev)

	_, err = a.NormalizeWebhook([]byte(`{broken`), providers.WebhookVerifyInput{})
	require.Error(t, err)
}
