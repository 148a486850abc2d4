package sweettracker

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/RiderTrack/internal/providers"
	"github.com/pkg/errors"
)

// VerifyWebhook проверяет HMAC-SHA256 от сырого тела.
// Без настроенного секрета подпись не проверяется и вебхук принимается —
// поведение унаследовано от исходной интеграции и помечено как open question;
// warning в логе, чтобы это было видно в проде.
func (a *Adapter) VerifyWebhook(v providers.WebhookVerifyInput) bool {
	if a.cfg.WebhookSecret == "" {
		slog.Warn("sweettracker webhook secret is not configured, accepting unsigned webhook")
		return true
	}

	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	_, _ = mac.Write(v.RawBody)
	want := hex.EncodeToString(mac.Sum(nil))

	got := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(v.Signature), "sha256="))
	return hmac.Equal([]byte(want), []byte(got))
}

type webhookPayload struct {
	InvoiceNo  string `json:"invoiceNo"`
	CourierCode string `json:"courierCode"`
	Level      *int   `json:"level"`
	Complete   *bool  `json:"complete"`
	CompleteYN string `json:"completeYN"`
	Kind       string `json:"kind"`
	Where      string `json:"where"`
	TimeString string `json:"timeString"`
}

// NormalizeWebhook приводит пуш SweetTracker к внутреннему событию.
// Возвращает nil без ошибки, если payload валиден, но бесполезен
// (нет номера накладной).
func (a *Adapter) NormalizeWebhook(payload []byte, v providers.WebhookVerifyInput) (*providers.NormalizedWebhookEvent, error) {
	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, errors.Wrap(err, "sweettracker webhook decode")
	}
	number := ResolveTrackingNumber(body.InvoiceNo)
	if number == "" {
		return nil, nil
	}

	code := ResolveCourierCode(body.CourierCode)
	if code == "" {
		// Дефолт тоже прогоняем через резолвер: в конфиге может стоять
		// алиас ("CJ"), а id обязан совпадать с сохранённым "{код}:{номер}".
		code = ResolveCourierCode(a.cfg.DefaultCourierCode)
	}

	info := &TrackingInfo{
		InvoiceNo:  number,
		Level:      body.Level,
		Complete:   body.Complete,
		CompleteYN: body.CompleteYN,
	}
	if body.Kind != "" || body.Where != "" {
		info.TrackingDetails = []TrackingDetail{{Kind: body.Kind, Where: body.Where, TimeString: body.TimeString}}
	}

	occurredAt := parseEventTime(body.TimeString, time.Now().UTC())
	return &providers.NormalizedWebhookEvent{
		Provider:           providers.NameSweetTracker,
		ExternalDeliveryID: EncodeExternalDeliveryID(code, number),
		ExternalStatus:     resolveExternalStatus(info),
		OccurredAt:         occurredAt,
		Raw:                json.RawMessage(payload),
	}, nil
}
