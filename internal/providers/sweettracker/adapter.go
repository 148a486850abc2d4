// Package sweettracker — адаптер трекингового API SweetTracker.
// Важно: это query-only API, а не dispatch API. CreateDelivery на самом деле
// выполняет первичный трекинговый лукап по courierCode/trackingNumber,
// а CancelDelivery не поддерживается вовсе.
package sweettracker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/RiderTrack/internal/models"
	"github.com/BearBump/RiderTrack/internal/providers"
	"github.com/BearBump/RiderTrack/internal/status"
	"github.com/pkg/errors"
)

type Config struct {
	APIKey             string
	BaseURL            string
	DefaultCourierCode string
	SandboxMode        bool
	SandboxDelay       time.Duration
	WebhookSecret      string
}

type Adapter struct {
	cfg    Config
	client *Client
}

func New(cfg Config) *Adapter {
	return &Adapter{
		cfg:    cfg,
		client: NewClient(cfg.BaseURL, cfg.APIKey),
	}
}

func (a *Adapter) Name() string { return providers.NameSweetTracker }

// EncodeExternalDeliveryID: "{courierCode}:{trackingNumber}". Кодирование
// обязано round-trip'иться без потерь, иначе getDelivery не найдёт заказ.
func EncodeExternalDeliveryID(courierCode, trackingNumber string) string {
	return courierCode + ":" + trackingNumber
}

func (a *Adapter) decodeExternalDeliveryID(externalDeliveryID string) (code, number string, err error) {
	parts := strings.SplitN(externalDeliveryID, ":", 2)
	if len(parts) == 2 {
		code, number = parts[0], parts[1]
	} else {
		number = parts[0]
	}

	if code == "" {
		// Сегмент кода может потеряться у старых записей — пробуем
		// сконфигурированный дефолтный код перевозчика.
		code = a.cfg.DefaultCourierCode
	}
	code = ResolveCourierCode(code)
	if code == "" {
		return "", "", errors.Errorf("sweettracker: external delivery id %q has no resolvable courier code", externalDeliveryID)
	}
	number = ResolveTrackingNumber(number)
	if number == "" {
		return "", "", errors.Errorf("sweettracker: external delivery id %q has no tracking number", externalDeliveryID)
	}
	return code, number, nil
}

func (a *Adapter) CreateDelivery(ctx context.Context, in providers.CreateDeliveryInput) (providers.CreateDeliveryResult, error) {
	code := ResolveCourierCode(in.CourierCode)
	if code == "" {
		return providers.CreateDeliveryResult{}, errors.Errorf("sweettracker: courier code %q is missing or not resolvable", in.CourierCode)
	}
	number := ResolveTrackingNumber(in.TrackingNumber)
	if number == "" {
		return providers.CreateDeliveryResult{}, errors.New("sweettracker: tracking number is required")
	}

	snap, err := a.fetch(ctx, code, number)
	if err != nil {
		return providers.CreateDeliveryResult{}, err
	}

	return providers.CreateDeliveryResult{
		ExternalDeliveryID: EncodeExternalDeliveryID(code, number),
		ExternalStatus:     snap.ExternalDeliveryStatus,
		TrackingNumber:     number,
		TrackingURL:        trackingURL(code, number),
	}, nil
}

// CancelDelivery всегда отказывает: SweetTracker — трекинговое API без
// dispatch-операций. Это осознанный capability gap, не баг.
func (a *Adapter) CancelDelivery(ctx context.Context, externalDeliveryID string) error {
	return errors.Wrap(providers.ErrCancelNotSupported, "sweettracker is a query-only tracking API")
}

func (a *Adapter) GetDelivery(ctx context.Context, externalDeliveryID string) (models.DeliverySnapshot, error) {
	code, number, err := a.decodeExternalDeliveryID(externalDeliveryID)
	if err != nil {
		return models.DeliverySnapshot{}, err
	}

	snap, err := a.fetch(ctx, code, number)
	if err != nil {
		return models.DeliverySnapshot{}, err
	}
	snap.ExternalDeliveryID = EncodeExternalDeliveryID(code, number)
	return snap, nil
}

func (a *Adapter) fetch(ctx context.Context, code, number string) (models.DeliverySnapshot, error) {
	var (
		info *TrackingInfo
		raw  []byte
		err  error
	)
	if a.cfg.SandboxMode {
		info, raw, err = a.sandboxTrackingInfo(ctx, number)
	} else {
		if a.cfg.APIKey == "" {
			return models.DeliverySnapshot{}, errors.New("sweettracker: api key is not configured")
		}
		info, raw, err = a.client.TrackingInfo(ctx, code, number)
	}
	if err != nil {
		return models.DeliverySnapshot{}, err
	}

	now := time.Now().UTC()
	snap := models.DeliverySnapshot{
		Provider:               providers.NameSweetTracker,
		ExternalDeliveryStatus: resolveExternalStatus(info),
		TrackingNumber:         number,
		TrackingURL:            trackingURL(code, number),
		TrackedAt:              now,
		RawPayload:             json.RawMessage(raw),
	}

	for _, d := range info.TrackingDetails {
		d := d
		ev := &models.DeliveryEvent{
			Status:    externalStatusForLevel(d.Level),
			StatusRaw: d.Kind,
			EventTime: parseEventTime(d.TimeString, now),
		}
		if d.Where != "" {
			ev.Location = &d.Where
		}
		if d.Kind != "" {
			ev.Message = &d.Kind
		}
		snap.Events = append(snap.Events, ev)
	}

	return snap, nil
}

// resolveExternalStatus — многослойный вывод статуса. Полнота ответа
// SweetTracker гуляет от перевозчика к перевозчику, поэтому:
//  1. явный флаг завершения (complete / completeYN="Y") — DELIVERED;
//  2. числовой level, если есть;
//  3. ключевые слова в тексте последнего события;
//  4. иначе REQUESTED.
func resolveExternalStatus(info *TrackingInfo) string {
	if info.Complete != nil && *info.Complete {
		return status.ExternalDelivered
	}
	if strings.EqualFold(strings.TrimSpace(info.CompleteYN), "Y") {
		return status.ExternalDelivered
	}
	if info.Level != nil {
		return externalStatusForLevel(*info.Level)
	}
	if n := len(info.TrackingDetails); n > 0 {
		last := info.TrackingDetails[n-1]
		if s := keywordStatus(last.Kind + " " + last.Where); s != "" {
			return s
		}
	}
	return status.ExternalRequested
}

func externalStatusForLevel(level int) string {
	switch {
	case level >= 6:
		return status.ExternalDelivered
	case level >= 5:
		return status.ExternalArriving
	case level >= 3:
		return status.ExternalInTransit
	default:
		return status.ExternalRequested
	}
}

func keywordStatus(text string) string {
	low := strings.ToLower(text)
	switch {
	case strings.Contains(low, "배달완료") || strings.Contains(low, "delivered") || strings.Contains(low, "완료"):
		return status.ExternalDelivered
	case strings.Contains(low, "배달출발") || strings.Contains(low, "출발") || strings.Contains(low, "out for delivery"):
		return status.ExternalOutForDelivery
	case strings.Contains(low, "배송중") || strings.Contains(low, "이동중") || strings.Contains(low, "간선") || strings.Contains(low, "transit"):
		return status.ExternalInTransit
	default:
		return ""
	}
}

func parseEventTime(timeString string, fallback time.Time) time.Time {
	if timeString == "" {
		return fallback
	}
	// SweetTracker: "2025-01-02 15:04:05" (KST без зоны).
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", timeString, time.UTC); err == nil {
		return t
	}
	return fallback
}

func trackingURL(code, number string) string {
	return fmt.Sprintf("https://trace.sweettracker.co.kr/#/%s/%s", code, number)
}
