package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BearBump/RiderTrack/config"
	"github.com/BearBump/RiderTrack/internal/api/deliveryapi"
	"github.com/BearBump/RiderTrack/internal/broker/kafka"
	"github.com/BearBump/RiderTrack/internal/broker/messages"
	"github.com/BearBump/RiderTrack/internal/cache/rediscache"
	"github.com/BearBump/RiderTrack/internal/geo"
	"github.com/BearBump/RiderTrack/internal/providers"
	"github.com/BearBump/RiderTrack/internal/providers/internalprov"
	"github.com/BearBump/RiderTrack/internal/providers/mock"
	"github.com/BearBump/RiderTrack/internal/providers/sweettracker"
	"github.com/BearBump/RiderTrack/internal/routes"
	"github.com/BearBump/RiderTrack/internal/services/delivery"
	"github.com/BearBump/RiderTrack/internal/storage/pgdelivery"
)

type deliveryAPIOpts struct {
	httpAddr string

	topic         string
	consumerGroup string

	naverClientID string

	onListen func(httpAddr string)
}

type deliveryAPIApp struct {
	ctx        context.Context
	cancel     context.CancelFunc
	opts       deliveryAPIOpts
	svc        *delivery.Service
	directions deliveryapi.DirectionsFetcher
	consumer   *kafka.Consumer
	closeDB    func()
}

func mustBootstrapDeliveryAPI() *deliveryAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.Delivery.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.Delivery.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "delivery-api"
	}
	topic := cfg.Kafka.DeliveryUpdatedTopicName
	if topic == "" {
		topic = messages.TopicDeliveryUpdated
	}

	cacheTTL := time.Duration(cfg.Delivery.ActiveCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Second
	}
	geocodeTTL := time.Duration(cfg.Delivery.GeocodeCacheTTLHours) * time.Hour
	if geocodeTTL <= 0 {
		geocodeTTL = 24 * time.Hour
	}

	st := mustOpenPostgresWithRetry(postgresConnString(cfg), 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	geocoder := geo.New(cfg.Naver.GeocodeBaseURL, cfg.Naver.MapsClientID, cfg.Naver.MapsClientSecret).
		WithCache(rc, geocodeTTL)

	registry := buildRegistry(cfg, redisAddr)

	svc := delivery.New(st, registry, geocoder, rc, cacheTTL)

	directions := routes.NewDrivingClient(cfg.Naver.DirectionsBaseURL, cfg.Naver.MapsClientID, cfg.Naver.MapsClientSecret)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &deliveryAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: deliveryAPIOpts{
			httpAddr:      httpAddr,
			topic:         topic,
			consumerGroup: consumerGroup,
			naverClientID: cfg.Naver.MapsClientID,
		},
		svc:        svc,
		directions: directions,
		consumer:   consumer,
		closeDB:    st.Close,
	}
}

func postgresConnString(cfg *config.Config) string {
	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgdelivery.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgdelivery.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

// buildRegistry собирает реестр провайдеров из конфига. Mock регистрируется
// всегда, sweettracker — только когда есть ключ или включён sandbox: адаптер
// без ключа и без sandbox'а бесполезен.
func buildRegistry(cfg *config.Config, redisAddr string) *providers.Registry {
	rest := []providers.Provider{internalprov.New(redisAddr)}

	if cfg.SweetTracker.APIKey != "" || cfg.SweetTracker.SandboxMode {
		rest = append(rest, sweettracker.New(sweettracker.Config{
			APIKey:             cfg.SweetTracker.APIKey,
			BaseURL:            cfg.SweetTracker.BaseURL,
			DefaultCourierCode: cfg.SweetTracker.DefaultCourierCode,
			SandboxMode:        cfg.SweetTracker.SandboxMode,
			SandboxDelay:       time.Duration(cfg.SweetTracker.SandboxDelayMS) * time.Millisecond,
			WebhookSecret:      cfg.SweetTracker.WebhookSecret,
		}))
	}

	return providers.NewRegistry(cfg.Delivery.ProviderMode, cfg.Delivery.ExternalProvider, mock.New(), rest...)
}

func (a *deliveryAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *deliveryAPIApp) Run() error {
	return runDeliveryAPI(a.ctx, a.opts, a.svc, a.directions, a.consumer)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

func runDeliveryAPI(ctx context.Context, opts deliveryAPIOpts, svc *delivery.Service, directions deliveryapi.DirectionsFetcher, consumer kafkaConsumer) error {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	deliveryapi.New(svc, directions, opts.naverClientID).Mount(r)

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: r}
	httpErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", lis.Addr().String())
		httpErr <- srv.Serve(lis)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	go func() {
		slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
		_ = consumer.Consume(ctx, func(_key, value []byte) error {
			var m messages.DeliveryUpdated
			if err := json.Unmarshal(value, &m); err != nil {
				return err
			}
			return svc.ApplyKafkaUpdate(ctx, m)
		})
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	}
}
