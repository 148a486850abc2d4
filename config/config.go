package config

import (
	"fmt"
	"os"
	"strconv"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Delivery DeliveryConfig `yaml:"delivery"`

	SweetTracker SweetTrackerConfig `yaml:"sweettracker"`
	Naver        NaverConfig        `yaml:"naver"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                     string `yaml:"host"`
	Port                     int    `yaml:"port"`
	DeliveryUpdatedTopicName string `yaml:"delivery_updated_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DeliveryConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	// mock | external | internal
	ProviderMode     string `yaml:"provider_mode"`
	ExternalProvider string `yaml:"external_provider"`

	ActiveCacheTTLSeconds int `yaml:"active_cache_ttl_seconds"`
	GeocodeCacheTTLHours  int `yaml:"geocode_cache_ttl_hours"`

	WorkerPollIntervalSeconds int `yaml:"worker_poll_interval_seconds"`
	WorkerBatchSize           int `yaml:"worker_batch_size"`
	WorkerConcurrency         int `yaml:"worker_concurrency"`
	WorkerLeaseSeconds        int `yaml:"worker_lease_seconds"`
	WorkerRateLimitPerMinute  int `yaml:"worker_rate_limit_per_minute"`

	WorkerRateLimitSweetTrackerPerMinute int `yaml:"worker_rate_limit_sweettracker_per_minute"`

	WorkerHTTPAddr string `yaml:"worker_http_addr"`

	// Worker scheduling (optional). Defaults: active 1 minute, preparing 5
	// minutes, backoff 5/15/30/60 minutes.
	WorkerNextCheckActiveMinSeconds int `yaml:"worker_next_check_active_min_seconds"`
	WorkerNextCheckActiveMaxSeconds int `yaml:"worker_next_check_active_max_seconds"`
	WorkerNextCheckPreparingSeconds int `yaml:"worker_next_check_preparing_seconds"`
	WorkerBackoff1Seconds           int `yaml:"worker_backoff_1_seconds"`
	WorkerBackoff2Seconds           int `yaml:"worker_backoff_2_seconds"`
	WorkerBackoff3Seconds           int `yaml:"worker_backoff_3_seconds"`
	WorkerBackoff4Seconds           int `yaml:"worker_backoff_4_seconds"`
}

type SweetTrackerConfig struct {
	APIKey             string `yaml:"api_key"`
	BaseURL            string `yaml:"base_url"`
	DefaultCourierCode string `yaml:"default_courier_code"`
	SandboxMode        bool   `yaml:"sandbox_mode"`
	SandboxDelayMS     int    `yaml:"sandbox_delay_ms"`
	WebhookSecret      string `yaml:"webhook_secret"`
}

type NaverConfig struct {
	MapsClientID     string `yaml:"maps_client_id"`
	MapsClientSecret string `yaml:"maps_client_secret"`
	GeocodeBaseURL   string `yaml:"geocode_base_url"`
	DirectionsBaseURL string `yaml:"directions_base_url"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	applyEnvOverrides(&config)
	return &config, nil
}

// applyEnvOverrides: секреты и деплой-специфика приходят из окружения и
// перебивают yaml. Конфиг-файл можно коммитить без ключей.
func applyEnvOverrides(cfg *Config) {
	setStr := func(dst *string, env string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}

	setStr(&cfg.SweetTracker.APIKey, "SWEETTRACKER_API_KEY")
	setStr(&cfg.SweetTracker.BaseURL, "SWEETTRACKER_BASE_URL")
	setStr(&cfg.SweetTracker.WebhookSecret, "SWEETTRACKER_WEBHOOK_SECRET")
	if v := os.Getenv("SWEETTRACKER_SANDBOX_MODE"); v != "" {
		cfg.SweetTracker.SandboxMode = v == "1" || v == "true"
	}
	if v := os.Getenv("SWEETTRACKER_SANDBOX_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SweetTracker.SandboxDelayMS = n
		}
	}

	setStr(&cfg.Delivery.ProviderMode, "DELIVERY_PROVIDER_MODE")
	setStr(&cfg.Delivery.ExternalProvider, "DELIVERY_EXTERNAL_PROVIDER")

	setStr(&cfg.Naver.MapsClientID, "NAVER_MAPS_CLIENT_ID")
	setStr(&cfg.Naver.MapsClientSecret, "NAVER_MAPS_CLIENT_SECRET")
}
