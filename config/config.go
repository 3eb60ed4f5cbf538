package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	ReconBox ReconBoxConfig `yaml:"reconbox"`
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
	Host                        string `yaml:"host"`
	Port                        int    `yaml:"port"`
	ShipmentStatusChangedTopic  string `yaml:"shipment_status_changed_topic"`
	TransactionSettledTopicName string `yaml:"transaction_settled_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type ReconBoxConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	SyncIntervalSeconds      int `yaml:"sync_interval_seconds"`
	ReconcileIntervalSeconds int `yaml:"reconcile_interval_seconds"`
	// ReconcileExecute включает боевой режим сверки платежей.
	// По умолчанию false: сухой прогон, никаких зачислений.
	ReconcileExecute bool `yaml:"reconcile_execute"`

	SyncBatchSize          int `yaml:"sync_batch_size"`
	SyncItemDelayMillis    int `yaml:"sync_item_delay_millis"`
	SyncRateLimitPerMinute int `yaml:"sync_rate_limit_per_minute"`

	ReconcileBatchSize       int `yaml:"reconcile_batch_size"`
	ReconcileItemDelayMillis int `yaml:"reconcile_item_delay_millis"`

	ShipmentCacheTTLSeconds int `yaml:"shipment_cache_ttl_seconds"`

	CarrierBaseURL string `yaml:"carrier_base_url"`
	CarrierAPIKey  string `yaml:"carrier_api_key"`
	// CarrierMode: "http" — боевой клиент, "fake" — детерминированный эмулятор.
	CarrierMode string `yaml:"carrier_mode"`

	GatewayBaseURL    string `yaml:"gateway_base_url"`
	GatewayMerchantID string `yaml:"gateway_merchant_id"`
	GatewayAPIKey     string `yaml:"gateway_api_key"`
	GatewayMode       string `yaml:"gateway_mode"`
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

	return &config, nil
}

func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.Username, c.Database.Password,
		c.Database.Host, c.Database.Port, c.Database.DBName, c.Database.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c *Config) KafkaAddr() string {
	return fmt.Sprintf("%s:%d", c.Kafka.Host, c.Kafka.Port)
}
