package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Domenick1991/barberqueue/internal/pkg/errs"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	TransportKafka    = "kafka"
	TransportRabbitMQ = "rabbitmq"
)

// Config is read from YAML first; environment variables listed in the
// envconfig tags override file values when set.
type Config struct {
	HTTP          HTTPConfig          `yaml:"http"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	RabbitMQ      RabbitMQConfig      `yaml:"rabbitmq"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Queue         QueueConfig         `yaml:"queue"`
	Worker        WorkerConfig        `yaml:"worker"`
	Log           LogConfig           `yaml:"log"`
}

type HTTPConfig struct {
	Address         string        `yaml:"address" envconfig:"HTTP_ADDRESS"`
	SwaggerDir      string        `yaml:"swagger_dir" envconfig:"HTTP_SWAGGER_DIR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"HTTP_SHUTDOWN_TIMEOUT"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" envconfig:"DB_HOST"`
	Port     int    `yaml:"port" envconfig:"DB_PORT"`
	User     string `yaml:"user" envconfig:"DB_USER"`
	Password string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name     string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode  string `yaml:"ssl_mode" envconfig:"DB_SSL_MODE"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
}

type KafkaConfig struct {
	Brokers             []string `yaml:"brokers" envconfig:"KAFKA_BROKERS"`
	BookingChangesTopic string   `yaml:"booking_changes_topic" envconfig:"KAFKA_BOOKING_CHANGES_TOPIC"`
	NotificationsTopic  string   `yaml:"notifications_topic" envconfig:"KAFKA_NOTIFICATIONS_TOPIC"`
	GroupID             string   `yaml:"group_id" envconfig:"KAFKA_GROUP_ID"`
	DeliveryGroupID     string   `yaml:"delivery_group_id" envconfig:"KAFKA_DELIVERY_GROUP_ID"`
}

type RabbitMQConfig struct {
	URL      string `yaml:"url" envconfig:"RABBITMQ_URL"`
	Exchange string `yaml:"exchange" envconfig:"RABBITMQ_EXCHANGE"`
	Queue    string `yaml:"queue" envconfig:"RABBITMQ_QUEUE"`
}

type NotificationsConfig struct {
	// Transport selects the broker notification events are published to.
	Transport string `yaml:"transport" envconfig:"NOTIFICATIONS_TRANSPORT"`
}

type QueueConfig struct {
	Timezone    string        `yaml:"timezone" envconfig:"QUEUE_TIMEZONE"`
	CallTimeout time.Duration `yaml:"call_timeout" envconfig:"QUEUE_CALL_TIMEOUT"`
	Concurrency int           `yaml:"concurrency" envconfig:"QUEUE_CONCURRENCY"`
	IdleTimeout time.Duration `yaml:"idle_timeout" envconfig:"QUEUE_IDLE_TIMEOUT"`
	LockTTL     time.Duration `yaml:"lock_ttl" envconfig:"QUEUE_LOCK_TTL"`
	CacheTTL    time.Duration `yaml:"cache_ttl" envconfig:"QUEUE_CACHE_TTL"`
}

// Location resolves the zone that decides which calendar day is "today".
func (q QueueConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return nil, errs.Wrapf(err, "load queue timezone %q", q.Timezone)
	}
	return loc, nil
}

type WorkerConfig struct {
	ResyncInterval time.Duration `yaml:"resync_interval" envconfig:"WORKER_RESYNC_INTERVAL"`
}

type LogConfig struct {
	Level      string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format     string `yaml:"format" envconfig:"LOG_FORMAT"`
	TimeZone   string `yaml:"timezone" envconfig:"LOG_TIMEZONE"`
	TimeFormat string `yaml:"time_format" envconfig:"LOG_TIME_FORMAT"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(err, "failed to read config")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errs.Wrap(err, "failed to parse config")
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errs.Wrap(err, "failed to process env config")
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Kafka.BookingChangesTopic == "" {
		c.Kafka.BookingChangesTopic = "booking_changes"
	}
	if c.Kafka.NotificationsTopic == "" {
		c.Kafka.NotificationsTopic = "notifications"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "barberqueue-monitor"
	}
	if c.Kafka.DeliveryGroupID == "" {
		c.Kafka.DeliveryGroupID = "barberqueue-delivery"
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "barberqueue.notifications"
	}
	if c.RabbitMQ.Queue == "" {
		c.RabbitMQ.Queue = "barberqueue.notifications.delivery"
	}
	if c.Notifications.Transport == "" {
		c.Notifications.Transport = TransportKafka
	}
	if c.Queue.Timezone == "" {
		c.Queue.Timezone = "UTC"
	}
	if c.Queue.CallTimeout == 0 {
		c.Queue.CallTimeout = 5 * time.Second
	}
	if c.Queue.Concurrency == 0 {
		c.Queue.Concurrency = 4
	}
	if c.Queue.IdleTimeout == 0 {
		c.Queue.IdleTimeout = 30 * time.Minute
	}
	if c.Queue.LockTTL == 0 {
		c.Queue.LockTTL = 30 * time.Second
	}
	if c.Queue.CacheTTL == 0 {
		c.Queue.CacheTTL = 10 * time.Second
	}
	if c.Worker.ResyncInterval == 0 {
		c.Worker.ResyncInterval = time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.TimeZone == "" {
		c.Log.TimeZone = "UTC"
	}
	if c.Log.TimeFormat == "" {
		c.Log.TimeFormat = "2006-01-02 15:04:05.000"
	}
}

func (c *Config) Validate() error {
	switch c.Notifications.Transport {
	case TransportKafka:
	case TransportRabbitMQ:
		if c.RabbitMQ.URL == "" {
			return errs.New("rabbitmq.url is required when notifications.transport is rabbitmq")
		}
	default:
		return errs.Newf("unknown notifications.transport %q", c.Notifications.Transport)
	}

	if len(c.Kafka.Brokers) == 0 {
		return errs.New("kafka.brokers must not be empty")
	}
	if c.Queue.CallTimeout < 0 || c.Queue.IdleTimeout < 0 || c.Queue.LockTTL < 0 || c.Queue.CacheTTL < 0 {
		return errs.New("queue timeouts must be positive")
	}
	if c.Queue.Concurrency < 0 {
		return errs.New("queue.concurrency must be positive")
	}
	if c.Worker.ResyncInterval < 0 {
		return errs.New("worker.resync_interval must be positive")
	}
	if _, err := c.Queue.Location(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return errs.Newf("unknown log.format %q", c.Log.Format)
	}
	return nil
}

func NewTestConfig() Config {
	cfg := Config{
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     15433,
			User:     "test",
			Password: "test",
			Name:     "barberqueue_test",
		},
		Kafka: KafkaConfig{Brokers: []string{"localhost:9092"}},
		Log:   LogConfig{Level: "error", Format: "text"},
	}
	cfg.applyDefaults()
	return cfg
}
