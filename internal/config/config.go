package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Event transport drivers
const (
	EventsRabbitMQ = "rabbitmq"
	EventsKafka    = "kafka"
	EventsNone     = "none"
)

// Config holds all configuration for the cart order system
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Events     EventsConfig     `yaml:"events"`
	Server     ServerConfig     `yaml:"server"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	MaxConns int32  `yaml:"max_conns"`
}

// RabbitMQConfig holds RabbitMQ connection configuration
type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// KafkaConfig holds Kafka connection configuration
type KafkaConfig struct {
	Brokers string `yaml:"brokers"`
	Topic   string `yaml:"topic"`
	GroupID string `yaml:"group_id"`
}

// EventsConfig selects the order event transport
type EventsConfig struct {
	Driver string `yaml:"driver"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            int `yaml:"port"`
	ShutdownSeconds int `yaml:"shutdown_seconds"`
}

// ReconcilerConfig holds settings for the selection reconciler
type ReconcilerConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
	Prefetch        int `yaml:"prefetch"`
}

// Load reads configuration from a YAML file, applies environment overrides and defaults
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration bytes
func Parse(data []byte) (*Config, error) {
	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnv overrides file values with CART_* environment variables
func (c *Config) applyEnv() error {
	strVars := map[string]*string{
		"CART_DB_HOST":       &c.Database.Host,
		"CART_DB_USER":       &c.Database.User,
		"CART_DB_PASSWORD":   &c.Database.Password,
		"CART_DB_NAME":       &c.Database.Database,
		"CART_RABBITMQ_HOST": &c.RabbitMQ.Host,
		"CART_RABBITMQ_USER": &c.RabbitMQ.User,
		"CART_RABBITMQ_PASS": &c.RabbitMQ.Password,
		"CART_KAFKA_BROKERS": &c.Kafka.Brokers,
		"CART_EVENTS_DRIVER": &c.Events.Driver,
	}
	for key, target := range strVars {
		if value, ok := os.LookupEnv(key); ok {
			*target = value
		}
	}

	intVars := map[string]*int{
		"CART_DB_PORT":       &c.Database.Port,
		"CART_RABBITMQ_PORT": &c.RabbitMQ.Port,
		"CART_SERVER_PORT":   &c.Server.Port,
	}
	for key, target := range intVars {
		value, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %s value: %w", key, err)
		}
		*target = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 25
	}
	if c.RabbitMQ.Port == 0 {
		c.RabbitMQ.Port = 5672
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "cart-order-events"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "selection-reconciler"
	}
	if c.Events.Driver == "" {
		c.Events.Driver = EventsRabbitMQ
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.ShutdownSeconds == 0 {
		c.Server.ShutdownSeconds = 10
	}
	if c.Reconciler.IntervalSeconds == 0 {
		c.Reconciler.IntervalSeconds = 30
	}
	if c.Reconciler.Prefetch == 0 {
		c.Reconciler.Prefetch = 1
	}
}

// Validate checks that required settings are present
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	switch c.Events.Driver {
	case EventsRabbitMQ:
		if c.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq.host is required for the rabbitmq events driver")
		}
	case EventsKafka:
		if len(c.KafkaBrokers()) == 0 {
			return fmt.Errorf("kafka.brokers is required for the kafka events driver")
		}
	case EventsNone:
	default:
		return fmt.Errorf("unknown events driver: %s", c.Events.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port >= 65536 {
		return fmt.Errorf("server.port must be in [1: 65535]: %d", c.Server.Port)
	}
	return nil
}

// DatabaseURL returns a PostgreSQL connection URL
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Database)
}

// RabbitMQURL returns an AMQP connection URL
func (c *Config) RabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/",
		c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port)
}

// KafkaBrokers splits the comma-separated broker list
func (c *Config) KafkaBrokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.Kafka.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// ReconcileInterval returns the periodic reconciliation interval
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Reconciler.IntervalSeconds) * time.Second
}

// ShutdownTimeout returns the HTTP graceful shutdown timeout
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownSeconds) * time.Second
}
