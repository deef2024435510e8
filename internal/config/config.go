package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all service configuration, loaded from ORDERSYNC_* environment
// variables with sensible defaults for every tunable.
type Config struct {
	App        AppConfig
	Tables     TablesConfig
	Queue      QueueConfig
	Sink       SinkConfig
	Dispatcher DispatcherConfig
	Lock       LockConfig
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Env      string // development, production
	Port     string
	LogLevel string
}

// TablesConfig names the DynamoDB tables backing the durable stores.
type TablesConfig struct {
	SyncRequests  string
	OrderMappings string
}

// QueueConfig holds the optional SQS nudge queue.
type QueueConfig struct {
	NudgeURL string // empty disables nudges; the worker still drains on its interval
}

// SinkConfig holds the storefront API client settings.
type SinkConfig struct {
	BaseURL     string
	Token       string
	MinInterval time.Duration // minimum spacing between outbound calls
	BackoffBase time.Duration // base for exponential backoff on transient errors
	MaxAttempts int           // attempt ceiling inside the client
	SearchDays  int           // how far back the remote fallback search looks
	SearchLimit int           // max orders scanned by the fallback search
}

// DispatcherConfig holds queue dispatcher settings.
type DispatcherConfig struct {
	Interval    time.Duration // idle poll interval
	RowDelay    time.Duration // minimum delay between rows in one pass
	BatchSize   int
	MaxAttempts int // row attempt ceiling
}

// LockConfig holds per-order lock settings.
type LockConfig struct {
	Timeout time.Duration
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ordersync")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.loglevel", "info")

	v.SetDefault("tables.syncrequests", "ordersync-requests")
	v.SetDefault("tables.ordermappings", "ordersync-mappings")

	v.SetDefault("queue.nudgeurl", "")

	v.SetDefault("sink.baseurl", "")
	v.SetDefault("sink.token", "")
	v.SetDefault("sink.mininterval", 500*time.Millisecond)
	v.SetDefault("sink.backoffbase", 500*time.Millisecond)
	v.SetDefault("sink.maxattempts", 5)
	v.SetDefault("sink.searchdays", 30)
	v.SetDefault("sink.searchlimit", 50)

	v.SetDefault("dispatcher.interval", 5*time.Second)
	v.SetDefault("dispatcher.rowdelay", 500*time.Millisecond)
	v.SetDefault("dispatcher.batchsize", 25)
	v.SetDefault("dispatcher.maxattempts", 3)

	v.SetDefault("lock.timeout", 5*time.Second)

	cfg := &Config{
		App: AppConfig{
			Env:      v.GetString("app.env"),
			Port:     v.GetString("app.port"),
			LogLevel: v.GetString("app.loglevel"),
		},
		Tables: TablesConfig{
			SyncRequests:  v.GetString("tables.syncrequests"),
			OrderMappings: v.GetString("tables.ordermappings"),
		},
		Queue: QueueConfig{
			NudgeURL: v.GetString("queue.nudgeurl"),
		},
		Sink: SinkConfig{
			BaseURL:     v.GetString("sink.baseurl"),
			Token:       v.GetString("sink.token"),
			MinInterval: v.GetDuration("sink.mininterval"),
			BackoffBase: v.GetDuration("sink.backoffbase"),
			MaxAttempts: v.GetInt("sink.maxattempts"),
			SearchDays:  v.GetInt("sink.searchdays"),
			SearchLimit: v.GetInt("sink.searchlimit"),
		},
		Dispatcher: DispatcherConfig{
			Interval:    v.GetDuration("dispatcher.interval"),
			RowDelay:    v.GetDuration("dispatcher.rowdelay"),
			BatchSize:   v.GetInt("dispatcher.batchsize"),
			MaxAttempts: v.GetInt("dispatcher.maxattempts"),
		},
		Lock: LockConfig{
			Timeout: v.GetDuration("lock.timeout"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Dispatcher.MaxAttempts < 1 {
		return fmt.Errorf("dispatcher.maxattempts must be >= 1, got %d", c.Dispatcher.MaxAttempts)
	}
	if c.Sink.MaxAttempts < 1 {
		return fmt.Errorf("sink.maxattempts must be >= 1, got %d", c.Sink.MaxAttempts)
	}
	if c.Dispatcher.BatchSize < 1 {
		return fmt.Errorf("dispatcher.batchsize must be >= 1, got %d", c.Dispatcher.BatchSize)
	}
	return nil
}
