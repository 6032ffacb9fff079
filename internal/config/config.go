// Configuration management
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the processor configuration (§6's surface).
type Config struct {
	Version     string            `yaml:"version"`
	Database    DatabaseConfig    `yaml:"database"`
	Queue       QueueConfig       `yaml:"queue"`
	Processing  ProcessingConfig  `yaml:"processing"`
	Communication CommunicationConfig `yaml:"communication"`
	TestMode    TestModeConfig    `yaml:"test_mode"`
	ControlAPI  ControlAPIConfig  `yaml:"control_api"`
}

// DatabaseConfig names the storage provider and its connection string.
type DatabaseConfig struct {
	Provider         string        `yaml:"provider"` // "postgres"
	ConnectionString string        `yaml:"connection_string"`
	MaxOpenConns     int           `yaml:"max_open_conns"`
	MaxIdleConns     int           `yaml:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `yaml:"conn_max_idle_time"`
	CacheAddr        string        `yaml:"cache_addr"` // Redis read-through cache; empty disables it
	CachePassword    string        `yaml:"cache_password"`
	CacheDB          int           `yaml:"cache_db"`
}

// QueueConfig names the queue provider and the three standard queue
// names (§6).
type QueueConfig struct {
	Provider        string `yaml:"provider"` // "in-memory" | "nats"
	NATSUrl         string `yaml:"nats_url"`
	InputQueue      string `yaml:"input_queue"`
	CompletedQueue  string `yaml:"completed_queue"`
	DeadLetterQueue string `yaml:"dead_letter_queue"`
}

// ProcessingConfig mirrors §6's processing settings block exactly.
type ProcessingConfig struct {
	MaxConcurrentMessages            int `yaml:"max_concurrent_messages"`
	MessageProcessingTimeoutSeconds  int `yaml:"message_processing_timeout_seconds"`
	RetryAttempts                    int `yaml:"retry_attempts"`
	RetryDelaySeconds                int `yaml:"retry_delay_seconds"`
	QueuePollingIntervalMilliseconds int `yaml:"queue_polling_interval_milliseconds"`
}

// CommunicationConfig mirrors §6's communication settings block
// exactly (the C8 IPC plane).
type CommunicationConfig struct {
	CommunicationDirectory      string `yaml:"communication_directory"`
	StatusUpdateIntervalSeconds int    `yaml:"status_update_interval_seconds"`
	CommandTimeoutSeconds       int    `yaml:"command_timeout_seconds"`
}

// TestModeConfig mirrors §6's test-mode settings block (C9 generator).
type TestModeConfig struct {
	Enabled                bool          `yaml:"enabled"`
	GenerationInterval     time.Duration `yaml:"generation_interval"`
	ValidMessagePercentage int           `yaml:"valid_message_percentage"`
	BatchSize              int           `yaml:"batch_size"`
}

// ControlAPIConfig configures the control front's HTTP listener.
type ControlAPIConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		Database: DatabaseConfig{
			Provider:         "postgres",
			ConnectionString: "host=127.0.0.1 port=5432 user=swift_processor dbname=swift_processor sslmode=disable",
			MaxOpenConns:     25,
			MaxIdleConns:     10,
			ConnMaxLifetime:  30 * time.Minute,
			ConnMaxIdleTime:  5 * time.Minute,
		},
		Queue: QueueConfig{
			Provider:        "in-memory",
			NATSUrl:         "nats://127.0.0.1:4222",
			InputQueue:      "input",
			CompletedQueue:  "completed",
			DeadLetterQueue: "deadLetter",
		},
		Processing: ProcessingConfig{
			MaxConcurrentMessages:            1,
			MessageProcessingTimeoutSeconds:  60,
			RetryAttempts:                    3,
			RetryDelaySeconds:                2,
			QueuePollingIntervalMilliseconds: 1000,
		},
		Communication: CommunicationConfig{
			CommunicationDirectory:      "./ipc",
			StatusUpdateIntervalSeconds: 5,
			CommandTimeoutSeconds:       30,
		},
		TestMode: TestModeConfig{
			Enabled:                false,
			GenerationInterval:     10 * time.Second,
			ValidMessagePercentage: 80,
			BatchSize:              1,
		},
		ControlAPI: ControlAPIConfig{
			HTTPAddr: "0.0.0.0:8080",
		},
	}
}

// Load loads configuration from file or environment.
func Load() (*Config, error) {
	configPath := os.Getenv("SWIFT_PROCESSOR_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		return loadFromFile(configPath)
	}

	cfg := Default()
	applyEnvOverrides(cfg)
	return cfg, nil
}

// loadFromFile loads config from YAML file.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SWIFT_PROCESSOR_DB_CONNECTION_STRING"); v != "" {
		cfg.Database.ConnectionString = v
	}
	if v := os.Getenv("SWIFT_PROCESSOR_QUEUE_PROVIDER"); v != "" {
		cfg.Queue.Provider = v
	}
	if v := os.Getenv("SWIFT_PROCESSOR_NATS_URL"); v != "" {
		cfg.Queue.NATSUrl = v
	}
	if v := os.Getenv("SWIFT_PROCESSOR_COMMUNICATION_DIR"); v != "" {
		cfg.Communication.CommunicationDirectory = v
	}
	if v := os.Getenv("SWIFT_PROCESSOR_CONTROL_API_ADDR"); v != "" {
		cfg.ControlAPI.HTTPAddr = v
	}
}

// Validate applies the constraints §7 names: ConfigurationError is
// fatal at startup on a missing required setting or an out-of-range
// value.
func (c *Config) Validate() error {
	if c.Database.ConnectionString == "" {
		return fmt.Errorf("database.connection_string is required")
	}
	switch c.Queue.Provider {
	case "in-memory", "nats":
	default:
		return fmt.Errorf("queue.provider must be \"in-memory\" or \"nats\": %q", c.Queue.Provider)
	}
	if c.Queue.Provider == "nats" && c.Queue.NATSUrl == "" {
		return fmt.Errorf("queue.nats_url is required when queue.provider is \"nats\"")
	}
	if c.Processing.MaxConcurrentMessages <= 0 {
		return fmt.Errorf("processing.max_concurrent_messages must be positive")
	}
	if c.Processing.MessageProcessingTimeoutSeconds <= 0 {
		return fmt.Errorf("processing.message_processing_timeout_seconds must be positive")
	}
	if c.Processing.RetryAttempts <= 0 {
		return fmt.Errorf("processing.retry_attempts must be positive")
	}
	if c.Processing.RetryDelaySeconds < 0 {
		return fmt.Errorf("processing.retry_delay_seconds must not be negative")
	}
	if c.Processing.QueuePollingIntervalMilliseconds <= 0 {
		return fmt.Errorf("processing.queue_polling_interval_milliseconds must be positive")
	}
	if c.Communication.CommunicationDirectory == "" {
		return fmt.Errorf("communication.communication_directory is required")
	}
	if c.Communication.StatusUpdateIntervalSeconds <= 0 {
		return fmt.Errorf("communication.status_update_interval_seconds must be positive")
	}
	if c.TestMode.Enabled {
		if c.TestMode.ValidMessagePercentage < 0 || c.TestMode.ValidMessagePercentage > 100 {
			return fmt.Errorf("test_mode.valid_message_percentage must be within [0,100]")
		}
		if c.TestMode.BatchSize <= 0 {
			return fmt.Errorf("test_mode.batch_size must be positive")
		}
		if c.TestMode.GenerationInterval <= 0 {
			return fmt.Errorf("test_mode.generation_interval must be positive")
		}
	}
	return nil
}
