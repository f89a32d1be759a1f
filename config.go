package worker

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds configuration for the local host scheduler and the
// default foreground notification channel.
type Config struct {
	// Concurrency is the maximum number of tasks executed concurrently.
	Concurrency int `yaml:"concurrency"`

	// PollInterval is how often idle workers poll the descriptor store.
	PollInterval time.Duration `yaml:"poll_interval"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	// before active tasks are cancelled.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Codec selects the descriptor wire format: "json" or "msgpack".
	Codec string `yaml:"codec"`

	// Notification is the default channel for foreground sessions.
	Notification NotificationConfig `yaml:"notification"`
}

// NotificationConfig describes the notification channel used by
// foreground sessions that do not carry their own.
type NotificationConfig struct {
	ChannelID   string `yaml:"channel_id"`
	ChannelName string `yaml:"channel_name"`
	Importance  int    `yaml:"importance"`
	ID          int32  `yaml:"id"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     4,
		PollInterval:    100 * time.Millisecond,
		ShutdownTimeout: 30 * time.Second,
		Codec:           "msgpack",
		Notification: NotificationConfig{
			ChannelID:   "worker.progress",
			ChannelName: "Background work",
			Importance:  2,
			ID:          1,
		},
	}
}

// UnmarshalYAML decodes a Config, accepting durations in the
// time.ParseDuration form ("500ms", "30s"). Fields left out of the
// document keep their zero values; callers typically start from
// DefaultConfig and overlay a file on top.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type raw struct {
		Concurrency     *int                `yaml:"concurrency"`
		PollInterval    string              `yaml:"poll_interval"`
		ShutdownTimeout string              `yaml:"shutdown_timeout"`
		Codec           string              `yaml:"codec"`
		Notification    *NotificationConfig `yaml:"notification"`
	}

	var r raw
	if err := node.Decode(&r); err != nil {
		return fmt.Errorf("worker: decode config: %w", err)
	}

	if r.Concurrency != nil {
		c.Concurrency = *r.Concurrency
	}
	if r.PollInterval != "" {
		d, err := time.ParseDuration(r.PollInterval)
		if err != nil {
			return fmt.Errorf("worker: config poll_interval: %w", err)
		}
		c.PollInterval = d
	}
	if r.ShutdownTimeout != "" {
		d, err := time.ParseDuration(r.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("worker: config shutdown_timeout: %w", err)
		}
		c.ShutdownTimeout = d
	}
	if r.Codec != "" {
		c.Codec = r.Codec
	}
	if r.Notification != nil {
		c.Notification = *r.Notification
	}

	return nil
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("worker: read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
