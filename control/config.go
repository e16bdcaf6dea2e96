// control/config.go
// Author: momentics <momentics@gmail.com>
//
// TOML configuration and a thread-safe store for its live snapshot.

package control

import (
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config holds the tunables of a running service.
type Config struct {
	// ListenAddr is the host:port the listener binds.
	ListenAddr string `toml:"listen_addr"`
	// Reactors is the number of reactor goroutines.
	Reactors int `toml:"reactors"`
	// PinCPUs pins each reactor to one CPU.
	PinCPUs bool `toml:"pin_cpus"`
	// Backlog is the listen backlog.
	Backlog int `toml:"backlog"`
	// ReadBufferSize is the per-connection read buffer in bytes.
	ReadBufferSize int `toml:"read_buffer_size"`
	// WriteBufferSize is the per-connection write buffer in bytes.
	WriteBufferSize int `toml:"write_buffer_size"`
	// QueueCapacity bounds each engine's inbound data and event queues.
	QueueCapacity int `toml:"queue_capacity"`
	// SideQueueCapacity bounds the pre-attach buffers. Zero disables buffering.
	SideQueueCapacity int `toml:"side_queue_capacity"`
	// LogLevel is a zap level name.
	LogLevel string `toml:"log_level"`
	// MetricsAddr, when set, serves Prometheus metrics over HTTP.
	MetricsAddr string `toml:"metrics_addr"`
}

// DefaultConfig returns the defaults used for unset fields.
func DefaultConfig() Config {
	return Config{
		ListenAddr:        "127.0.0.1:9400",
		Reactors:          1,
		Backlog:           128,
		ReadBufferSize:    4096,
		WriteBufferSize:   8192,
		QueueCapacity:     1024,
		SideQueueCapacity: 1024,
		LogLevel:          "info",
	}
}

// LoadConfig decodes path over DefaultConfig and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, errors.Wrapf(err, "load config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, errors.Errorf("config %s: unknown key %q", path, undecoded[0].String())
	}
	return cfg, cfg.Validate()
}

// ParseConfig decodes TOML text over DefaultConfig and validates the result.
func ParseConfig(text string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.Decode(text, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parse config")
	}
	return cfg, cfg.Validate()
}

// Validate rejects values the engines cannot run with.
func (c Config) Validate() error {
	switch {
	case c.ListenAddr == "":
		return errors.New("config: listen_addr is empty")
	case c.Reactors < 1:
		return errors.Errorf("config: reactors must be >= 1, got %d", c.Reactors)
	case c.ReadBufferSize < 1:
		return errors.Errorf("config: read_buffer_size must be >= 1, got %d", c.ReadBufferSize)
	case c.WriteBufferSize < 1:
		return errors.Errorf("config: write_buffer_size must be >= 1, got %d", c.WriteBufferSize)
	case c.QueueCapacity < 1:
		return errors.Errorf("config: queue_capacity must be >= 1, got %d", c.QueueCapacity)
	case c.SideQueueCapacity < 0:
		return errors.Errorf("config: side_queue_capacity must be >= 0, got %d", c.SideQueueCapacity)
	}
	return nil
}

// ConfigStore holds the current Config with atomic snapshot and listener support.
type ConfigStore struct {
	mu        sync.RWMutex
	config    Config
	listeners []func(Config)
}

// NewConfigStore initializes a store with cfg.
func NewConfigStore(cfg Config) *ConfigStore {
	return &ConfigStore{config: cfg}
}

// Snapshot returns a copy of the current config.
func (cs *ConfigStore) Snapshot() Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.config
}

// Update validates and installs cfg, then calls the reload listeners synchronously.
func (cs *ConfigStore) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.config = cfg
	listeners := append([]func(Config){}, cs.listeners...)
	cs.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

// OnReload registers a listener called after every successful Update.
func (cs *ConfigStore) OnReload(fn func(Config)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
