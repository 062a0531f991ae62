package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v2"

	"nfcbridge/indicator"
	"nfcbridge/logging"
	"nfcbridge/mqtt"
	"nfcbridge/reader"
)

const defaultConfigFile = "nfcbridge.cfg"

// Config is the main configuration structure for the bridge.
type Config struct {
	// Listeners
	Bind        string `yaml:"bind" toml:"bind" json:"bind"`
	EventPort   int    `yaml:"event_port" toml:"event_port" json:"event_port"`
	StatusPort  int    `yaml:"status_port" toml:"status_port" json:"status_port"`
	MetricsAddr string `yaml:"metrics_addr" toml:"metrics_addr" json:"metrics_addr"` // empty = disabled

	// Event handling
	DebounceMS      int `yaml:"debounce_ms" toml:"debounce_ms" json:"debounce_ms"`
	SubscriberQueue int `yaml:"subscriber_queue" toml:"subscriber_queue" json:"subscriber_queue"`
	WriteTimeoutMS  int `yaml:"write_timeout_ms" toml:"write_timeout_ms" json:"write_timeout_ms"`

	Log       logging.Config   `yaml:"log" toml:"log" json:"log"`
	Reader    reader.Config    `yaml:"reader" toml:"reader" json:"reader"`
	MQTT      mqtt.Config      `yaml:"mqtt" toml:"mqtt" json:"mqtt"`
	Indicator indicator.Config `yaml:"indicator" toml:"indicator" json:"indicator"`
}

func defaultConfig() Config {
	return Config{
		Bind:            "127.0.0.1",
		EventPort:       8765,
		StatusPort:      8766,
		DebounceMS:      2000,
		SubscriberQueue: 64,
		WriteTimeoutMS:  5000,
		Log:             logging.Config{Level: "info", Format: "console"},
		Reader:          reader.Config{Type: "serial", Device: "/dev/ttyUSB0"},
	}
}

// LoadConfig reads path over the defaults, choosing the decoder by
// extension. A missing file is only an error when required is set.
func LoadConfig(path string, required bool) (Config, error) {
	cfg := defaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml", ".cfg":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	for _, p := range []struct {
		name string
		port int
	}{{"event_port", c.EventPort}, {"status_port", c.StatusPort}} {
		if p.port < 1 || p.port > 65535 {
			return fmt.Errorf("%s %d out of range", p.name, p.port)
		}
	}
	if c.EventPort == c.StatusPort {
		return fmt.Errorf("event_port and status_port must differ (both %d)", c.EventPort)
	}
	if c.DebounceMS <= 0 {
		return fmt.Errorf("debounce_ms must be positive, got %d", c.DebounceMS)
	}
	if c.SubscriberQueue <= 0 {
		return fmt.Errorf("subscriber_queue must be positive, got %d", c.SubscriberQueue)
	}
	if c.WriteTimeoutMS <= 0 {
		return fmt.Errorf("write_timeout_ms must be positive, got %d", c.WriteTimeoutMS)
	}
	return nil
}

func (c Config) eventAddr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.EventPort))
}

func (c Config) statusAddr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.StatusPort))
}

func (c Config) debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

func (c Config) writeTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMS) * time.Millisecond
}
