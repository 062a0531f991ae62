package reader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nfcbridge/uid"
)

// Kind is the closed set of things a reader driver can report.
type Kind int

const (
	Attached Kind = iota + 1
	Detached
	CardPresent
	CardRemoved
	Fault
)

func (k Kind) String() string {
	switch k {
	case Attached:
		return "attached"
	case Detached:
		return "detached"
	case CardPresent:
		return "card-present"
	case CardRemoved:
		return "card-removed"
	case Fault:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is a single driver notification.
type Event struct {
	Kind   Kind
	Reader string  // display name of the reader
	UID    uid.Raw // CardPresent and CardRemoved; may be zero on removal
	Err    error   // Fault
}

// Source is a reader driver. Run delivers events on out until ctx is done
// and keeps listening for a future attach after any device error.
type Source interface {
	Run(ctx context.Context, out chan<- Event) error

	// Close releases any resources held by the driver.
	Close() error
}

// State is the shared view of the attached reader.
type State struct {
	Available bool   // a driver integration is loaded
	Attached  bool   // a physical reader is currently attached
	Name      string // empty when no reader is attached
}

// ErrUnsupported is returned by New for an unknown driver type.
var ErrUnsupported = errors.New("unsupported reader type")

// Config holds common configuration for reader implementations.
type Config struct {
	Type      string `yaml:"type" toml:"type" json:"type"`                   // "serial", "wiegand", "keyboard", "pipe", "none"
	Device    string `yaml:"device" toml:"device" json:"device"`             // e.g. "/dev/serial0", "/dev/input/event0", "/tmp/nfcbridge"
	Baud      int    `yaml:"baud" toml:"baud" json:"baud"`                   // baud rate for serial devices
	Format    string `yaml:"format" toml:"format" json:"format"`             // keyboard digit format, e.g. "10h", "10d"
	Name      string `yaml:"name" toml:"name" json:"name"`                   // display name reported to subscribers
	RetrySecs int    `yaml:"retry_secs" toml:"retry_secs" json:"retry_secs"` // delay between reopen attempts
}

func (c Config) retry() time.Duration {
	if c.RetrySecs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.RetrySecs) * time.Second
}

func (c Config) name(fallback string) string {
	if c.Name != "" {
		return c.Name
	}
	return fallback
}

// New creates a Source based on the provided configuration.
// Type "none" returns a nil Source and no error.
func New(cfg Config) (Source, error) {
	if cfg.Type != "none" && cfg.Device == "" {
		return nil, fmt.Errorf("reader %q: device not configured", cfg.Type)
	}
	switch cfg.Type {
	case "none":
		return nil, nil
	case "serial":
		return newPoller(cfg.name("serial:"+cfg.Device), cfg.retry(), func() (frameReader, error) {
			return openSerial(cfg.Device, cfg.Baud)
		}), nil
	case "wiegand":
		return newPoller(cfg.name("wiegand:"+cfg.Device), cfg.retry(), func() (frameReader, error) {
			return openWiegand(cfg.Device, cfg.Baud)
		}), nil
	case "keyboard", "10h-kbd":
		format, err := parseKeyFormat(cfg.Format)
		if err != nil {
			return nil, err
		}
		return newPoller(cfg.name("keyboard:"+cfg.Device), cfg.retry(), func() (frameReader, error) {
			return openKeyboard(cfg.Device, format)
		}), nil
	case "pipe":
		return NewPipe(cfg.Device, cfg.name("pipe"), cfg.retry())
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, cfg.Type)
	}
}

// send delivers ev unless ctx is done first.
func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
