// Package indicator drives optional status lights for the bridge.
package indicator

import (
	"fmt"
	"time"
)

// Indicator is the interface for status indicator implementations (LEDs, neopixels, etc).
type Indicator interface {
	// Ready shows an attached reader waiting for cards.
	Ready()

	// Scan briefly flashes for an accepted card, then returns to the
	// previous steady state.
	Scan()

	// Fault shows a reader error.
	Fault()

	// Detached shows that no reader is attached.
	Detached()

	// Shutdown sets the indicator to shutdown state.
	Shutdown()

	// Release releases any hardware resources.
	Release() error
}

// DefaultFlash is how long Scan is shown.
const DefaultFlash = 300 * time.Millisecond

// Config holds configuration for indicator implementations.
type Config struct {
	// Driver selects the GPIO backend: "govattu" (default, memory mapped)
	// or "gpiocdev" (character device, linux only).
	Driver string `yaml:"driver" toml:"driver" json:"driver"`
	Chip   string `yaml:"chip" toml:"chip" json:"chip"`

	// GPIO LED pins (nil = not configured)
	GreenPin  *uint8 `yaml:"green_pin" toml:"green_pin" json:"green_pin"`
	YellowPin *uint8 `yaml:"yellow_pin" toml:"yellow_pin" json:"yellow_pin"`
	RedPin    *uint8 `yaml:"red_pin" toml:"red_pin" json:"red_pin"`

	// Neopixel pipe path (empty = not configured)
	NeopixelPipe string `yaml:"neopixel_pipe" toml:"neopixel_pipe" json:"neopixel_pipe"`

	FlashMS int `yaml:"flash_ms" toml:"flash_ms" json:"flash_ms"`
}

func (c Config) flash() time.Duration {
	if c.FlashMS <= 0 {
		return DefaultFlash
	}
	return time.Duration(c.FlashMS) * time.Millisecond
}

// New creates an Indicator based on the provided configuration.
// Returns a Multi indicator if both GPIO and Neopixel are configured.
func New(cfg Config) (Indicator, error) {
	var indicators []Indicator

	if cfg.GreenPin != nil || cfg.YellowPin != nil || cfg.RedPin != nil {
		pins := [3]*uint8{cfg.GreenPin, cfg.YellowPin, cfg.RedPin}
		var (
			out display
			err error
		)
		switch cfg.Driver {
		case "", "govattu":
			out, err = NewGPIO(pins)
		case "gpiocdev":
			out, err = NewCdev(cfg.Chip, pins)
		default:
			err = fmt.Errorf("unknown indicator driver %q", cfg.Driver)
		}
		if err != nil {
			return nil, err
		}
		indicators = append(indicators, NewFlasher(out, cfg.flash()))
	}

	if cfg.NeopixelPipe != "" {
		neo, err := NewNeopixel(cfg.NeopixelPipe)
		if err != nil {
			releaseAll(indicators)
			return nil, err
		}
		indicators = append(indicators, NewFlasher(neo, cfg.flash()))
	}

	if len(indicators) == 0 {
		return &Noop{}, nil
	}
	if len(indicators) == 1 {
		return indicators[0], nil
	}
	return &Multi{indicators: indicators}, nil
}

func releaseAll(inds []Indicator) {
	for _, ind := range inds {
		ind.Release()
	}
}
