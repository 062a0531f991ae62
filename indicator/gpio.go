package indicator

import (
	"fmt"

	"github.com/hjkoskel/govattu"
)

// lamps is the green/yellow/red pattern shown for a state.
type lamps [3]bool

func lampsFor(s state) lamps {
	switch s {
	case stateReady:
		return lamps{true, false, false}
	case stateScan:
		return lamps{true, true, false}
	case stateFault:
		return lamps{false, false, true}
	case stateDetached:
		// yellow and red together, as for a lost connection
		return lamps{false, true, true}
	}
	return lamps{}
}

// GPIO drives discrete LED pins through memory mapped GPIO.
type GPIO struct {
	hw   govattu.Vattu
	pins [3]*uint8 // green, yellow, red
}

// NewGPIO opens the GPIO block and configures the given pins as outputs.
func NewGPIO(pins [3]*uint8) (*GPIO, error) {
	hw, err := govattu.Open()
	if err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}

	g := &GPIO{hw: hw, pins: pins}

	// Initialize all pins as outputs, start off
	for _, p := range pins {
		if p != nil {
			hw.PinMode(*p, govattu.ALToutput)
			hw.PinClear(*p)
		}
	}
	return g, nil
}

func (g *GPIO) show(s state) {
	on := lampsFor(s)
	for i, p := range g.pins {
		if p == nil {
			continue
		}
		if on[i] {
			g.hw.PinSet(*p)
		} else {
			g.hw.PinClear(*p)
		}
	}
}

func (g *GPIO) close() error {
	return g.hw.Close()
}
