//go:build linux

package indicator

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Cdev drives LED pins through the GPIO character device.
type Cdev struct {
	lines [3]*gpiocdev.Line // green, yellow, red
}

// NewCdev requests the configured pins on chip as outputs, initially low.
func NewCdev(chip string, pins [3]*uint8) (*Cdev, error) {
	if chip == "" {
		chip = "gpiochip0"
	}
	c := &Cdev{}
	for i, p := range pins {
		if p == nil {
			continue
		}
		l, err := gpiocdev.RequestLine(chip, int(*p), gpiocdev.AsOutput(0), gpiocdev.WithConsumer("nfcbridge"))
		if err != nil {
			c.close()
			return nil, fmt.Errorf("request %s line %d: %w", chip, *p, err)
		}
		c.lines[i] = l
	}
	return c, nil
}

func (c *Cdev) show(s state) {
	on := lampsFor(s)
	for i, l := range c.lines {
		if l == nil {
			continue
		}
		v := 0
		if on[i] {
			v = 1
		}
		l.SetValue(v)
	}
}

func (c *Cdev) close() error {
	for _, l := range c.lines {
		if l != nil {
			l.Close()
		}
	}
	return nil
}
