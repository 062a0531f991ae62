//go:build !linux

package indicator

import "errors"

var ErrNotSupported = errors.New("gpio character device not supported on this platform")

// Cdev is a stub for non-linux platforms.
type Cdev struct{}

// NewCdev returns an error on non-linux platforms.
func NewCdev(chip string, pins [3]*uint8) (*Cdev, error) {
	return nil, ErrNotSupported
}

func (c *Cdev) show(state)   {}
func (c *Cdev) close() error { return nil }
