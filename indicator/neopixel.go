package indicator

import (
	"fmt"
	"os"
	"sync"
)

// Neopixel command strings for the external neopixel tool.
const (
	neoDetached = "@2 !150000 001010"
	neoReady    = "@3 !150000 400000"
	neoScan     = "@1 !50000 8000"
	neoFault    = "@2 !10000 ff"
	neoOff      = "@0 010101"
)

// Neopixel drives an external neopixel tool via named pipe.
type Neopixel struct {
	mu   sync.Mutex
	pipe *os.File
}

// NewNeopixel opens the tool's pipe.
func NewNeopixel(pipePath string) (*Neopixel, error) {
	f, err := os.OpenFile(pipePath, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open neopixel pipe %s: %w", pipePath, err)
	}
	return &Neopixel{pipe: f}, nil
}

func neoCommand(s state) string {
	switch s {
	case stateReady:
		return neoReady
	case stateScan:
		return neoScan
	case stateFault:
		return neoFault
	case stateDetached:
		return neoDetached
	}
	return neoOff
}

func (n *Neopixel) show(s state) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pipe != nil {
		n.pipe.Write([]byte(neoCommand(s)))
	}
}

func (n *Neopixel) close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.pipe == nil {
		return nil
	}
	err := n.pipe.Close()
	n.pipe = nil
	return err
}
