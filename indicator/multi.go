package indicator

// Multi combines multiple Indicator implementations.
type Multi struct {
	indicators []Indicator
}

// NewMulti combines inds.
func NewMulti(inds ...Indicator) *Multi {
	return &Multi{indicators: inds}
}

// Ready implements Indicator.Ready.
func (m *Multi) Ready() {
	for _, ind := range m.indicators {
		ind.Ready()
	}
}

// Scan implements Indicator.Scan.
func (m *Multi) Scan() {
	for _, ind := range m.indicators {
		ind.Scan()
	}
}

// Fault implements Indicator.Fault.
func (m *Multi) Fault() {
	for _, ind := range m.indicators {
		ind.Fault()
	}
}

// Detached implements Indicator.Detached.
func (m *Multi) Detached() {
	for _, ind := range m.indicators {
		ind.Detached()
	}
}

// Shutdown implements Indicator.Shutdown.
func (m *Multi) Shutdown() {
	for _, ind := range m.indicators {
		ind.Shutdown()
	}
}

// Release implements Indicator.Release.
func (m *Multi) Release() error {
	var lastErr error
	for _, ind := range m.indicators {
		if err := ind.Release(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
