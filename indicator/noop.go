package indicator

// Noop implements Indicator but does nothing.
// Used when no indicators are configured.
type Noop struct{}

func (n *Noop) Ready()         {}
func (n *Noop) Scan()          {}
func (n *Noop) Fault()         {}
func (n *Noop) Detached()      {}
func (n *Noop) Shutdown()      {}
func (n *Noop) Release() error { return nil }
