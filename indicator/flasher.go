package indicator

import (
	"sync"
	"time"
)

type state int

const (
	stateOff state = iota
	stateReady
	stateScan
	stateFault
	stateDetached
)

// display renders one state on hardware.
type display interface {
	show(s state)
	close() error
}

// Flasher implements Indicator on top of a display. Steady states are
// shown until replaced; Scan is shown for the flash duration and then the
// latest steady state is restored.
type Flasher struct {
	out   display
	flash time.Duration

	mu       sync.Mutex
	steady   state
	timer    *time.Timer
	gen      uint64 // identifies the pending flash
	released bool
}

// NewFlasher starts out showing the detached state.
func NewFlasher(out display, flash time.Duration) *Flasher {
	f := &Flasher{out: out, flash: flash, steady: stateDetached}
	out.show(stateDetached)
	return f
}

// Ready implements Indicator.Ready.
func (f *Flasher) Ready() { f.set(stateReady) }

// Fault implements Indicator.Fault.
func (f *Flasher) Fault() { f.set(stateFault) }

// Detached implements Indicator.Detached.
func (f *Flasher) Detached() { f.set(stateDetached) }

// Shutdown implements Indicator.Shutdown.
func (f *Flasher) Shutdown() { f.set(stateOff) }

// Scan implements Indicator.Scan.
func (f *Flasher) Scan() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return
	}
	f.stopTimer()
	f.out.show(stateScan)
	f.gen++
	gen := f.gen
	f.timer = time.AfterFunc(f.flash, func() { f.restore(gen) })
}

// Release implements Indicator.Release.
func (f *Flasher) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return nil
	}
	f.stopTimer()
	f.released = true
	f.out.show(stateOff)
	return f.out.close()
}

func (f *Flasher) set(s state) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return
	}
	f.stopTimer()
	f.steady = s
	f.out.show(s)
}

// restore ends the flash started as gen. A callback that fired before a
// later Scan or set took the lock is stale and does nothing.
func (f *Flasher) restore(gen uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released || f.timer == nil || gen != f.gen {
		return
	}
	f.timer = nil
	f.out.show(f.steady)
}

func (f *Flasher) stopTimer() {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}
