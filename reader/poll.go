package reader

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"time"

	"nfcbridge/uid"
)

// frameReader is a blocking tag reader for a single opened device.
// ReadTag returns a zero uid.Raw and a nil error when nothing was read.
type frameReader interface {
	ReadTag(ctx context.Context) (uid.Raw, error)
	Close() error
}

type opener func() (frameReader, error)

// Poller turns a blocking frame reader into an event Source. Opening the
// device reports Attached; a read failure reports one Fault, closes the
// device and retries opening until it succeeds again.
type Poller struct {
	name  string
	open  opener
	retry time.Duration

	mu  sync.Mutex
	cur frameReader
}

func newPoller(name string, retry time.Duration, open opener) *Poller {
	return &Poller{name: name, open: open, retry: retry}
}

// Run implements Source.Run.
func (p *Poller) Run(ctx context.Context, out chan<- Event) error {
	var last Kind // what has been reported for the current outage
	for {
		if ctx.Err() != nil {
			return nil
		}

		fr, err := p.open()
		if err != nil {
			if ev := openFailure(p.name, err); ev.Kind != last {
				if !send(ctx, out, ev) {
					return nil
				}
				last = ev.Kind
			}
			if !p.wait(ctx) {
				return nil
			}
			continue
		}

		p.setCurrent(fr)
		last = Attached
		if !send(ctx, out, Event{Kind: Attached, Reader: p.name}) {
			p.closeCurrent()
			return nil
		}

		err = p.readLoop(ctx, fr, out)
		p.closeCurrent()
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return nil
		}
		if !send(ctx, out, Event{Kind: Fault, Reader: p.name, Err: err}) {
			return nil
		}
		last = Fault
		if !p.wait(ctx) {
			return nil
		}
	}
}

// openFailure reports a missing device node as a detach and anything else
// as a fault.
func openFailure(name string, err error) Event {
	if errors.Is(err, fs.ErrNotExist) {
		return Event{Kind: Detached, Reader: name}
	}
	return Event{Kind: Fault, Reader: name, Err: err}
}

func (p *Poller) readLoop(ctx context.Context, fr frameReader, out chan<- Event) error {
	for {
		raw, err := fr.ReadTag(ctx)
		if err != nil {
			return err
		}
		if raw.IsZero() {
			continue
		}
		if !send(ctx, out, Event{Kind: CardPresent, Reader: p.name, UID: raw}) {
			return ctx.Err()
		}
	}
}

func (p *Poller) wait(ctx context.Context) bool {
	return wait(ctx, p.retry)
}

// wait sleeps for d and reports false if ctx ends first.
func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (p *Poller) setCurrent(fr frameReader) {
	p.mu.Lock()
	p.cur = fr
	p.mu.Unlock()
}

func (p *Poller) closeCurrent() error {
	p.mu.Lock()
	fr := p.cur
	p.cur = nil
	p.mu.Unlock()
	if fr == nil {
		return nil
	}
	return fr.Close()
}

// Close implements Source.Close.
func (p *Poller) Close() error {
	return p.closeCurrent()
}
