package reader

import (
	"context"

	"nfcbridge/uid"
)

// Manual is a Source driven from Go code. Each call blocks until Run has
// taken the event, so calls are observed in order.
type Manual struct {
	ch   chan Event
	done chan struct{}
}

// NewManual creates a Manual source.
func NewManual() *Manual {
	return &Manual{ch: make(chan Event), done: make(chan struct{})}
}

// Run implements Source.Run.
func (m *Manual) Run(ctx context.Context, out chan<- Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.done:
			return nil
		case ev := <-m.ch:
			if !send(ctx, out, ev) {
				return nil
			}
		}
	}
}

// Close implements Source.Close. Pending and future calls are dropped.
func (m *Manual) Close() error {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
	return nil
}

func (m *Manual) emit(ev Event) {
	select {
	case m.ch <- ev:
	case <-m.done:
	}
}

// Attach reports a reader attaching under name.
func (m *Manual) Attach(name string) { m.emit(Event{Kind: Attached, Reader: name}) }

// Detach reports the reader going away.
func (m *Manual) Detach() { m.emit(Event{Kind: Detached}) }

// Present reports a card detection.
func (m *Manual) Present(raw uid.Raw) { m.emit(Event{Kind: CardPresent, UID: raw}) }

// Remove reports a card leaving the field.
func (m *Manual) Remove(raw uid.Raw) { m.emit(Event{Kind: CardRemoved, UID: raw}) }

// Fail reports a driver-level error.
func (m *Manual) Fail(err error) { m.emit(Event{Kind: Fault, Err: err}) }
