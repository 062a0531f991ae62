// Package bridge turns reader events into broadcast messages.
//
// Every event from the reader flows through Dispatch on a single goroutine:
// card reads are normalized, debounced and published; attach, detach and
// fault events update the shared ReaderState. A panic while handling one
// event is recovered and logged so later events are still processed.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nfcbridge/broadcast"
	"nfcbridge/debounce"
	"nfcbridge/reader"
	"nfcbridge/uid"
)

// Publisher fans a message out to subscribers.
type Publisher interface {
	Publish(v any) error
}

// Mirror forwards events to a secondary sink such as MQTT.
type Mirror interface {
	Publish(subtopic string, v any) error
}

// Indicator shows reader state on local hardware.
type Indicator interface {
	Ready()
	Scan()
	Fault()
	Detached()
}

// ScanError is a failure while handling an accepted scan. It reaches
// subscribers as an ERROR message.
type ScanError struct {
	UID string
	Err error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("process scan %s: %v", e.UID, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// Options configures a Bridge. Hub is required.
type Options struct {
	Hub       Publisher
	Debounce  *debounce.Filter
	Sup       *Supervisor
	Mirror    Mirror
	Indicator Indicator
	Available bool // false when no driver is configured
	Now       func() time.Time
	Logger    zerolog.Logger
}

// Bridge owns ReaderState and the dispatch path.
type Bridge struct {
	hub    Publisher
	filter *debounce.Filter
	sup    *Supervisor
	mirror Mirror
	ind    Indicator
	now    func() time.Time
	log    zerolog.Logger

	mu    sync.RWMutex
	state reader.State
}

// New creates a bridge.
func New(opts Options) *Bridge {
	if opts.Debounce == nil {
		opts.Debounce = debounce.New(debounce.DefaultWindow)
	}
	if opts.Sup == nil {
		opts.Sup = NewSupervisor(opts.Logger)
	}
	if opts.Mirror == nil {
		opts.Mirror = noMirror{}
	}
	if opts.Indicator == nil {
		opts.Indicator = noIndicator{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	readerAttached.Set(0)
	return &Bridge{
		hub:    opts.Hub,
		filter: opts.Debounce,
		sup:    opts.Sup,
		mirror: opts.Mirror,
		ind:    opts.Indicator,
		now:    opts.Now,
		log:    opts.Logger,
		state:  reader.State{Available: opts.Available},
	}
}

// ReaderState returns a snapshot of the reader state.
func (b *Bridge) ReaderState() reader.State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Supervisor returns the lifecycle owner.
func (b *Bridge) Supervisor() *Supervisor { return b.sup }

// Run dispatches events until ctx is done or events is closed.
func (b *Bridge) Run(ctx context.Context, events <-chan reader.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			b.Dispatch(ev)
		}
	}
}

// Dispatch handles one reader event.
func (b *Bridge) Dispatch(ev reader.Event) {
	defer func() {
		if r := recover(); r != nil {
			handlerPanics.Inc()
			b.log.Error().Interface("panic", r).Stringer("event", ev.Kind).Msg("recovered fault in event handler")
			if ev.Kind == reader.CardPresent {
				b.publishError(fmt.Sprintf("scan processing failed: %v", r))
			}
		}
	}()

	switch ev.Kind {
	case reader.Attached:
		b.attached(ev.Reader)
	case reader.Detached:
		b.detached()
	case reader.CardPresent:
		b.scan(ev)
	case reader.CardRemoved:
		b.removed(ev)
	case reader.Fault:
		b.fault(ev.Err)
	default:
		b.log.Warn().Stringer("event", ev.Kind).Msg("unknown reader event")
	}
}

func (b *Bridge) attached(name string) {
	b.mu.Lock()
	b.state.Attached = true
	b.state.Name = name
	b.mu.Unlock()
	readerAttached.Set(1)

	b.log.Info().Str("reader", name).Msg("reader attached")
	b.sup.ReaderRecovered()
	b.ind.Ready()
	b.mirrorPublish("reader", readerNotice{Event: reader.Attached.String(), Reader: name, Timestamp: b.now().UnixMilli()})
}

func (b *Bridge) detached() {
	b.mu.Lock()
	name := b.state.Name
	b.state.Attached = false
	b.state.Name = ""
	b.mu.Unlock()
	readerAttached.Set(0)

	b.log.Info().Str("reader", name).Msg("reader detached")
	b.ind.Detached()
	b.mirrorPublish("reader", readerNotice{Event: reader.Detached.String(), Reader: name, Timestamp: b.now().UnixMilli()})
}

func (b *Bridge) fault(err error) {
	msg := "reader error"
	if err != nil {
		msg = err.Error()
	}
	b.mu.Lock()
	b.state.Attached = false
	name := b.state.Name
	b.mu.Unlock()
	readerAttached.Set(0)
	readerFaults.Inc()

	b.log.Error().Str("reader", name).Str("error", msg).Msg("reader fault")
	at := b.now()
	if perr := b.hub.Publish(broadcast.NewReaderError(msg, at)); perr != nil {
		b.log.Error().Err(perr).Msg("publish reader error")
	}
	b.sup.ReaderFault()
	b.ind.Fault()
	b.mirrorPublish("reader", readerNotice{Event: reader.Fault.String(), Reader: name, Error: msg, Timestamp: at.UnixMilli()})
}

func (b *Bridge) scan(ev reader.Event) {
	id, err := uid.Normalize(ev.UID)
	if err != nil {
		scansTotal.WithLabelValues(resultMalformed).Inc()
		b.log.Warn().Err(err).Stringer("raw", ev.UID).Msg("dropping card read")
		return
	}

	now := b.now()
	if !b.filter.Accept(id, now) {
		scansTotal.WithLabelValues(resultDebounced).Inc()
		b.log.Debug().Str("uid", id).Msg("debounced repeat read")
		return
	}

	name := ev.Reader
	if name == "" {
		name = b.ReaderState().Name
	}

	if err := b.hub.Publish(broadcast.NewScan(id, name, now)); err != nil {
		scansTotal.WithLabelValues(resultFailed).Inc()
		serr := &ScanError{UID: id, Err: err}
		b.log.Error().Err(serr).Msg("scan not delivered")
		b.publishError(serr.Error())
		return
	}
	scansTotal.WithLabelValues(resultAccepted).Inc()

	b.log.Info().Str("uid", id).Str("reader", name).Msg("card scanned")
	b.ind.Scan()
	b.mirrorPublish("scan", broadcast.NewScan(id, name, now))
}

// removed is informational: it bypasses the debounce filter and is not
// broadcast to subscribers.
func (b *Bridge) removed(ev reader.Event) {
	id, err := uid.Normalize(ev.UID)
	if err != nil {
		id, _ = b.filter.Last()
	}
	name := b.ReaderState().Name
	if ev.Reader != "" {
		name = ev.Reader
	}

	b.log.Info().Str("uid", id).Str("reader", name).Msg("card removed")
	b.mirrorPublish("card_removed", cardNotice{UID: id, Reader: name, Timestamp: b.now().UnixMilli()})
}

func (b *Bridge) publishError(msg string) {
	if err := b.hub.Publish(broadcast.NewError(msg, b.now())); err != nil {
		b.log.Error().Err(err).Msg("publish error event")
	}
}

func (b *Bridge) mirrorPublish(subtopic string, v any) {
	if err := b.mirror.Publish(subtopic, v); err != nil {
		b.log.Warn().Err(err).Str("topic", subtopic).Msg("mirror publish failed")
	}
}

type readerNotice struct {
	Event     string `json:"event"`
	Reader    string `json:"reader,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type cardNotice struct {
	UID       string `json:"uid"`
	Reader    string `json:"reader,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type noMirror struct{}

func (noMirror) Publish(string, any) error { return nil }

type noIndicator struct{}

func (noIndicator) Ready()    {}
func (noIndicator) Scan()     {}
func (noIndicator) Fault()    {}
func (noIndicator) Detached() {}
