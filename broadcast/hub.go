// Package broadcast fans bridge events out to every connected subscriber.
//
// Each subscriber owns a bounded queue drained by its own writer goroutine,
// so a slow or stalled connection never delays publishing or the other
// subscribers. Frames are delivered to one subscriber in publish order.
package broadcast

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"nfcbridge/reader"
)

// ErrClosed is returned when subscribing to a hub that has shut down.
var ErrClosed = errors.New("broadcast hub closed")

// Conn is the subset of *websocket.Conn used by the hub. ReadMessage and
// WriteMessage are each called from a single goroutine.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Options configures a Hub.
type Options struct {
	QueueSize    int                 // frames buffered per subscriber
	WriteTimeout time.Duration       // a write that takes longer drops the subscriber
	State        func() reader.State // reader snapshot for CONNECTED
	Now          func() time.Time
	Logger       zerolog.Logger
}

// Hub is the subscriber registry.
type Hub struct {
	queueSize    int
	writeTimeout time.Duration
	state        func() reader.State
	now          func() time.Time
	log          zerolog.Logger

	mu     sync.RWMutex
	subs   map[uuid.UUID]*Subscriber
	closed bool
}

// New creates a hub.
func New(opts Options) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.State == nil {
		opts.State = func() reader.State { return reader.State{} }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Hub{
		queueSize:    opts.QueueSize,
		writeTimeout: opts.WriteTimeout,
		state:        opts.State,
		now:          opts.Now,
		log:          opts.Logger,
		subs:         make(map[uuid.UUID]*Subscriber),
	}
}

// Subscriber is one connected client.
type Subscriber struct {
	ID uuid.UUID

	hub   *Hub
	conn  Conn
	queue chan []byte
	done  chan struct{}
	once  sync.Once
}

// Done is closed once the subscriber has been removed.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// enqueue never blocks; false means the frame was dropped.
func (s *Subscriber) enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.queue <- frame:
		return true
	default:
		return false
	}
}

func (s *Subscriber) stop() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *Subscriber) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.queue:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.hub.remove(s, err)
				return
			}
		}
	}
}

// Subscribe registers conn and queues its CONNECTED greeting ahead of any
// published frame. The greeting's reader state is read after registration.
// Callers of Publish must not hold locks that State takes.
func (h *Hub) Subscribe(conn Conn) (*Subscriber, error) {
	s := &Subscriber{
		ID:    uuid.New(),
		hub:   h,
		conn:  conn,
		queue: make(chan []byte, h.queueSize),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	h.subs[s.ID] = s
	n := len(h.subs)
	greeting, err := json.Marshal(NewConnected(h.state(), n, h.now()))
	if err == nil {
		s.queue <- greeting
	}
	h.mu.Unlock()

	subscribersGauge.Set(float64(n))
	h.log.Info().Str("subscriber", s.ID.String()).Int("subscribers", n).Msg("subscriber connected")
	go s.writeLoop()
	return s, nil
}

// Unsubscribe removes s. It is safe to call more than once.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.remove(s, nil)
}

func (h *Hub) remove(s *Subscriber, cause error) {
	h.mu.Lock()
	_, ok := h.subs[s.ID]
	delete(h.subs, s.ID)
	n := len(h.subs)
	h.mu.Unlock()

	s.stop()
	if !ok {
		return
	}
	subscribersGauge.Set(float64(n))
	ev := h.log.Info()
	if cause != nil {
		ev = h.log.Warn().Err(cause)
	}
	ev.Str("subscriber", s.ID.String()).Int("subscribers", n).Msg("subscriber disconnected")
}

// Publish encodes v once and queues it for every current subscriber.
// Subscribers whose queue is full miss this frame.
func (h *Hub) Publish(v any) error {
	frame, err := json.Marshal(v)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if !s.enqueue(frame) {
			droppedFrames.Inc()
			h.log.Debug().Str("subscriber", s.ID.String()).Msg("subscriber backpressured, frame skipped")
		}
	}
	return nil
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Serve subscribes conn and reads client messages until the connection
// fails or the hub closes it. The subscriber is removed before returning.
func (h *Hub) Serve(conn Conn) error {
	s, err := h.Subscribe(conn)
	if err != nil {
		conn.Close()
		return err
	}
	defer h.Unsubscribe(s)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		h.handleClient(s, data)
	}
}

// handleClient answers PING; anything else is ignored.
func (h *Hub) handleClient(s *Subscriber, data []byte) {
	var m clientMessage
	if err := json.Unmarshal(data, &m); err != nil {
		h.log.Debug().Str("subscriber", s.ID.String()).Msg("ignoring non-JSON client message")
		return
	}
	if m.Type != TypePing {
		return
	}
	frame, err := json.Marshal(NewPong(h.now()))
	if err != nil {
		return
	}
	if !s.enqueue(frame) {
		droppedFrames.Inc()
	}
}

// Close sends a going-away close frame to every subscriber and drops them.
// Later calls are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*Subscriber, 0, len(h.subs))
	for id, s := range h.subs {
		subs = append(subs, s)
		delete(h.subs, id)
	}
	h.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	deadline := time.Now().Add(time.Second)
	for _, s := range subs {
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		s.stop()
	}
	subscribersGauge.Set(0)
	h.log.Info().Int("subscribers", len(subs)).Msg("closed all subscribers")
}
