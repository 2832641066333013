package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prog-le/Simultaneous-Interpretation/internal/models"
	"github.com/prog-le/Simultaneous-Interpretation/internal/observability/logging"
	"github.com/prog-le/Simultaneous-Interpretation/internal/observability/metrics"
)

// Subscriber is one delivery channel for session events, typically a
// websocket connection. Send may fail if the peer disconnected.
type Subscriber interface {
	Send(ev models.Event) error
}

// Sink bridges the engine's asynchronous callbacks into the single
// subscriber a client attaches. Publish never blocks the caller; events
// are buffered until a subscriber attaches and delivered strictly in
// publish order by a dedicated goroutine. A subscriber that detaches
// (or is replaced) does not terminate the session, and events published
// while no subscriber is attached are replayed on the next attach.
type Sink struct {
	sessionID string
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	mu     sync.Mutex
	buf    []models.Event
	sub    Subscriber
	seq    uint64
	closed bool

	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
}

// NewSink creates a sink and starts its delivery goroutine.
func NewSink(sessionID string, m *metrics.Metrics) *Sink {
	s := &Sink{
		sessionID: sessionID,
		logger:    logging.WithSession(sessionID).With().Str("component", "session.sink").Logger(),
		metrics:   m,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		exited:    make(chan struct{}),
	}
	go s.deliverLoop()
	return s
}

// Publish enqueues an event for delivery. Safe to call from any
// goroutine, including engine callback contexts; never blocks on the
// subscriber.
func (s *Sink) Publish(ev models.Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug().Str("kind", string(ev.Kind)).Msg("event dropped, sink closed")
		return
	}
	s.seq++
	ev.Seq = s.seq
	ev.SessionID = s.sessionID
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	s.buf = append(s.buf, ev)
	s.mu.Unlock()

	s.metrics.RecordEventPublished(string(ev.Kind))
	s.metrics.EventsBuffered.Inc()
	s.signal()
}

// Attach sets the current subscriber, replacing any previous one
// (last-attached wins). Buffered events are flushed to it in order.
func (s *Sink) Attach(sub Subscriber) {
	s.mu.Lock()
	replaced := s.sub != nil
	s.sub = sub
	s.mu.Unlock()

	if replaced {
		s.logger.Info().Msg("subscriber replaced")
	}
	s.signal()
}

// Detach removes the current subscriber. The session keeps running and
// subsequent events are buffered for the next attach.
func (s *Sink) Detach() {
	s.mu.Lock()
	s.sub = nil
	s.mu.Unlock()
}

// Close stops accepting events and shuts the delivery goroutine down.
// Events already buffered are flushed to an attached subscriber first;
// Close returns only once delivery has finished, so callers may tear
// the subscriber connection down afterwards.
func (s *Sink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	s.mu.Unlock()

	<-s.exited
}

// Buffered returns the number of events awaiting delivery.
func (s *Sink) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

func (s *Sink) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// deliverLoop drains the buffer to the attached subscriber. Delivery
// failures are logged and never propagate to the publisher.
func (s *Sink) deliverLoop() {
	defer close(s.exited)
	for {
		select {
		case <-s.done:
			s.drain()
			s.discard()
			return
		case <-s.wake:
			s.drain()
		}
	}
}

// drain delivers buffered events while a subscriber is attached.
func (s *Sink) drain() {
	for {
		s.mu.Lock()
		if s.sub == nil || len(s.buf) == 0 {
			s.mu.Unlock()
			return
		}
		ev := s.buf[0]
		s.buf = s.buf[1:]
		sub := s.sub
		s.mu.Unlock()

		s.metrics.EventsBuffered.Dec()
		err := sub.Send(ev)
		s.metrics.RecordDelivery(err)
		if err != nil {
			s.logger.Warn().Err(err).Uint64("seq", ev.Seq).Str("kind", string(ev.Kind)).
				Msg("event delivery failed")
		}
	}
}

// discard drops whatever could not be delivered at close time.
func (s *Sink) discard() {
	s.mu.Lock()
	dropped := len(s.buf)
	s.buf = nil
	s.mu.Unlock()

	for i := 0; i < dropped; i++ {
		s.metrics.EventsBuffered.Dec()
	}
	if dropped > 0 {
		s.logger.Debug().Int("count", dropped).Msg("dropped undeliverable events at close")
	}
}
