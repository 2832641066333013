// Package session implements the translation session orchestrator:
// the per-session state machine, the registry of live sessions and the
// event fan-out sink.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prog-le/Simultaneous-Interpretation/internal/audio"
	"github.com/prog-le/Simultaneous-Interpretation/internal/engine"
	"github.com/prog-le/Simultaneous-Interpretation/internal/events"
	"github.com/prog-le/Simultaneous-Interpretation/internal/models"
	"github.com/prog-le/Simultaneous-Interpretation/internal/observability/logging"
	"github.com/prog-le/Simultaneous-Interpretation/internal/observability/metrics"
)

// State is the lifecycle state of a session.
type State int

const (
	// StateIdle - constructed, engine not yet started.
	StateIdle State = iota
	// StateRunning - engine started, audio accepted.
	StateRunning
	// StatePaused - engine context retained, audio ingestion suspended.
	StatePaused
	// StateStopped - terminal; engine released.
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// Errors for session operations.
var (
	ErrInvalidParams     = errors.New("invalid session parameters")
	ErrNotFound          = errors.New("session not found")
	ErrInvalidTransition = errors.New("invalid session state transition")
)

// Session is one client's end-to-end translation activity. It owns the
// engine handle, the event sink and, for live sessions, the capture
// source. State is read by ingestion loops on every frame and mutated
// by request handlers, so all access goes through the mutex.
type Session struct {
	ID              string
	SourceLanguage  string
	TargetLanguages []string
	UseLiveCapture  bool

	provider  string
	params    engine.StartParams
	createdAt time.Time

	mu    sync.RWMutex
	state State
	eng   engine.Engine // non-nil iff state is RUNNING or PAUSED

	sink         *Sink
	mirror       *events.Publisher
	capture      *audio.CaptureSource
	captureDelay time.Duration

	// terminate detaches the session from its registry after a fatal
	// engine error.
	terminate func()

	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// Sink returns the session's event fan-out sink.
func (s *Session) Sink() *Sink {
	return s.sink
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// EngineAttached reports whether the session currently holds an engine
// handle.
func (s *Session) EngineAttached() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eng != nil
}

// start transitions Idle -> Running by opening the engine session. On
// failure the session holds no engine handle and must not be
// registered.
func (s *Session) start(ctx context.Context, eng engine.Engine) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, s.state)
	}
	s.mu.Unlock()

	if err := eng.Start(ctx, s.params, s); err != nil {
		return fmt.Errorf("engine start failure: %w", err)
	}

	s.mu.Lock()
	s.state = StateRunning
	s.eng = eng
	s.mu.Unlock()

	if s.UseLiveCapture {
		if err := s.capture.Open(s.params.SampleRateHz); err != nil {
			// The engine session is live but the device is not; fail the
			// start so the caller does not wait on a silent session.
			s.Stop()
			return fmt.Errorf("engine start failure: open capture device: %w", err)
		}
		go s.runCaptureLoop()
	}

	s.logger.Info().
		Str("sourceLanguage", s.SourceLanguage).
		Strs("targetLanguages", s.TargetLanguages).
		Bool("liveCapture", s.UseLiveCapture).
		Msg("session started")
	return nil
}

// Pause suspends audio ingestion while keeping the engine context.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, s.state)
	}
	s.state = StatePaused
	s.logger.Info().Msg("session paused")
	return nil
}

// Resume restarts audio ingestion. For live capture the loop restarts
// from the current device position; audio captured while paused is not
// buffered.
func (s *Session) Resume() error {
	s.mu.Lock()
	if s.state != StatePaused {
		defer s.mu.Unlock()
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, s.state)
	}
	s.state = StateRunning
	live := s.UseLiveCapture
	s.mu.Unlock()

	if live {
		go s.runCaptureLoop()
	}
	s.logger.Info().Msg("session resumed")
	return nil
}

// Stop releases the engine handle. Idempotent: stopping a stopped
// session succeeds, since the caller's goal already holds.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	prev := s.state
	s.state = StateStopped
	eng := s.eng
	s.eng = nil
	s.mu.Unlock()

	// No ingestion loop can reach the handle once the write lock was
	// held: Forward sends under the read lock and re-checks state.
	if eng != nil {
		if err := eng.Stop(); err != nil {
			s.logger.Warn().Err(err).Msg("engine stop failed")
		}
	}
	if s.capture != nil && prev != StateIdle {
		s.capture.Close()
	}

	s.logger.Info().Str("previousState", prev.String()).Msg("session stopped")
	return nil
}

// Forward forwards one audio frame to the engine. While paused the
// frame is dropped, not queued; once stopped it reports false so
// ingestion loops cease.
func (s *Session) Forward(frame []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch s.state {
	case StateRunning:
		if err := s.eng.SendFrame(frame); err != nil {
			s.logger.Warn().Err(err).Msg("frame send failed, ending ingestion")
			s.metrics.RecordFrameDropped("send_error")
			return false
		}
		s.metrics.RecordFrameForwarded(len(frame))
		return true
	case StatePaused:
		s.metrics.RecordFrameDropped("paused")
		return true
	default:
		s.metrics.RecordFrameDropped("stopped")
		return false
	}
}

// runCaptureLoop reads frames from the capture device while the
// session is Running. It exits on pause or stop and is restarted by
// Resume.
func (s *Session) runCaptureLoop() {
	s.logger.Debug().Msg("live capture loop started")
	for {
		if s.State() != StateRunning {
			break
		}
		frame, ok := s.capture.ReadFrame()
		if !ok {
			break
		}
		if !s.Forward(frame) {
			break
		}
		time.Sleep(s.captureDelay)
	}
	s.logger.Debug().Msg("live capture loop ended")
}

// close releases the session's remaining resources after it has been
// removed from the registry.
func (s *Session) close() {
	s.sink.Close()
	s.metrics.RecordSessionEnd(time.Since(s.createdAt).Seconds())
}

// --- engine.Callback implementation ---

// OnOpened is called when the engine connection is established.
func (s *Session) OnOpened() {
	s.logger.Debug().Msg("engine connection opened")
}

// OnClosed is called when the engine connection is torn down.
func (s *Session) OnClosed() {
	s.logger.Debug().Msg("engine connection closed")
}

// OnResult fans one engine result out as transcription and
// per-language translation events, in target-language order.
func (s *Session) OnResult(res *models.EngineResult) {
	if res == nil {
		return
	}
	if res.Transcription != nil {
		s.emit(models.Event{
			Kind:      models.EventTranscription,
			RequestID: res.RequestID,
			Segment:   res.Transcription,
		})
	}
	for _, lang := range s.TargetLanguages {
		seg, ok := res.Translations[lang]
		if !ok || seg == nil {
			continue
		}
		s.emit(models.Event{
			Kind:      models.EventTranslation,
			RequestID: res.RequestID,
			Language:  lang,
			Segment:   seg,
		})
	}
}

// OnError reports an engine error to the subscriber and tears the
// session down; a session whose engine failed cannot make progress.
func (s *Session) OnError(message string) {
	s.logger.Error().Str("engineError", message).Msg("engine reported error")
	s.metrics.RecordEngineError(s.provider)
	s.emit(models.Event{Kind: models.EventError, Message: message})

	// Termination stops the engine handle, which may block; never do
	// that on the engine's own callback goroutine.
	if s.terminate != nil {
		go s.terminate()
	}
}

// OnComplete signals that the engine finished processing the stream.
func (s *Session) OnComplete() {
	s.emit(models.Event{Kind: models.EventComplete})
}

// emit publishes to the sink and mirrors segment events to Kafka.
func (s *Session) emit(ev models.Event) {
	ev.SessionID = s.ID
	s.sink.Publish(ev)
	if s.mirror != nil && ev.Segment != nil {
		s.mirror.Publish(context.Background(), ev)
	}
}

var _ engine.Callback = (*Session)(nil)

// newSessionLogger builds the session-scoped logger.
func newSessionLogger(id string) zerolog.Logger {
	return logging.WithSession(id).With().Str("component", "session").Logger()
}
