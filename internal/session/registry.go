package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prog-le/Simultaneous-Interpretation/internal/audio"
	"github.com/prog-le/Simultaneous-Interpretation/internal/config"
	"github.com/prog-le/Simultaneous-Interpretation/internal/engine"
	"github.com/prog-le/Simultaneous-Interpretation/internal/events"
	"github.com/prog-le/Simultaneous-Interpretation/internal/observability/logging"
	"github.com/prog-le/Simultaneous-Interpretation/internal/observability/metrics"
)

// CreateParams are the client-supplied parameters for a new session.
type CreateParams struct {
	SourceLanguage  string
	TargetLanguages []string
	APIKey          string
	UseLiveCapture  bool
}

// RegistryOptions wires the registry's collaborators.
type RegistryOptions struct {
	EngineFactory  engine.Factory
	EngineProvider string
	EngineConfig   config.EngineConfig
	AudioConfig    config.AudioConfig

	// NewCaptureDevice creates a capture device for live sessions; nil
	// when live capture is not available in this deployment.
	NewCaptureDevice func() audio.CaptureDevice

	// Mirror optionally republishes segment events to Kafka.
	Mirror *events.Publisher

	Metrics *metrics.Metrics
}

// Registry is the single source of truth for session existence. It is
// safe for concurrent use from request handlers and engine callback
// goroutines.
type Registry struct {
	opts    RegistryOptions
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry(opts RegistryOptions) *Registry {
	m := opts.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Registry{
		opts:     opts,
		logger:   logging.WithComponent("session.registry"),
		metrics:  m,
		sessions: make(map[string]*Session),
	}
}

// Create validates params, starts the engine session and registers the
// session. On any failure nothing is registered and no engine handle
// leaks.
func (r *Registry) Create(ctx context.Context, p CreateParams) (*Session, error) {
	if p.SourceLanguage == "" {
		return nil, fmt.Errorf("%w: source language is required", ErrInvalidParams)
	}
	if len(p.TargetLanguages) == 0 {
		return nil, fmt.Errorf("%w: at least one target language is required", ErrInvalidParams)
	}
	if p.UseLiveCapture && r.opts.NewCaptureDevice == nil {
		return nil, fmt.Errorf("%w: live capture is not available", ErrInvalidParams)
	}

	apiKey := p.APIKey
	if apiKey == "" {
		apiKey = r.opts.EngineConfig.APIKey
	}

	id := uuid.NewString()
	s := &Session{
		ID:              id,
		SourceLanguage:  p.SourceLanguage,
		TargetLanguages: append([]string(nil), p.TargetLanguages...),
		UseLiveCapture:  p.UseLiveCapture,
		provider:        r.opts.EngineProvider,
		params: engine.StartParams{
			APIKey:          apiKey,
			Model:           r.opts.EngineConfig.Model,
			Format:          r.opts.EngineConfig.Format,
			SampleRateHz:    r.opts.EngineConfig.SampleRateHz,
			SourceLanguage:  p.SourceLanguage,
			TargetLanguages: append([]string(nil), p.TargetLanguages...),
		},
		createdAt:    time.Now(),
		state:        StateIdle,
		sink:         NewSink(id, r.metrics),
		mirror:       r.opts.Mirror,
		captureDelay: r.opts.AudioConfig.FrameDelay,
		logger:       newSessionLogger(id),
		metrics:      r.metrics,
	}
	if p.UseLiveCapture {
		s.capture = audio.NewCaptureSource(r.opts.NewCaptureDevice(), r.opts.AudioConfig.FrameBytes, id)
	}
	s.terminate = func() { r.Stop(id) }

	if err := s.start(ctx, r.opts.EngineFactory()); err != nil {
		s.sink.Close()
		r.metrics.EngineStartErrors.Inc()
		return nil, err
	}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	r.metrics.RecordSessionStart()
	return s, nil
}

// Get returns the session for id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Stop stops and removes the session. Stopping an unknown or already
// removed id is success: the caller's goal, no further translation
// activity, already holds.
func (r *Registry) Stop(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Debug().Str("sessionId", id).Msg("stop for unknown session, treating as stopped")
		return nil
	}

	err := s.Stop()
	s.close()
	return err
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown stops every registered session.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	remaining := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		remaining = append(remaining, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range remaining {
		if err := s.Stop(); err != nil {
			r.logger.Warn().Err(err).Str("sessionId", s.ID).Msg("session stop during shutdown failed")
		}
		s.close()
	}
	if len(remaining) > 0 {
		r.logger.Info().Int("count", len(remaining)).Msg("stopped remaining sessions")
	}
}
