// Package engine defines the interface to the streaming speech
// translation engine. One Engine instance serves one session.
package engine

import (
	"context"

	"github.com/prog-le/Simultaneous-Interpretation/internal/models"
)

// StartParams configures a streaming translation session.
type StartParams struct {
	APIKey          string
	Model           string
	Format          string
	SampleRateHz    int
	SourceLanguage  string
	TargetLanguages []string
}

// Callback receives asynchronous events from the engine. The engine
// may invoke callbacks from any goroutine; implementations must be
// safe for concurrent use and must not block.
type Callback interface {
	// OnOpened is called when the engine connection is established.
	OnOpened()

	// OnClosed is called when the engine connection is torn down.
	OnClosed()

	// OnResult is called for each transcription/translation result.
	OnResult(res *models.EngineResult)

	// OnError is called when the engine reports an error.
	OnError(message string)

	// OnComplete is called when the engine finishes processing.
	OnComplete()
}

// Engine is a streaming speech translation engine handle.
type Engine interface {
	// Start opens the engine session. Events are delivered to cb until
	// Stop is called or the engine fails.
	Start(ctx context.Context, params StartParams, cb Callback) error

	// SendFrame forwards one frame of raw audio to the engine.
	SendFrame(frame []byte) error

	// Stop ends the session and releases the engine handle. Idempotent.
	Stop() error
}

// Factory creates one unstarted Engine per session.
type Factory func() Engine
