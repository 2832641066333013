// Package gummy implements the engine interface against the realtime
// speech translation websocket API (Gummy models).
package gummy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/prog-le/Simultaneous-Interpretation/internal/engine"
	"github.com/prog-le/Simultaneous-Interpretation/internal/observability/logging"
)

// ErrNotStarted is returned when audio is sent before Start succeeds.
var ErrNotStarted = errors.New("gummy: engine not started")

const (
	dialTimeout   = 10 * time.Second
	writeTimeout  = 10 * time.Second
	finishTimeout = 5 * time.Second
)

// Config holds connection settings for the engine endpoint.
type Config struct {
	Endpoint string
	Model    string
}

// Engine is one websocket connection to the realtime translation API.
type Engine struct {
	cfg    Config
	logger zerolog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	taskID string
	closed bool

	// Closed by the read loop when task-finished arrives, so Stop can
	// wait for the engine to flush trailing results.
	finished chan struct{}
}

// New creates an unconnected engine handle.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:      cfg,
		logger:   logging.WithComponent("engine.gummy"),
		finished: make(chan struct{}),
	}
}

// Factory returns an engine.Factory producing handles for cfg.
func Factory(cfg Config) engine.Factory {
	return func() engine.Engine { return New(cfg) }
}

// Start dials the endpoint, submits the run-task request and spawns
// the read loop. The error from a failed dial or task submission is
// returned verbatim so callers can surface it unchanged.
func (e *Engine) Start(ctx context.Context, params engine.StartParams, cb engine.Callback) error {
	header := http.Header{}
	header.Set("Authorization", "bearer "+params.APIKey)

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, e.cfg.Endpoint, header)
	if err != nil {
		return fmt.Errorf("dial engine endpoint: %w", err)
	}

	model := params.Model
	if model == "" {
		model = e.cfg.Model
	}
	taskID := uuid.NewString()

	req := runTaskRequest{
		Header: requestHeader{
			Action:    actionRunTask,
			TaskID:    taskID,
			Streaming: "duplex",
		},
		Payload: runTaskPayload{
			TaskGroup: "audio",
			Task:      "asr",
			Function:  "recognition",
			Model:     model,
			Parameters: taskParameters{
				Format:                     params.Format,
				SampleRate:                 params.SampleRateHz,
				SourceLanguage:             params.SourceLanguage,
				TranscriptionEnabled:       true,
				TranslationEnabled:         true,
				TranslationTargetLanguages: params.TargetLanguages,
			},
		},
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return fmt.Errorf("submit run-task: %w", err)
	}

	e.mu.Lock()
	e.conn = conn
	e.taskID = taskID
	e.mu.Unlock()

	go e.readLoop(conn, taskID, cb)
	return nil
}

// SendFrame forwards one frame of raw audio as a binary message.
func (e *Engine) SendFrame(frame []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conn == nil || e.closed {
		return ErrNotStarted
	}
	e.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return e.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Stop submits finish-task, waits briefly for the engine to flush
// trailing results, then closes the connection. Idempotent.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.closed || e.conn == nil {
		e.closed = true
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	conn := e.conn
	taskID := e.taskID
	e.mu.Unlock()

	finish := finishTaskRequest{
		Header: requestHeader{
			Action:    actionFinishTask,
			TaskID:    taskID,
			Streaming: "duplex",
		},
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(finish); err != nil {
		e.logger.Warn().Err(err).Str("taskId", taskID).Msg("finish-task write failed")
		return conn.Close()
	}

	select {
	case <-e.finished:
	case <-time.After(finishTimeout):
		e.logger.Warn().Str("taskId", taskID).Msg("timed out waiting for task-finished")
	}
	return conn.Close()
}

// readLoop receives server messages and dispatches callbacks until the
// connection drops or the task ends.
func (e *Engine) readLoop(conn *websocket.Conn, taskID string, cb engine.Callback) {
	defer cb.OnClosed()

	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			e.mu.Lock()
			closed := e.closed
			e.mu.Unlock()
			if !closed {
				cb.OnError(fmt.Sprintf("engine connection lost: %v", err))
			}
			return
		}

		switch msg.Header.Event {
		case eventTaskStarted:
			e.logger.Debug().Str("taskId", taskID).Msg("task started")
			cb.OnOpened()
		case eventResultGenerated:
			cb.OnResult(msg.Payload.toResult(msg.Header.TaskID))
		case eventTaskFinished:
			close(e.finished)
			cb.OnComplete()
			return
		case eventTaskFailed:
			e.logger.Error().
				Str("taskId", taskID).
				Str("errorCode", msg.Header.ErrorCode).
				Str("errorMessage", msg.Header.ErrorMessage).
				Msg("task failed")
			cb.OnError(msg.Header.ErrorMessage)
			return
		default:
			e.logger.Debug().Str("event", msg.Header.Event).Msg("ignoring unknown engine event")
		}
	}
}
