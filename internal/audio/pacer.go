// Package audio converts ordered byte streams into paced, fixed-size
// frames for the translation engine.
package audio

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/prog-le/Simultaneous-Interpretation/internal/observability/logging"
)

// FrameSink consumes frames produced by an ingestion loop. Forward
// reports whether the loop should keep reading; a stopped session
// returns false so no frame reaches a released engine handle.
type FrameSink interface {
	Forward(frame []byte) bool
}

// Pacer slices a byte stream into fixed-size frames and delivers them
// at a bounded rate. The inter-frame sleep is a deliberate throttle,
// not a wall-clock scheduler.
type Pacer struct {
	FrameBytes   int
	PaddingBytes int
	SettleDelay  time.Duration
	FrameDelay   time.Duration

	logger zerolog.Logger
}

// NewPacer creates a pacer with the given framing parameters.
func NewPacer(frameBytes, paddingBytes int, settleDelay, frameDelay time.Duration) *Pacer {
	return &Pacer{
		FrameBytes:   frameBytes,
		PaddingBytes: paddingBytes,
		SettleDelay:  settleDelay,
		FrameDelay:   frameDelay,
		logger:       logging.WithComponent("audio.pacer"),
	}
}

// Stream reads r to exhaustion, forwarding frames to sink. A leading
// silence frame lets the engine settle before real audio, and a
// trailing one signals end of stream. Read errors are logged and
// treated as end of stream; they never fail the session.
func (p *Pacer) Stream(ctx context.Context, r io.Reader, sink FrameSink) {
	padding := make([]byte, p.PaddingBytes)
	if !sink.Forward(padding) {
		return
	}
	if !p.sleep(ctx, p.SettleDelay) {
		return
	}

	buf := make([]byte, p.FrameBytes)
	var seq uint64
	var sentBytes int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			frame := make([]byte, n)
			copy(frame, buf[:n])
			if !sink.Forward(frame) {
				return
			}
			seq++
			sentBytes += int64(n)
		}
		if err != nil {
			if err != io.EOF {
				p.logger.Warn().Err(err).Uint64("frames", seq).Msg("audio source read failed, treating as end of stream")
			}
			break
		}
		if !p.sleep(ctx, p.FrameDelay) {
			return
		}
	}

	sink.Forward(padding)
	p.logger.Info().Uint64("frames", seq).Int64("bytes", sentBytes).Msg("audio stream finished")
}

// sleep waits for d unless the context is cancelled first.
func (p *Pacer) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
