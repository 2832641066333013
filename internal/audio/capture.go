package audio

import (
	"github.com/rs/zerolog"

	"github.com/prog-le/Simultaneous-Interpretation/internal/observability/logging"
)

// CaptureDevice abstracts a live audio input such as a microphone.
type CaptureDevice interface {
	// Open prepares the device for mono 16-bit capture at sampleRate.
	Open(sampleRate int) error

	// Read returns up to n bytes of captured audio, blocking until the
	// device has data.
	Read(n int) ([]byte, error)

	// Close releases the device.
	Close() error
}

// CaptureSource owns a capture device for one session. The device
// handle lives here, not in package-level state, so concurrent
// sessions cannot trample each other's streams.
type CaptureSource struct {
	device     CaptureDevice
	frameBytes int
	logger     zerolog.Logger
}

// NewCaptureSource wraps a device for framed reads.
func NewCaptureSource(device CaptureDevice, frameBytes int, sessionID string) *CaptureSource {
	return &CaptureSource{
		device:     device,
		frameBytes: frameBytes,
		logger:     logging.WithSession(sessionID).With().Str("component", "audio.capture").Logger(),
	}
}

// Open prepares the underlying device.
func (c *CaptureSource) Open(sampleRate int) error {
	return c.device.Open(sampleRate)
}

// ReadFrame reads one frame from the device. A read error is logged
// and reported as end of stream via ok=false.
func (c *CaptureSource) ReadFrame() (frame []byte, ok bool) {
	data, err := c.device.Read(c.frameBytes)
	if err != nil {
		c.logger.Warn().Err(err).Msg("capture read failed, ending live ingestion")
		return nil, false
	}
	return data, true
}

// Close releases the underlying device.
func (c *CaptureSource) Close() error {
	if err := c.device.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("capture device close failed")
		return err
	}
	return nil
}
