// Package models defines the event and result structures exchanged
// between the engine adapter, sessions and subscribers.
package models

// EventKind identifies the type of a session event.
type EventKind string

// Event kinds delivered to session subscribers.
const (
	EventConnected     EventKind = "connected"
	EventTranscription EventKind = "transcription"
	EventTranslation   EventKind = "translation"
	EventError         EventKind = "error"
	EventComplete      EventKind = "complete"

	// Control acknowledgements, mirrored back over the event channel so
	// the subscriber connection has a single writer.
	EventPaused  EventKind = "paused"
	EventResumed EventKind = "resumed"
	EventStopped EventKind = "stopped"
)

// Stash holds speculative trailing text that the engine has not yet
// committed to the current sentence.
type Stash struct {
	Text string `json:"text"`
}

// SegmentText is one transcription or translation segment.
type SegmentText struct {
	Text          string `json:"text"`
	SentenceID    int    `json:"sentenceId"`
	IsSentenceEnd bool   `json:"isSentenceEnd"`
	Stash         *Stash `json:"stash,omitempty"`
}

// EngineResult is the tagged form of one engine result callback,
// resolved once at the adapter boundary. Absent parts are nil.
type EngineResult struct {
	RequestID     string
	Transcription *SegmentText
	Translations  map[string]*SegmentText
}

// IsSentenceEnd reports whether any segment in the result closes a
// sentence.
func (r *EngineResult) IsSentenceEnd() bool {
	if r.Transcription != nil && r.Transcription.IsSentenceEnd {
		return true
	}
	for _, t := range r.Translations {
		if t != nil && t.IsSentenceEnd {
			return true
		}
	}
	return false
}

// Event is the envelope delivered to a session subscriber. Seq is
// assigned by the sink in publish order.
type Event struct {
	SessionID string       `json:"sessionId,omitempty"`
	Seq       uint64       `json:"seq"`
	Kind      EventKind    `json:"kind"`
	RequestID string       `json:"requestId,omitempty"`
	Language  string       `json:"language,omitempty"`
	Segment   *SegmentText `json:"segment,omitempty"`
	Message   string       `json:"message,omitempty"`
	Timestamp int64        `json:"timestamp"`
}
