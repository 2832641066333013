package gummy

import "github.com/prog-le/Simultaneous-Interpretation/internal/models"

// Wire format of the realtime inference websocket protocol. Control
// messages are JSON text frames; audio travels as binary frames.

const (
	actionRunTask    = "run-task"
	actionFinishTask = "finish-task"

	eventTaskStarted     = "task-started"
	eventResultGenerated = "result-generated"
	eventTaskFinished    = "task-finished"
	eventTaskFailed      = "task-failed"
)

type requestHeader struct {
	Action    string `json:"action"`
	TaskID    string `json:"task_id"`
	Streaming string `json:"streaming"`
}

type runTaskRequest struct {
	Header  requestHeader  `json:"header"`
	Payload runTaskPayload `json:"payload"`
}

type runTaskPayload struct {
	TaskGroup  string         `json:"task_group"`
	Task       string         `json:"task"`
	Function   string         `json:"function"`
	Model      string         `json:"model"`
	Parameters taskParameters `json:"parameters"`
	Input      struct{}       `json:"input"`
}

type taskParameters struct {
	Format                     string   `json:"format"`
	SampleRate                 int      `json:"sample_rate"`
	SourceLanguage             string   `json:"source_language,omitempty"`
	TranscriptionEnabled       bool     `json:"transcription_enabled"`
	TranslationEnabled         bool     `json:"translation_enabled"`
	TranslationTargetLanguages []string `json:"translation_target_languages"`
}

type finishTaskRequest struct {
	Header  requestHeader `json:"header"`
	Payload struct {
		Input struct{} `json:"input"`
	} `json:"payload"`
}

type serverMessage struct {
	Header  responseHeader `json:"header"`
	Payload resultPayload  `json:"payload"`
}

type responseHeader struct {
	TaskID       string `json:"task_id"`
	Event        string `json:"event"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type resultPayload struct {
	Output resultOutput `json:"output"`
}

type resultOutput struct {
	Transcription *wireSegment  `json:"transcription,omitempty"`
	Translations  []wireSegment `json:"translations,omitempty"`
}

type wireSegment struct {
	Lang        string     `json:"lang,omitempty"`
	SentenceID  int        `json:"sentence_id"`
	Text        string     `json:"text"`
	SentenceEnd bool       `json:"sentence_end"`
	Stash       *wireStash `json:"stash,omitempty"`
}

type wireStash struct {
	Text string `json:"text"`
}

// toResult resolves a wire payload into the tagged result form used by
// the rest of the service.
func (p *resultPayload) toResult(requestID string) *models.EngineResult {
	res := &models.EngineResult{RequestID: requestID}

	if t := p.Output.Transcription; t != nil {
		res.Transcription = t.toSegment()
	}
	if len(p.Output.Translations) > 0 {
		res.Translations = make(map[string]*models.SegmentText, len(p.Output.Translations))
		for i := range p.Output.Translations {
			w := &p.Output.Translations[i]
			res.Translations[w.Lang] = w.toSegment()
		}
	}
	return res
}

func (w *wireSegment) toSegment() *models.SegmentText {
	seg := &models.SegmentText{
		Text:          w.Text,
		SentenceID:    w.SentenceID,
		IsSentenceEnd: w.SentenceEnd,
	}
	if w.Stash != nil && w.Stash.Text != "" {
		seg.Stash = &models.Stash{Text: w.Stash.Text}
	}
	return seg
}
