// Package mock provides a mock translation engine for testing without
// engine credentials. It simulates realistic behavior: progressive
// partial transcriptions, exactly one sentence-final result per
// utterance carrying translations for every requested target language.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/prog-le/Simultaneous-Interpretation/internal/engine"
	"github.com/prog-le/Simultaneous-Interpretation/internal/models"
)

// SimulatedUtterance is a mock utterance with progressive transcripts
// and per-language final translations.
type SimulatedUtterance struct {
	Partials     []string
	Final        string
	Translations map[string]string // language code -> translated final
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials: []string{"Good", "Good morning", "Good morning everyone"},
		Final:    "Good morning everyone, welcome to the meeting",
		Translations: map[string]string{
			"zh": "大家早上好，欢迎参加会议",
			"ja": "皆さんおはようございます、会議へようこそ",
			"ko": "여러분 좋은 아침입니다, 회의에 오신 것을 환영합니다",
		},
	},
	{
		Partials: []string{"Let's", "Let's review", "Let's review the agenda"},
		Final:    "Let's review the agenda for today",
		Translations: map[string]string{
			"zh": "让我们回顾一下今天的议程",
			"ja": "今日の議題を確認しましょう",
			"ko": "오늘의 안건을 검토합시다",
		},
	},
	{
		Partials: []string{"Thank", "Thank you"},
		Final:    "Thank you for your attention",
		Translations: map[string]string{
			"zh": "感谢大家的关注",
			"ja": "ご清聴ありがとうございました",
			"ko": "경청해 주셔서 감사합니다",
		},
	},
}

// Latency applied before asynchronous callbacks fire.
const (
	partialDelay = 50 * time.Millisecond
	finalDelay   = 100 * time.Millisecond
)

// Engine implements engine.Engine with simulated responses.
type Engine struct {
	mu           sync.Mutex
	cb           engine.Callback
	params       engine.StartParams
	utterance    SimulatedUtterance
	requestID    string
	sentenceID   int
	partialIndex int
	finalSent    bool
	started      bool
	stopped      bool
	wg           sync.WaitGroup
}

var (
	utteranceCounter int
	counterMu        sync.Mutex
)

// New creates a new mock engine cycling through the default utterances.
func New() *Engine {
	counterMu.Lock()
	idx := utteranceCounter % len(DefaultUtterances)
	utteranceCounter++
	counterMu.Unlock()

	return &Engine{
		utterance: DefaultUtterances[idx],
		requestID: "mock-request",
	}
}

// NewWithUtterance creates a mock engine replaying a fixed utterance.
func NewWithUtterance(u SimulatedUtterance) *Engine {
	return &Engine{utterance: u, requestID: "mock-request"}
}

// Start begins the mock session.
func (e *Engine) Start(ctx context.Context, params engine.StartParams, cb engine.Callback) error {
	e.mu.Lock()
	e.cb = cb
	e.params = params
	e.started = true
	e.mu.Unlock()

	cb.OnOpened()
	return nil
}

// SendFrame simulates receiving audio. Each frame advances the
// simulated utterance: one partial per frame, then a sentence-final
// result with translations once the partials are exhausted.
func (e *Engine) SendFrame(frame []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped || e.cb == nil {
		return nil
	}

	if e.partialIndex < len(e.utterance.Partials) {
		text := e.utterance.Partials[e.partialIndex]
		e.partialIndex++

		res := &models.EngineResult{
			RequestID: e.requestID,
			Transcription: &models.SegmentText{
				Text:       text,
				SentenceID: e.sentenceID,
				Stash:      remainingStash(e.utterance.Final, text),
			},
		}
		e.dispatch(partialDelay, func(cb engine.Callback) { cb.OnResult(res) })
		return nil
	}

	if !e.finalSent {
		e.finalSent = true
		res := e.finalResult()
		e.dispatch(finalDelay, func(cb engine.Callback) { cb.OnResult(res) })
	}
	return nil
}

// Stop ends the mock session. If the final result was never reached,
// it is emitted first so short streams still produce output.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true

	var res *models.EngineResult
	if e.started && !e.finalSent {
		e.finalSent = true
		res = e.finalResult()
	}
	cb := e.cb
	e.mu.Unlock()

	// Wait for in-flight callbacks so complete/closed arrive last.
	e.wg.Wait()

	if cb != nil {
		if res != nil {
			cb.OnResult(res)
		}
		cb.OnComplete()
		cb.OnClosed()
	}
	return nil
}

// finalResult builds the sentence-final result with translations for
// every requested target language. Caller holds e.mu.
func (e *Engine) finalResult() *models.EngineResult {
	translations := make(map[string]*models.SegmentText, len(e.params.TargetLanguages))
	for _, lang := range e.params.TargetLanguages {
		text, ok := e.utterance.Translations[lang]
		if !ok {
			text = "(" + lang + ") " + e.utterance.Final
		}
		translations[lang] = &models.SegmentText{
			Text:          text,
			SentenceID:    e.sentenceID,
			IsSentenceEnd: true,
		}
	}
	res := &models.EngineResult{
		RequestID: e.requestID,
		Transcription: &models.SegmentText{
			Text:          e.utterance.Final,
			SentenceID:    e.sentenceID,
			IsSentenceEnd: true,
		},
		Translations: translations,
	}
	e.sentenceID++
	return res
}

// dispatch fires a callback after a simulated processing delay.
// Caller holds e.mu.
func (e *Engine) dispatch(delay time.Duration, fn func(engine.Callback)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		time.Sleep(delay)

		e.mu.Lock()
		cb := e.cb
		stopped := e.stopped
		e.mu.Unlock()

		if !stopped && cb != nil {
			fn(cb)
		}
	}()
}

// remainingStash exposes the not-yet-spoken tail of the final sentence
// as speculative stash text, mimicking the realtime engine.
func remainingStash(final, partial string) *models.Stash {
	if len(partial) >= len(final) || final[:len(partial)] != partial {
		return nil
	}
	tail := final[len(partial):]
	for len(tail) > 0 && tail[0] == ' ' {
		tail = tail[1:]
	}
	if tail == "" {
		return nil
	}
	return &models.Stash{Text: tail}
}
