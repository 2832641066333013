package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prog-le/Simultaneous-Interpretation/internal/config"
	"github.com/prog-le/Simultaneous-Interpretation/internal/engine"
	"github.com/prog-le/Simultaneous-Interpretation/internal/models"
)

// fakeEngine records frames and exposes the callback so tests can drive
// engine events.
type fakeEngine struct {
	mu       sync.Mutex
	cb       engine.Callback
	params   engine.StartParams
	frames   [][]byte
	startErr error
	sendErr  error
	stops    int
}

func (f *fakeEngine) Start(_ context.Context, params engine.StartParams, cb engine.Callback) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.cb = cb
	f.params = params
	f.mu.Unlock()
	cb.OnOpened()
	return nil
}

func (f *fakeEngine) SendFrame(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	f.frames = append(f.frames, cp)
	return nil
}

func (f *fakeEngine) Stop() error {
	f.mu.Lock()
	f.stops++
	cb := f.cb
	f.mu.Unlock()
	if cb != nil {
		cb.OnClosed()
	}
	return nil
}

func (f *fakeEngine) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeEngine) callback() engine.Callback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *fakeEngine) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func newTestRegistry(fe *fakeEngine) *Registry {
	return NewRegistry(RegistryOptions{
		EngineFactory:  func() engine.Engine { return fe },
		EngineProvider: "fake",
		EngineConfig: config.EngineConfig{
			Model:        "gummy-realtime-v1",
			Format:       "pcm",
			SampleRateHz: 16000,
		},
		AudioConfig: config.AudioConfig{
			FrameBytes: 3200,
		},
	})
}

func validParams() CreateParams {
	return CreateParams{
		SourceLanguage:  "en",
		TargetLanguages: []string{"zh", "ja"},
		APIKey:          "sk-test",
	}
}

func TestRegistry_CreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		params CreateParams
	}{
		{
			name:   "missing source language",
			params: CreateParams{TargetLanguages: []string{"zh"}},
		},
		{
			name:   "no target languages",
			params: CreateParams{SourceLanguage: "en"},
		},
		{
			name: "live capture unavailable",
			params: CreateParams{
				SourceLanguage:  "en",
				TargetLanguages: []string{"zh"},
				UseLiveCapture:  true,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRegistry(&fakeEngine{})
			_, err := r.Create(context.Background(), tc.params)
			if !errors.Is(err, ErrInvalidParams) {
				t.Fatalf("expected ErrInvalidParams, got %v", err)
			}
			if r.Len() != 0 {
				t.Errorf("expected no registered sessions, got %d", r.Len())
			}
		})
	}
}

func TestRegistry_CreateStartsEngine(t *testing.T) {
	fe := &fakeEngine{}
	r := newTestRegistry(fe)

	sess, err := r.Create(context.Background(), validParams())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	defer r.Stop(sess.ID)

	if sess.ID == "" {
		t.Error("expected a session id")
	}
	if got := sess.State(); got != StateRunning {
		t.Errorf("expected RUNNING after create, got %s", got)
	}
	if !sess.EngineAttached() {
		t.Error("running session must hold an engine handle")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 registered session, got %d", r.Len())
	}
	if fe.params.APIKey != "sk-test" || fe.params.SourceLanguage != "en" {
		t.Errorf("engine started with wrong params: %+v", fe.params)
	}
}

func TestRegistry_EngineStartFailureNotRegistered(t *testing.T) {
	fe := &fakeEngine{startErr: errors.New("handshake rejected")}
	r := newTestRegistry(fe)

	_, err := r.Create(context.Background(), validParams())
	if err == nil {
		t.Fatal("expected create to fail")
	}
	if !errors.Is(err, fe.startErr) {
		t.Errorf("expected wrapped engine error, got %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("failed session must not be registered, got %d", r.Len())
	}
}

func TestSession_TransitionGuards(t *testing.T) {
	fe := &fakeEngine{}
	r := newTestRegistry(fe)
	sess, err := r.Create(context.Background(), validParams())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	defer r.Stop(sess.ID)

	// Resume only applies to a paused session.
	if err := sess.Resume(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("resume from RUNNING: expected ErrInvalidTransition, got %v", err)
	}

	if err := sess.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if got := sess.State(); got != StatePaused {
		t.Errorf("expected PAUSED, got %s", got)
	}
	if !sess.EngineAttached() {
		t.Error("paused session must keep its engine handle")
	}

	if err := sess.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("pause from PAUSED: expected ErrInvalidTransition, got %v", err)
	}

	if err := sess.Resume(); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if got := sess.State(); got != StateRunning {
		t.Errorf("expected RUNNING after resume, got %s", got)
	}
}

func TestSession_PauseDropsFrames(t *testing.T) {
	fe := &fakeEngine{}
	r := newTestRegistry(fe)
	sess, err := r.Create(context.Background(), validParams())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	defer r.Stop(sess.ID)

	if !sess.Forward([]byte{1, 2, 3}) {
		t.Fatal("forward while running should continue ingestion")
	}
	if fe.frameCount() != 1 {
		t.Fatalf("expected 1 forwarded frame, got %d", fe.frameCount())
	}

	if err := sess.Pause(); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	// Paused drops the frame but keeps the ingestion loop alive.
	if !sess.Forward([]byte{4, 5, 6}) {
		t.Error("forward while paused should keep the loop alive")
	}
	if fe.frameCount() != 1 {
		t.Errorf("paused frame must not reach the engine, engine saw %d frames", fe.frameCount())
	}

	if err := sess.Resume(); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if !sess.Forward([]byte{7, 8, 9}) {
		t.Error("forward after resume should continue ingestion")
	}
	if fe.frameCount() != 2 {
		t.Errorf("expected 2 forwarded frames after resume, got %d", fe.frameCount())
	}
}

func TestSession_StopIdempotent(t *testing.T) {
	fe := &fakeEngine{}
	r := newTestRegistry(fe)
	sess, err := r.Create(context.Background(), validParams())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := sess.Stop(); err != nil {
		t.Fatalf("first stop failed: %v", err)
	}
	if err := sess.Stop(); err != nil {
		t.Fatalf("second stop must succeed: %v", err)
	}
	if fe.stopCount() != 1 {
		t.Errorf("engine stop must run once, ran %d times", fe.stopCount())
	}
	if sess.EngineAttached() {
		t.Error("stopped session must not hold an engine handle")
	}
	if got := sess.State(); got != StateStopped {
		t.Errorf("expected STOPPED, got %s", got)
	}

	if sess.Forward([]byte{1}) {
		t.Error("forward after stop must tell the loop to cease")
	}

	r.Stop(sess.ID)
}

func TestRegistry_StopUnknownIDSucceeds(t *testing.T) {
	r := newTestRegistry(&fakeEngine{})
	if err := r.Stop("never-existed"); err != nil {
		t.Fatalf("stop of unknown session must succeed, got %v", err)
	}
}

func TestRegistry_StopRemovesSession(t *testing.T) {
	fe := &fakeEngine{}
	r := newTestRegistry(fe)
	sess, err := r.Create(context.Background(), validParams())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := r.Stop(sess.ID); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if _, err := r.Get(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after stop, got %v", err)
	}
	// Stopping again is still success.
	if err := r.Stop(sess.ID); err != nil {
		t.Errorf("repeated stop must succeed, got %v", err)
	}
}

func TestSession_ResultFanOutFollowsTargetOrder(t *testing.T) {
	fe := &fakeEngine{}
	r := newTestRegistry(fe)
	sess, err := r.Create(context.Background(), validParams())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	defer r.Stop(sess.ID)

	sub := &recordingSubscriber{}
	sess.Sink().Attach(sub)

	fe.callback().OnResult(&models.EngineResult{
		RequestID:     "req-1",
		Transcription: &models.SegmentText{Text: "hello world", SentenceID: 1},
		Translations: map[string]*models.SegmentText{
			"ja": {Text: "konnichiwa", SentenceID: 1},
			"zh": {Text: "nihao", SentenceID: 1},
			"ko": {Text: "unrequested", SentenceID: 1},
		},
	})

	waitFor(t, func() bool { return len(sub.snapshot()) == 3 })

	got := sub.snapshot()
	if got[0].Kind != models.EventTranscription || got[0].Segment.Text != "hello world" {
		t.Errorf("expected transcription first, got %+v", got[0])
	}
	if got[1].Kind != models.EventTranslation || got[1].Language != "zh" {
		t.Errorf("expected zh translation second, got %+v", got[1])
	}
	if got[2].Kind != models.EventTranslation || got[2].Language != "ja" {
		t.Errorf("expected ja translation third, got %+v", got[2])
	}
	for i, ev := range got {
		if ev.RequestID != "req-1" {
			t.Errorf("event %d: expected requestId req-1, got %s", i, ev.RequestID)
		}
	}
}

func TestSession_EngineErrorTerminatesSession(t *testing.T) {
	fe := &fakeEngine{}
	r := newTestRegistry(fe)
	sess, err := r.Create(context.Background(), validParams())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	sub := &recordingSubscriber{}
	sess.Sink().Attach(sub)

	fe.callback().OnError("quota exceeded")

	waitFor(t, func() bool { return r.Len() == 0 })
	waitFor(t, func() bool { return len(sub.snapshot()) >= 1 })

	got := sub.snapshot()
	if got[0].Kind != models.EventError || got[0].Message != "quota exceeded" {
		t.Errorf("expected error event first, got %+v", got[0])
	}
	if sess.State() != StateStopped {
		t.Errorf("expected STOPPED after engine error, got %s", sess.State())
	}
}

func TestRegistry_ConcurrentCreateAndStop(t *testing.T) {
	r := newTestRegistry(nil)
	r.opts.EngineFactory = func() engine.Engine { return &fakeEngine{} }

	const n = 20
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := r.Create(context.Background(), validParams())
			if err != nil {
				t.Errorf("create failed: %v", err)
				return
			}
			ids <- sess.ID
		}()
	}
	wg.Wait()
	close(ids)

	if r.Len() != n {
		t.Fatalf("expected %d sessions, got %d", n, r.Len())
	}

	for id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := r.Stop(id); err != nil {
				t.Errorf("stop %s failed: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
}

func TestRegistry_ShutdownStopsAllSessions(t *testing.T) {
	engines := make([]*fakeEngine, 0, 3)
	r := NewRegistry(RegistryOptions{
		EngineFactory: func() engine.Engine {
			fe := &fakeEngine{}
			engines = append(engines, fe)
			return fe
		},
		EngineConfig: config.EngineConfig{Model: "gummy-realtime-v1", SampleRateHz: 16000},
	})

	for i := 0; i < 3; i++ {
		if _, err := r.Create(context.Background(), validParams()); err != nil {
			t.Fatalf("create %d failed: %v", i, err)
		}
	}

	r.Shutdown()

	if r.Len() != 0 {
		t.Errorf("expected empty registry after shutdown, got %d", r.Len())
	}
	for i, fe := range engines {
		if fe.stopCount() != 1 {
			t.Errorf("engine %d: expected 1 stop, got %d", i, fe.stopCount())
		}
	}
}

func TestSession_FullLifecycleScenario(t *testing.T) {
	fe := &fakeEngine{}
	r := newTestRegistry(fe)

	sess, err := r.Create(context.Background(), CreateParams{
		SourceLanguage:  "en",
		TargetLanguages: []string{"zh", "ja"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	sub := &recordingSubscriber{}
	sess.Sink().Attach(sub)

	for i := 0; i < 4; i++ {
		if !sess.Forward(make([]byte, 3200)) {
			t.Fatalf("forward %d failed", i)
		}
	}

	fe.callback().OnResult(&models.EngineResult{
		RequestID:     "req-final",
		Transcription: &models.SegmentText{Text: "good morning", SentenceID: 1, IsSentenceEnd: true},
		Translations: map[string]*models.SegmentText{
			"zh": {Text: "zaoshang hao", SentenceID: 1, IsSentenceEnd: true},
			"ja": {Text: "ohayou", SentenceID: 1, IsSentenceEnd: true},
		},
	})
	fe.callback().OnComplete()

	waitFor(t, func() bool { return len(sub.snapshot()) == 4 })

	kinds := make([]string, 0, 4)
	for _, ev := range sub.snapshot() {
		kinds = append(kinds, string(ev.Kind))
	}
	want := fmt.Sprintf("%s %s %s %s",
		models.EventTranscription, models.EventTranslation, models.EventTranslation, models.EventComplete)
	if got := fmt.Sprintf("%s %s %s %s", kinds[0], kinds[1], kinds[2], kinds[3]); got != want {
		t.Fatalf("event order mismatch:\n got %s\nwant %s", got, want)
	}

	if err := r.Stop(sess.ID); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := r.Stop(sess.ID); err != nil {
		t.Fatalf("repeated stop failed: %v", err)
	}
	if fe.frameCount() != 4 {
		t.Errorf("expected 4 frames at the engine, got %d", fe.frameCount())
	}
}
