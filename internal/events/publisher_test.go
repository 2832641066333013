package events

import (
	"context"
	"testing"

	"github.com/prog-le/Simultaneous-Interpretation/internal/models"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerPartial != nil {
				t.Error("expected nil partial writer when disabled")
			}
			if p.writerFinal != nil {
				t.Error("expected nil final writer when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	cfg := &Config{
		Enabled:      false,
		Brokers:      []string{"localhost:9092"},
		TopicPartial: "translation.segment.partial",
		TopicFinal:   "translation.segment.final",
		Principal:    "svc-speech-translation",
	}

	p := New(cfg)

	if p.principal != "svc-speech-translation" {
		t.Errorf("expected principal 'svc-speech-translation', got %s", p.principal)
	}
	if p.topicPartial != "translation.segment.partial" {
		t.Errorf("expected topic partial 'translation.segment.partial', got %s", p.topicPartial)
	}
	if p.topicFinal != "translation.segment.final" {
		t.Errorf("expected topic final 'translation.segment.final', got %s", p.topicFinal)
	}
}

func TestPublisher_Publish_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	ev := models.Event{
		SessionID: "sess-1",
		Kind:      models.EventTranslation,
		Language:  "zh",
		Segment:   &models.SegmentText{Text: "nihao", SentenceID: 1},
	}

	if err := p.Publish(context.Background(), ev); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_Publish_SentenceFinalRoutesToFinalTopic(t *testing.T) {
	p := New(&Config{
		Enabled:      false,
		TopicPartial: "translation.segment.partial",
		TopicFinal:   "translation.segment.final",
	})

	// Routing is observable through the topic choice even in log-only
	// mode, since both paths share publish().
	partial := models.Event{
		SessionID: "sess-1",
		Kind:      models.EventTranscription,
		Segment:   &models.SegmentText{Text: "good mor", SentenceID: 1},
	}
	final := models.Event{
		SessionID: "sess-1",
		Kind:      models.EventTranscription,
		Segment:   &models.SegmentText{Text: "good morning", SentenceID: 1, IsSentenceEnd: true},
	}

	if err := p.Publish(context.Background(), partial); err != nil {
		t.Errorf("publish partial: %v", err)
	}
	if err := p.Publish(context.Background(), final); err != nil {
		t.Errorf("publish final: %v", err)
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}

func TestPublisher_Close_NilWriters(t *testing.T) {
	p := &Publisher{
		writerPartial: nil,
		writerFinal:   nil,
	}

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing publisher with nil writers, got %v", err)
	}
}
