package events

import (
	"context"
	"testing"

	"ai-chat-transcript-service/internal/models"
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
			if p.writer != nil {
				t.Error("expected nil writer when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	p := New(&Config{
		Enabled:   false,
		Brokers:   []string{"localhost:9092"},
		Topic:     "test.outbound",
		Principal: "test-principal",
	})

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.Topic() != "test.outbound" {
		t.Errorf("expected topic 'test.outbound', got %s", p.Topic())
	}
}

func TestPublisher_Publish_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false, Topic: "test.outbound", Principal: "test-svc"})

	ev := models.StepEvent{
		ID:       "step-1",
		Name:     models.RoleUser,
		Type:     models.TypeUserMessage,
		Output:   "hello",
		Metadata: models.Metadata{Model: "gemini-2.0-flash"},
	}
	if err := p.Publish(context.Background(), "sess-1", ev); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_Close_NoWriter(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}
