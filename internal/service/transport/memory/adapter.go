// Package memory provides an in-process transport backed by a watermill
// go-channel pub/sub. A built-in responder answers every published user step,
// which makes the service usable without a broker or model backend.
package memory

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"ai-chat-transcript-service/internal/models"
	"ai-chat-transcript-service/internal/observability/metrics"
	"ai-chat-transcript-service/internal/service/transport"
)

const (
	topicOutbound = "chat.step.outbound"

	// metadataGeneration carries the transport generation a step was
	// published in.
	metadataGeneration = "generation"
)

// Default models used by the responder.
const (
	ModelGemini = "gemini-2.0-flash"
	ModelLlama  = "llama3.2:latest"
)

var _ transport.Adapter = (*Adapter)(nil)

// Responder builds the assistant reply for a user step.
type Responder func(user models.StepEvent, conversationID string) models.StepEvent

// Adapter implements transport.Adapter in memory.
type Adapter struct {
	pubsub    *gochannel.GoChannel
	responder Responder

	mu             sync.Mutex
	forest         []models.StepEvent
	conversationID string
	generation     uint64
	handler        transport.Handler
	cancel         context.CancelFunc
	closed         bool
	done           chan struct{}
}

// Option configures the adapter.
type Option func(*Adapter)

// WithResponder replaces the default canned responder.
func WithResponder(r Responder) Option {
	return func(a *Adapter) {
		a.responder = r
	}
}

// New creates an in-memory transport.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			watermill.NopLogger{},
		),
		responder: DefaultResponder,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start subscribes to the outbound topic and answers each user step.
func (a *Adapter) Start(ctx context.Context, h transport.Handler) error {
	if h == nil {
		return errors.New("memory transport: nil handler")
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return errors.New("memory transport: closed")
	}
	if a.cancel != nil {
		a.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.handler = h
	a.done = make(chan struct{})
	a.mu.Unlock()

	ch, err := a.pubsub.Subscribe(runCtx, topicOutbound)
	if err != nil {
		cancel()
		return errors.Wrap(err, "memory transport: subscribe")
	}
	go a.consume(ch)
	return nil
}

func (a *Adapter) consume(ch <-chan *message.Message) {
	defer close(a.done)
	for msg := range ch {
		var ev models.StepEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			msg.Ack()
			a.reportError(errors.Wrap(err, "memory transport: decode step"))
			continue
		}
		snapshot, ok := a.record(ev, msg.Metadata.Get(metadataGeneration))
		msg.Ack()
		if !ok {
			log.Debug().Str("component", "transport").Str("provider", "memory").
				Str("stepId", ev.ID).Msg("dropped step published before reset")
			continue
		}

		a.mu.Lock()
		h := a.handler
		a.mu.Unlock()
		if h != nil {
			h.OnSnapshot(snapshot)
		}
	}
}

// record appends the user step and its reply to the forest and returns a copy
// stamped with the current generation. Steps published in an earlier
// generation are dropped.
func (a *Adapter) record(user models.StepEvent, published string) (transport.Snapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if published != "" {
		gen, err := strconv.ParseUint(published, 10, 64)
		if err != nil || gen != a.generation {
			return transport.Snapshot{}, false
		}
	}

	if id := strings.TrimSpace(user.Metadata.ConversationID); id != "" {
		a.conversationID = id
	} else if a.conversationID == "" {
		a.conversationID = uuid.NewString()
	}

	reply := a.responder(user, a.conversationID)
	run := models.StepEvent{
		ID:        uuid.NewString(),
		Name:      "on_message",
		Type:      "run",
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Steps:     []models.StepEvent{reply},
	}
	a.forest = append(a.forest, user, run)

	out := make([]models.StepEvent, len(a.forest))
	copy(out, a.forest)
	return transport.Snapshot{Generation: a.generation, Forest: out}, true
}

func (a *Adapter) reportError(err error) {
	log.Warn().Err(err).Str("component", "transport").Str("provider", "memory").Msg("transport error")
	metrics.DefaultMetrics.RecordTransportError("memory")
	a.mu.Lock()
	h := a.handler
	a.mu.Unlock()
	if h != nil {
		h.OnTransportError(err)
	}
}

// Publish sends an outbound step through the go-channel.
func (a *Adapter) Publish(ctx context.Context, ev models.StepEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "memory transport: encode step")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	a.mu.Lock()
	msg.Metadata.Set(metadataGeneration, strconv.FormatUint(a.generation, 10))
	a.mu.Unlock()
	if err := a.pubsub.Publish(topicOutbound, msg); err != nil {
		return errors.Wrap(err, "memory transport: publish")
	}
	return nil
}

// Reset moves the adapter to generation with an empty forest and no
// conversation id. Steps still queued from before the reset are dropped.
func (a *Adapter) Reset(_ context.Context, generation uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.generation = generation
	a.forest = nil
	a.conversationID = ""
	return nil
}

// Forest returns a copy of the current forest.
func (a *Adapter) Forest() []models.StepEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.StepEvent, len(a.forest))
	copy(out, a.forest)
	return out
}

// Close ends the subscription.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	cancel := a.cancel
	done := a.done
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := a.pubsub.Close()
	if done != nil {
		<-done
	}
	return err
}

// DefaultResponder answers with the selected model, or with both models when
// the prompt asks for alternatives.
func DefaultResponder(user models.StepEvent, conversationID string) models.StepEvent {
	prompt := strings.TrimSpace(user.Output)

	var (
		responses   []models.ModelResponse
		messageType string
	)
	if wantsAlternatives(prompt) {
		messageType = "multiple"
		responses = []models.ModelResponse{
			{Model: ModelGemini, Text: "Gemini: " + prompt},
			{Model: ModelLlama, Text: "Llama: " + prompt},
		}
	} else {
		messageType = "single"
		model := user.Metadata.Model
		if model == "" {
			model = ModelGemini
		}
		responses = []models.ModelResponse{{Model: model, Text: "You said: " + prompt}}
	}

	output, _ := json.MarshalIndent(responses, "", "  ")
	return models.StepEvent{
		ID:        uuid.NewString(),
		Name:      models.RoleAssistant,
		Type:      models.TypeAssistantMessage,
		Output:    string(output),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Metadata: models.Metadata{
			ConversationID: conversationID,
			MessageType:    messageType,
		},
	}
}

func wantsAlternatives(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, marker := range []string{"two ways", "compare", "alternatives", "both"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
