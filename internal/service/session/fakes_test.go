package session

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"ai-chat-transcript-service/internal/models"
	"ai-chat-transcript-service/internal/observability/metrics"
	"ai-chat-transcript-service/internal/service/transport"
)

type fakeTransport struct {
	mu         sync.Mutex
	published  []models.StepEvent
	publishErr error
	resets     int
	generation uint64
	ops        []string
	handler    transport.Handler

	// publishing and unblock hold Publish open when set.
	publishing chan struct{}
	unblock    chan struct{}
}

func (f *fakeTransport) Start(_ context.Context, h transport.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
	return nil
}

func (f *fakeTransport) Publish(_ context.Context, ev models.StepEvent) error {
	if f.unblock != nil {
		close(f.publishing)
		<-f.unblock
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "publish")
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, ev)
	return nil
}

func (f *fakeTransport) Reset(_ context.Context, generation uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.generation = generation
	f.ops = append(f.ops, "reset")
	return nil
}

func (f *fakeTransport) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) Published() []models.StepEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.StepEvent, len(f.published))
	copy(out, f.published)
	return out
}

type fakeAPI struct {
	mu            sync.Mutex
	conversations []models.ConversationSummary
	history       map[string][]models.HistoryRow
	historyErr    error
	models        []string
	deleted       []string
	listCalls     int
}

func (f *fakeAPI) ListConversations(context.Context) ([]models.ConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	out := make([]models.ConversationSummary, len(f.conversations))
	copy(out, f.conversations)
	return out, nil
}

func (f *fakeAPI) GetHistory(_ context.Context, id string) ([]models.HistoryRow, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	rows, ok := f.history[id]
	if !ok {
		return nil, errors.New("404 not found")
	}
	return rows, nil
}

func (f *fakeAPI) ListModels(context.Context) ([]string, error) {
	return f.models, nil
}

func (f *fakeAPI) DeleteConversation(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	kept := f.conversations[:0]
	for _, c := range f.conversations {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	f.conversations = kept
	return nil
}

func (f *fakeAPI) ListCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

type fakeDisplay struct {
	mu            sync.Mutex
	updates       int
	bound         []string
	conversations []models.ConversationSummary
	notes         []Notification
}

func (d *fakeDisplay) TranscriptUpdated(string, []models.TranscriptEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates++
}

func (d *fakeDisplay) ConversationBound(_, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bound = append(d.bound, id)
}

func (d *fakeDisplay) ConversationsUpdated(list []models.ConversationSummary) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conversations = list
}

func (d *fakeDisplay) Notify(n Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notes = append(d.notes, n)
}

func (d *fakeDisplay) Bound() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.bound...)
}

func (d *fakeDisplay) Notes() []Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Notification(nil), d.notes...)
}

type fixture struct {
	session   *Session
	transport *fakeTransport
	api       *fakeAPI
	display   *fakeDisplay
}

func newFixture() *fixture {
	f := &fixture{
		transport: &fakeTransport{},
		api: &fakeAPI{
			history: map[string][]models.HistoryRow{},
			models:  []string{"gemini-2.0-flash", "llama3.2:latest"},
		},
		display: &fakeDisplay{},
	}
	f.session = New(
		Config{Principal: "test", DefaultModel: "gemini-2.0-flash"},
		f.transport, f.api, f.display,
		WithMetrics(metrics.NewMetrics(prometheus.NewRegistry())),
	)
	return f
}

// deliver hands forest to the session as the transport would in its current
// generation.
func (f *fixture) deliver(forest []models.StepEvent) {
	f.transport.mu.Lock()
	gen := f.transport.generation
	f.transport.mu.Unlock()
	f.session.OnSnapshot(transport.Snapshot{Generation: gen, Forest: forest})
}

func userEvent(id, text string) models.StepEvent {
	return models.StepEvent{ID: id, Name: models.RoleUser, Type: models.TypeUserMessage, Output: text}
}

func assistantEvent(id, conversationID, messageType, output string) models.StepEvent {
	return models.StepEvent{
		ID:     id,
		Name:   models.RoleAssistant,
		Type:   models.TypeAssistantMessage,
		Output: output,
		Metadata: models.Metadata{
			ConversationID: conversationID,
			MessageType:    messageType,
		},
	}
}

func run(children ...models.StepEvent) models.StepEvent {
	return models.StepEvent{ID: "run", Name: "on_message", Type: "run", Steps: children}
}
