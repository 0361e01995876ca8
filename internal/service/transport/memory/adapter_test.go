package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-chat-transcript-service/internal/models"
	"ai-chat-transcript-service/internal/service/flatten"
	"ai-chat-transcript-service/internal/service/normalize"
	"ai-chat-transcript-service/internal/service/transport"
)

type recordingHandler struct {
	mu        sync.Mutex
	snapshots []transport.Snapshot
	errs      []error
}

func (h *recordingHandler) OnSnapshot(snap transport.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshots = append(h.snapshots, snap)
}

func (h *recordingHandler) OnTransportError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.snapshots)
}

func (h *recordingHandler) last() []models.StepEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshots[len(h.snapshots)-1].Forest
}

func userStep(text, conversationID string) models.StepEvent {
	return models.StepEvent{
		ID:       text,
		Name:     models.RoleUser,
		Type:     models.TypeUserMessage,
		Output:   text,
		Metadata: models.Metadata{ConversationID: conversationID, Model: ModelLlama},
	}
}

func TestAdapter_AnswersPublishedStep(t *testing.T) {
	a := New()
	defer a.Close()
	h := &recordingHandler{}
	ctx := context.Background()

	require.NoError(t, a.Start(ctx, h))
	require.NoError(t, a.Publish(ctx, userStep("hello", "")))

	require.Eventually(t, func() bool { return h.count() == 1 }, time.Second, 5*time.Millisecond)

	flat := flatten.Flatten(h.last(), nil)
	require.Len(t, flat, 2)
	assert.Equal(t, models.TypeUserMessage, flat[0].Type)

	reply := flat[1]
	assert.True(t, normalize.IsAssistant(reply))
	assert.NotEmpty(t, reply.Metadata.ConversationID)

	entry, err := normalize.Assistant(reply)
	require.NoError(t, err)
	assert.Equal(t, models.AssistantSingleEntry{Text: "You said: hello"}, entry)
}

func TestAdapter_KeepsConversationIDAcrossTurns(t *testing.T) {
	a := New()
	defer a.Close()
	h := &recordingHandler{}
	ctx := context.Background()
	require.NoError(t, a.Start(ctx, h))

	require.NoError(t, a.Publish(ctx, userStep("first", "")))
	require.Eventually(t, func() bool { return h.count() == 1 }, time.Second, 5*time.Millisecond)
	firstID := flatten.Flatten(h.last(), nil)[1].Metadata.ConversationID

	require.NoError(t, a.Publish(ctx, userStep("second", firstID)))
	require.Eventually(t, func() bool { return h.count() == 2 }, time.Second, 5*time.Millisecond)

	flat := flatten.Flatten(h.last(), nil)
	require.Len(t, flat, 4)
	assert.Equal(t, firstID, flat[3].Metadata.ConversationID)
}

func TestAdapter_ResetClearsForest(t *testing.T) {
	a := New()
	defer a.Close()
	h := &recordingHandler{}
	ctx := context.Background()
	require.NoError(t, a.Start(ctx, h))

	require.NoError(t, a.Publish(ctx, userStep("first", "")))
	require.Eventually(t, func() bool { return h.count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, a.Reset(ctx, 1))
	assert.Empty(t, a.Forest())

	require.NoError(t, a.Publish(ctx, userStep("again", "")))
	require.Eventually(t, func() bool { return h.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Len(t, flatten.Flatten(h.last(), nil), 2)
}

// gateHandler holds the first snapshot until release is closed.
type gateHandler struct {
	recordingHandler
	held    chan struct{}
	release chan struct{}
	once    sync.Once
}

func (h *gateHandler) OnSnapshot(snap transport.Snapshot) {
	first := false
	h.once.Do(func() { first = true })
	if first {
		close(h.held)
		<-h.release
	}
	h.recordingHandler.OnSnapshot(snap)
}

func TestAdapter_SnapshotsCarryGeneration(t *testing.T) {
	a := New()
	defer a.Close()
	h := &recordingHandler{}
	ctx := context.Background()
	require.NoError(t, a.Start(ctx, h))

	require.NoError(t, a.Reset(ctx, 7))
	require.NoError(t, a.Publish(ctx, userStep("hello", "")))
	require.Eventually(t, func() bool { return h.count() == 1 }, time.Second, 5*time.Millisecond)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, uint64(7), h.snapshots[0].Generation)
}

// A step still queued when the adapter resets never reaches the new forest.
func TestAdapter_ResetDropsQueuedSteps(t *testing.T) {
	a := New()
	defer a.Close()
	h := &gateHandler{held: make(chan struct{}), release: make(chan struct{})}
	ctx := context.Background()
	require.NoError(t, a.Start(ctx, h))

	require.NoError(t, a.Publish(ctx, userStep("first", "conv-old")))
	select {
	case <-h.held:
	case <-time.After(time.Second):
		t.Fatal("first snapshot never delivered")
	}

	require.NoError(t, a.Publish(ctx, userStep("second", "conv-old")))
	require.NoError(t, a.Reset(ctx, 1))
	close(h.release)

	require.Eventually(t, func() bool { return h.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return h.count() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Empty(t, a.Forest())

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, uint64(0), h.snapshots[0].Generation)
}

func TestDefaultResponder_Alternatives(t *testing.T) {
	reply := DefaultResponder(userStep("compare go and rust", ""), "c1")

	entry, err := normalize.Assistant(reply)
	require.NoError(t, err)
	multi, ok := entry.(models.AssistantMultiEntry)
	require.True(t, ok)
	require.Len(t, multi.Responses, 2)
	assert.Equal(t, ModelGemini, multi.Responses[0].Model)
	assert.Equal(t, ModelLlama, multi.Responses[1].Model)
}

func TestAdapter_StartNilHandler(t *testing.T) {
	a := New()
	defer a.Close()
	assert.Error(t, a.Start(context.Background(), nil))
}

func TestAdapter_CloseIdempotent(t *testing.T) {
	a := New()
	require.NoError(t, a.Start(context.Background(), &recordingHandler{}))
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}
