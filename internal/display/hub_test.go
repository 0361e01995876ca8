package display

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-chat-transcript-service/internal/models"
	"ai-chat-transcript-service/internal/service/session"
)

func startHub(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	return hub, conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestHub_BroadcastsTranscript(t *testing.T) {
	hub, conn := startHub(t)

	hub.TranscriptUpdated("s1", []models.TranscriptEntry{
		models.UserEntry{Text: "hello"},
		models.AssistantMultiEntry{Responses: []models.ModelResponse{
			{Model: "gemini", Text: "a"},
			{Model: "ollama", Text: "b"},
		}},
	})

	f := readFrame(t, conn)
	assert.Equal(t, FrameTranscript, f.Type)
	assert.Equal(t, "s1", f.SessionID)
	require.Len(t, f.Entries, 2)
	assert.Equal(t, models.KindUser, f.Entries[0].Kind)
	assert.Equal(t, models.KindAssistantMulti, f.Entries[1].Kind)
	assert.Equal(t, "ollama", f.Entries[1].Responses[1].Model)
}

func TestHub_BoundAndNotification(t *testing.T) {
	hub, conn := startHub(t)

	hub.ConversationBound("s1", "abc123")
	hub.Notify(session.Notification{Level: session.LevelWarning, Kind: session.KindMalformedPayload, Message: "bad"})

	f := readFrame(t, conn)
	assert.Equal(t, FrameBound, f.Type)
	assert.Equal(t, "abc123", f.ConversationID)

	f = readFrame(t, conn)
	assert.Equal(t, FrameNotification, f.Type)
	require.NotNil(t, f.Notification)
	assert.Equal(t, session.KindMalformedPayload, f.Notification.Kind)
}

func TestHub_ReplaysLatestStateToNewClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	hub.ConversationsUpdated([]models.ConversationSummary{{ID: "c1", Content: "first"}})
	hub.TranscriptUpdated("s1", []models.TranscriptEntry{models.UserEntry{Text: "hi"}})

	srv := httptest.NewServer(hub)
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	f := readFrame(t, conn)
	assert.Equal(t, FrameConversations, f.Type)
	assert.Equal(t, "c1", f.Conversations[0].ID)

	f = readFrame(t, conn)
	assert.Equal(t, FrameTranscript, f.Type)
	assert.Equal(t, "hi", f.Entries[0].Text)
}

func TestHub_UnregistersClosedClient(t *testing.T) {
	hub, conn := startHub(t)
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)
}
