// Package session composes flattening, cursor tracking, normalization,
// identity routing and the transcript into the active conversation session.
//
// One Session exists per client. It holds one session instance at a time;
// switching conversation replaces the instance as a whole, so transcript,
// cursor, identity and awaiting flag never carry over.
package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"ai-chat-transcript-service/internal/models"
	"ai-chat-transcript-service/internal/observability/logging"
	"ai-chat-transcript-service/internal/observability/metrics"
	"ai-chat-transcript-service/internal/service/cursor"
	"ai-chat-transcript-service/internal/service/identity"
	"ai-chat-transcript-service/internal/service/router"
	"ai-chat-transcript-service/internal/service/transcript"
	"ai-chat-transcript-service/internal/service/transport"
)

// ConversationAPI is the REST collaborator.
type ConversationAPI interface {
	ListConversations(ctx context.Context) ([]models.ConversationSummary, error)
	GetHistory(ctx context.Context, conversationID string) ([]models.HistoryRow, error)
	ListModels(ctx context.Context) ([]string, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

// Display receives everything the display layer renders.
type Display interface {
	TranscriptUpdated(sessionID string, entries []models.TranscriptEntry)
	ConversationBound(sessionID, conversationID string)
	ConversationsUpdated(conversations []models.ConversationSummary)
	Notify(n Notification)
}

// Validator checks an outbound step before it is published.
type Validator interface {
	Validate(ev models.StepEvent) error
}

// Notification levels.
const (
	LevelWarning = "warning"
	LevelError   = "error"
)

// Notification kinds.
const (
	KindMalformedPayload  = "malformed_payload"
	KindTransportDelivery = "transport_delivery"
	KindHistoryFetch      = "history_fetch"
)

// Notification is a user-facing message about a recoverable failure.
type Notification struct {
	Level   string `json:"level"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Config holds session configuration.
type Config struct {
	// Principal prefixes generated session ids.
	Principal string
	// DefaultModel is used when a submission names no model.
	DefaultModel string
}

// View is a read-only snapshot of the active session instance.
type View struct {
	SessionID      string             `json:"sessionId"`
	State          string             `json:"state"`
	ConversationID string             `json:"conversationId,omitempty"`
	Entries        []models.EntryView `json:"entries"`
	Awaiting       bool               `json:"awaiting"`
	Cursor         int                `json:"cursor"`
}

// Session is the aggregate for the single active conversation of a client.
// It implements transport.Handler.
type Session struct {
	cfg       Config
	transport transport.Adapter
	api       ConversationAPI
	display   Display
	validator Validator
	metrics   *metrics.Metrics
	gen       *identity.Generator

	// baseCtx bounds collaborator calls made from transport callbacks.
	baseCtx context.Context

	// switchMu orders submissions against conversation switches: a step is
	// always published before the transport resets for the next instance.
	switchMu   sync.RWMutex
	generation uint64

	mu            sync.Mutex
	current       *instance
	conversations []models.ConversationSummary
}

var _ transport.Handler = (*Session)(nil)

// Option configures a Session.
type Option func(*Session)

// WithValidator checks outbound steps before publish.
func WithValidator(v Validator) Option {
	return func(s *Session) { s.validator = v }
}

// WithMetrics replaces the default metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithGenerator replaces the session id generator.
func WithGenerator(g *identity.Generator) Option {
	return func(s *Session) { s.gen = g }
}

// New creates a session holding a fresh New instance. api and display may be
// nil.
func New(cfg Config, tr transport.Adapter, api ConversationAPI, display Display, opts ...Option) *Session {
	if cfg.Principal == "" {
		cfg.Principal = "svc-chat-transcript"
	}
	if display == nil {
		display = nopDisplay{}
	}
	s := &Session{
		cfg:       cfg,
		transport: tr,
		api:       api,
		display:   display,
		metrics:   metrics.DefaultMetrics,
		gen:       identity.NewGenerator(),
		baseCtx:   context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current = s.newInstance(identity.NewTracker(), nil, 0)
	return s
}

// Start subscribes the session to its transport.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
	return s.transport.Start(ctx, s)
}

// Close releases the transport.
func (s *Session) Close() error {
	return s.transport.Close()
}

// Snapshot returns a read-only view of the active instance.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst := s.current
	return View{
		SessionID:      inst.id,
		State:          inst.tracker.State().String(),
		ConversationID: inst.tracker.ConversationID(),
		Entries:        models.Views(inst.transcript.Entries()),
		Awaiting:       inst.awaiting,
		Cursor:         inst.cursor.Position(),
	}
}

// Entries returns a copy of the active transcript.
func (s *Session) Entries() []models.TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.transcript.Entries()
}

// Identity returns the identity of the active instance.
func (s *Session) Identity() models.SessionIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.tracker.Identity()
}

// Awaiting reports whether a reply is outstanding.
func (s *Session) Awaiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.awaiting
}

// ClearAwaiting lets an operator release the awaiting flag after a lost reply.
func (s *Session) ClearAwaiting() {
	s.mu.Lock()
	was := s.current.awaiting
	s.current.awaiting = false
	logger := s.current.log
	s.mu.Unlock()
	if was {
		logger.Info().Msg("awaiting response cleared by operator")
	}
}

// Conversations returns the last fetched conversation list, most recent first.
func (s *Session) Conversations() []models.ConversationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ConversationSummary, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// instance is everything owned by one session instance.
type instance struct {
	id         string
	tracker    *identity.Tracker
	router     *router.Router
	effects    *bindEffects
	transcript *transcript.Transcript
	cursor     cursor.Cursor
	awaiting   bool
	log        zerolog.Logger

	// generation is the transport generation this instance accepts
	// snapshots from.
	generation uint64
}

func (s *Session) newInstance(tracker *identity.Tracker, entries []models.TranscriptEntry, generation uint64) *instance {
	id := s.gen.Next(s.cfg.Principal)
	effects := &bindEffects{}
	inst := &instance{
		id:         id,
		tracker:    tracker,
		router:     router.New(tracker, effects, effects),
		effects:    effects,
		transcript: transcript.New(),
		cursor:     cursor.Zero,
		generation: generation,
	}
	if len(entries) > 0 {
		inst.transcript = transcript.FromHistory(entries)
	}
	if tracker.IsBound() {
		inst.log = logging.WithConversation(id, tracker.ConversationID())
	} else {
		inst.log = logging.WithSession(id)
	}
	return inst
}

// bindEffects records the router's side effects while the session lock is
// held; they run after the lock is released.
type bindEffects struct {
	boundID string
	refresh bool
}

func (b *bindEffects) ConversationBound(conversationID string) {
	b.boundID = conversationID
}

func (b *bindEffects) RefreshConversations(context.Context) error {
	b.refresh = true
	return nil
}

func (b *bindEffects) take() bindEffects {
	out := *b
	*b = bindEffects{}
	return out
}

type nopDisplay struct{}

func (nopDisplay) TranscriptUpdated(string, []models.TranscriptEntry) {}
func (nopDisplay) ConversationBound(string, string)                   {}
func (nopDisplay) ConversationsUpdated([]models.ConversationSummary)  {}
func (nopDisplay) Notify(Notification)                                {}
