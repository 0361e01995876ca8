// Package kafka provides a Kafka-backed transport. Outbound steps are written
// by the events publisher; snapshots of the session's event forest are read
// from a snapshot topic.
package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"ai-chat-transcript-service/internal/events"
	"ai-chat-transcript-service/internal/models"
	"ai-chat-transcript-service/internal/observability/logging"
	"ai-chat-transcript-service/internal/observability/metrics"
	"ai-chat-transcript-service/internal/service/transport"
)

var _ transport.Adapter = (*Adapter)(nil)

// Config holds the snapshot reader configuration.
type Config struct {
	Brokers       []string
	SnapshotTopic string
	GroupID       string
	// ClientKey, when set, filters snapshot messages by key.
	ClientKey string
}

// Reader is the subset of *kafka.Reader used by the adapter.
type Reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Adapter implements transport.Adapter over Kafka.
type Adapter struct {
	cfg       Config
	publisher *events.Publisher
	newReader func(Config) Reader
	logger    zerolog.Logger

	mu      sync.Mutex
	reader  Reader
	cancel  context.CancelFunc
	done    chan struct{}
	resetAt time.Time
	gen     uint64
}

// New creates a Kafka transport. publisher handles the outbound side.
func New(cfg Config, publisher *events.Publisher) *Adapter {
	return &Adapter{
		cfg:       cfg,
		publisher: publisher,
		newReader: defaultReader,
		logger:    logging.WithTransport("kafka", cfg.SnapshotTopic),
	}
}

func defaultReader(cfg Config) Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.SnapshotTopic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// Start begins consuming snapshots.
func (a *Adapter) Start(ctx context.Context, h transport.Handler) error {
	if h == nil {
		return errors.New("kafka transport: nil handler")
	}
	if len(a.cfg.Brokers) == 0 || a.cfg.SnapshotTopic == "" {
		return errors.New("kafka transport: brokers and snapshot topic are required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.reader = a.newReader(a.cfg)
	a.done = make(chan struct{})

	go a.consume(runCtx, a.reader, h, a.done)

	a.logger.Info().
		Strs("brokers", a.cfg.Brokers).
		Str("groupId", a.cfg.GroupID).
		Msg("Kafka snapshot consumer started")
	return nil
}

func (a *Adapter) consume(ctx context.Context, reader Reader, h transport.Handler, done chan struct{}) {
	defer close(done)
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logger.Error().Err(err).Msg("Kafka read error")
			metrics.DefaultMetrics.RecordTransportError("kafka")
			h.OnTransportError(errors.Wrap(err, "kafka transport: fetch"))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if gen, ok := a.accept(msg); ok {
			var forest []models.StepEvent
			if err := json.Unmarshal(msg.Value, &forest); err != nil {
				a.logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("Failed to decode snapshot")
				metrics.DefaultMetrics.RecordTransportError("kafka")
				h.OnTransportError(errors.Wrap(err, "kafka transport: decode snapshot"))
			} else {
				h.OnSnapshot(transport.Snapshot{Generation: gen, Forest: forest})
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			a.logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("Failed to commit snapshot offset")
		}
	}
}

// accept drops snapshots for other clients and snapshots produced before the
// last Reset. Accepted snapshots carry the generation current at acceptance.
func (a *Adapter) accept(msg kafkago.Message) (uint64, bool) {
	if a.cfg.ClientKey != "" && string(msg.Key) != a.cfg.ClientKey {
		return 0, false
	}
	a.mu.Lock()
	resetAt, gen := a.resetAt, a.gen
	a.mu.Unlock()
	if !resetAt.IsZero() && !msg.Time.IsZero() && msg.Time.Before(resetAt) {
		return 0, false
	}
	return gen, true
}

// Publish writes an outbound step keyed by conversation id, or by the client
// key for a new conversation.
func (a *Adapter) Publish(ctx context.Context, ev models.StepEvent) error {
	if a.publisher == nil {
		return errors.New("kafka transport: no publisher")
	}
	key := ev.Metadata.ConversationID
	if key == "" {
		key = a.cfg.ClientKey
	}
	if err := a.publisher.Publish(ctx, key, ev); err != nil {
		return errors.Wrap(err, "kafka transport: publish")
	}
	return nil
}

// Reset ignores every snapshot produced before now and stamps later ones with
// generation.
func (a *Adapter) Reset(_ context.Context, generation uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetAt = time.Now()
	a.gen = generation
	return nil
}

// Close stops the consumer and closes the reader and publisher.
func (a *Adapter) Close() error {
	a.mu.Lock()
	cancel := a.cancel
	reader := a.reader
	done := a.done
	a.cancel = nil
	a.reader = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	var err error
	if reader != nil {
		if e := reader.Close(); e != nil {
			a.logger.Error().Err(e).Msg("Error closing snapshot reader")
			err = e
		}
	}
	if a.publisher != nil {
		if e := a.publisher.Close(); e != nil {
			err = e
		}
	}
	return err
}
