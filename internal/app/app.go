package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"ai-chat-transcript-service/internal/config"
	"ai-chat-transcript-service/internal/display"
	"ai-chat-transcript-service/internal/events"
	"ai-chat-transcript-service/internal/observability/logging"
	"ai-chat-transcript-service/internal/schema"
	"ai-chat-transcript-service/internal/service/api"
	"ai-chat-transcript-service/internal/service/session"
	"ai-chat-transcript-service/internal/service/transport"
	kafkatransport "ai-chat-transcript-service/internal/service/transport/kafka"
	"ai-chat-transcript-service/internal/service/transport/memory"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Transport transport.Adapter
	API       *api.Client
	Hub       *display.Hub
	Session   *session.Session

	ready  atomic.Bool
	cancel context.CancelFunc
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Config) (*Application, error) {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	tr, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}
	client, err := api.New(api.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
		Token:   cfg.API.Token,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create conversation api client")
	}

	a.Transport = tr
	a.API = client
	a.Hub = display.NewHub()
	a.Session = session.New(
		session.Config{
			Principal:    cfg.Service.Principal,
			DefaultModel: cfg.Chat.DefaultModel,
		},
		tr, client, a.Hub,
		session.WithValidator(schema.New()),
	)

	appLogger.Info().
		Str("transport", cfg.Transport.Provider).
		Str("apiBaseUrl", cfg.API.BaseURL).
		Msg("Chat transcript service application created")
	return a, nil
}

func newTransport(cfg *config.Config) (transport.Adapter, error) {
	switch cfg.Transport.Provider {
	case config.TransportMemory, "":
		return memory.New(), nil
	case config.TransportKafka:
		publisher := events.New(&events.Config{
			Enabled:   cfg.Kafka.Enabled,
			Brokers:   cfg.Kafka.Brokers,
			Topic:     cfg.Kafka.TopicOutbound,
			Principal: cfg.Kafka.Principal,
		})
		return kafkatransport.New(kafkatransport.Config{
			Brokers:       cfg.Kafka.Brokers,
			SnapshotTopic: cfg.Kafka.TopicSnapshots,
			GroupID:       cfg.Kafka.GroupID,
			ClientKey:     cfg.Service.Principal,
		}, publisher), nil
	default:
		return nil, errors.Errorf("unknown transport provider %q", cfg.Transport.Provider)
	}
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	logCfg := logging.DefaultConfig()
	if a.Cfg.Observability.LogLevel != "" {
		logCfg.Level = a.Cfg.Observability.LogLevel
	}
	if a.Cfg.Observability.LogFormat != "" {
		logCfg.Format = a.Cfg.Observability.LogFormat
	}
	if a.Cfg.Service.Environment == "dev" {
		logCfg.Format = "console"
	}
	logging.Init(logCfg)

	a.Logger = logging.Logger().With().
		Str("component", "application").
		Str("service", "ai-chat-transcript-service").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", a.Cfg.Service.Environment).
		Msg("Logger setup completed")
}

// Start runs the display hub and subscribes the session to the transport.
func (a *Application) Start(ctx context.Context) error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	go a.Hub.Run(runCtx)
	if err := a.Session.Start(runCtx); err != nil {
		cancel()
		return errors.Wrap(err, "start session transport")
	}

	// the conversation list is best effort at startup
	if err := a.Session.RefreshConversations(runCtx); err != nil {
		startLogger.Warn().Err(err).Msg("Initial conversation list refresh failed")
	}

	a.StartupTime = time.Now().UTC()
	a.ready.Store(true)
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Chat transcript service starting")
	return nil
}

// Ready reports whether the transport is subscribed.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	a.ready.Store(false)
	if err := a.Session.Close(); err != nil {
		shutdownLogger.Warn().Err(err).Msg("Transport close failed")
	}
	if a.cancel != nil {
		a.cancel()
	}
	shutdownLogger.Info().Msg("Chat transcript service shutting down")
}
