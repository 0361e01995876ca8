package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	grpcapi "ai-chat-transcript-service/internal/api/grpc"
	"ai-chat-transcript-service/internal/app"
	"ai-chat-transcript-service/internal/config"
	httpapi "ai-chat-transcript-service/internal/http"
	"ai-chat-transcript-service/internal/observability"
)

func main() {
	cfg := config.Load()

	application, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create application")
	}

	obs := observability.NewServer(cfg.Observability.MetricsAddr, nil, application.Ready)
	obs.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start application")
	}

	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.Service.GRPCPort).Msg("failed to listen")
	}
	grpcServer := grpcapi.NewServer(nil)
	grpcServer.SetServing(application.Ready())

	go func() {
		log.Info().Str("port", cfg.Service.GRPCPort).Msg("gRPC health server started")
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("grpc serve failed")
		}
	}()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           httpapi.NewRouter(application),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("port", cfg.Service.HTTPPort).Msg("Chat transcript HTTP API started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http serve failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.SetServing(false)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown failed")
	}
	grpcServer.GracefulStop()
	application.Shutdown()
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("observability shutdown failed")
	}
}
