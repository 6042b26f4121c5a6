package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/arcadelab/pusher/internal/adapters/http"
	"github.com/arcadelab/pusher/internal/admission"
	"github.com/arcadelab/pusher/internal/broker"
	"github.com/arcadelab/pusher/internal/config"
	"github.com/arcadelab/pusher/internal/engine"
	"github.com/arcadelab/pusher/internal/gateway"
	"github.com/arcadelab/pusher/internal/worker"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	// All coordination rides on the broker: the gateway publishes requests,
	// workers claim rooms and answer on the gateway's reply queue, frames
	// fan out on a topic. No component calls another directly.
	bus := broker.New()

	workers := make([]*worker.Worker, 0, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		w := worker.New(bus, engine.Factory, worker.Options{
			Capacity:         cfg.RoomCapacity,
			TickRate:         cfg.TickRateHz,
			IdleTimeout:      cfg.IdleTimeout,
			AnnounceInterval: cfg.AnnounceInterval,
			MetricsInterval:  cfg.MetricsInterval,
		})
		w.Start()
		workers = append(workers, w)
	}

	admit := admission.NewSlidingWindow(cfg.RateLimit.Burst, cfg.RateLimit.Window)
	ctl := gateway.NewController(bus, admit, gateway.Options{
		Secret:         cfg.Secret,
		RequestTimeout: cfg.RequestTimeout,
		ReadLimit:      cfg.ReadLimit,
	})
	ctl.Start()

	r := router.SetupRouter(ctx, cfg, ctl, workers)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Int("workers", len(workers)).Msg("pusher server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	for _, w := range workers {
		w.Stop()
	}
	bus.Stop()
	log.Info().Msg("Server exited gracefully")
}
