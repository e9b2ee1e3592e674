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

	router "github.com/dkeye/Handshake/internal/adapters/http"
	"github.com/dkeye/Handshake/internal/adapters/outbound"
	"github.com/dkeye/Handshake/internal/app"
	"github.com/dkeye/Handshake/internal/app/orch"
	"github.com/dkeye/Handshake/internal/config"
	"github.com/dkeye/Handshake/internal/core"
	"github.com/dkeye/Handshake/internal/domain"
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
		log.Fatal().Err(err).Msg("failed to load config")
	}

	reg := app.NewRegistry()
	resolve := func(id domain.EndpointID) (core.SignalConnection, bool) {
		sess, ok := reg.Session(id)
		if !ok {
			return nil, false
		}
		return sess.Signal(), true
	}

	var out core.Outbound
	switch cfg.Outbound {
	case "store":
		store, err := outbound.NewStore(ctx, cfg.StorePath, resolve)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open outbound store")
		}
		out = store
	default:
		out = outbound.NewDirect(resolve)
	}
	defer out.Close()

	sessions := app.NewLifecycle(out)
	supervisor := app.NewSupervisor(cfg.AcceptTimeout, cfg.LivenessPulse)

	var pairing app.PairingEngine
	switch cfg.PairingPolicy {
	case "addressed":
		pairing = app.NewAddressedPairing(reg, sessions, supervisor, out)
	default:
		pairing = app.NewQueuePairing(reg, sessions, supervisor, out)
	}

	o := &orch.Orchestrator{
		Registry:   reg,
		Pairing:    pairing,
		Sessions:   sessions,
		Relay:      app.NewRelay(sessions, out),
		Supervisor: supervisor,
		Policy:     app.SimplePolicy{},
	}
	o.Wire()

	r := router.SetupRouter(ctx, cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("pairing", cfg.PairingPolicy).Msg("Handshake server started")
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
	log.Info().Msg("Server exited gracefully")
}
