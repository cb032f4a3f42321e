// Package main is the entry point for the movewatch service.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/terminalops/movewatch/internal/config"
	"github.com/terminalops/movewatch/internal/monitor"
	"github.com/terminalops/movewatch/internal/notify"
	"github.com/terminalops/movewatch/internal/server"
	"github.com/terminalops/movewatch/internal/store"
)

func main() {
	// Local .env can provide database URL, gateway keys and VAPID keys.
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	setupLogging(*debug)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	loc, err := time.LoadLocation(cfg.Monitor.Timezone)
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.Monitor.Timezone).Msg("invalid timezone")
	}

	st, err := store.Open(cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	now := func() time.Time { return time.Now().In(loc) }

	textChannel := notify.NewText(cfg.Channels.Text)
	pushChannel := notify.NewPush(cfg.Channels.Push, st, now)

	hub := server.NewHub()

	loop := monitor.NewLoop(monitor.LoopConfig{
		Repo:      st,
		Directory: st,
		History:   st,
		Settings:  st,
		Channels:  []notify.Channel{textChannel, pushChannel},
		Publisher: hub,
		Period:    cfg.Monitor.Period,
		Location:  loc,
	})
	loop.Start()
	defer loop.Stop()

	srv := server.New(cfg.Server, st, loop, pushChannel, hub, loc)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	log.Info().
		Int("port", cfg.Server.Port).
		Str("timezone", cfg.Monitor.Timezone).
		Dur("period", cfg.Monitor.Period).
		Int("text_recipients", len(cfg.Channels.Text.Recipients)).
		Msg("movewatch starting")

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}

	log.Info().Msg("movewatch stopped")
}

// setupLogging configures zerolog.
func setupLogging(debug bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
