package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"postflow/internal/api"
	"postflow/internal/bus"
	"postflow/internal/config"
	"postflow/internal/domain"
	"postflow/internal/engine"
	"postflow/internal/maintenance"
	"postflow/internal/publish"
	"postflow/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	var (
		addr   = flag.String("addr", cfg.Addr, "HTTP bind address")
		dbPath = flag.String("db", cfg.DBPath, "SQLite DB path")
		tick   = flag.Duration("tick", cfg.TickInterval, "dispatch tick interval")
		debug  = flag.Bool("debug", cfg.Debug, "debug logging")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	if !*debug {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", *dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := store.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}
	st := store.NewSQLite(db)

	// Channel adapters. Channels without a real integration get the
	// explicit Noop adapter; anything not registered here is rejected
	// at schedule time.
	registry := publish.NewRegistry()
	registry.Register(domain.ChannelDemo, publish.Noop{})
	registry.Register(domain.ChannelTwitter, publish.Noop{})
	registry.Register(domain.ChannelMastodon, publish.Noop{})
	if cfg.WebhookURL != "" {
		registry.Register(domain.ChannelWebhook, publish.NewWebhook(cfg.WebhookURL))
	} else {
		log.Warn().Msg("webhook_url not set, webhook channel is a no-op")
		registry.Register(domain.ChannelWebhook, publish.Noop{})
	}

	if cfg.SeedChannel != "" && !registry.Supports(domain.Channel(cfg.SeedChannel)) {
		log.Fatal().Str("channel", cfg.SeedChannel).Msg("seed channel has no adapter")
	}

	eng := engine.New(st, bus.New(), registry, engine.WithConfig(engine.Config{
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  cfg.RetryDelay,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := engine.NewDispatcher(eng, *tick)
	go dispatcher.Run(ctx)

	jobs := maintenance.New(eng, st, maintenance.Config{
		Retention:   cfg.Retention,
		SeedContent: cfg.SeedContent,
		SeedChannel: domain.Channel(cfg.SeedChannel),
	})
	if err := jobs.Start(); err != nil {
		log.Fatal().Err(err).Msg("start maintenance jobs")
	}
	defer jobs.Stop()

	srv := &http.Server{Addr: *addr, Handler: api.NewServer(eng)}
	go func() {
		log.Info().Str("addr", *addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// Graceful shutdown: stop future ticks, let outstanding attempts
	// run out on their own.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	cancel()
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
}
