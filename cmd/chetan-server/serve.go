package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/api"
	"github.com/pycoderabhishek/ChetanTheRobot/internal/audio"
	"github.com/pycoderabhishek/ChetanTheRobot/internal/collab"
	"github.com/pycoderabhishek/ChetanTheRobot/internal/config"
	"github.com/pycoderabhishek/ChetanTheRobot/internal/reaper"
	"github.com/pycoderabhishek/ChetanTheRobot/internal/registry"
	"github.com/pycoderabhishek/ChetanTheRobot/internal/router"
	"github.com/pycoderabhishek/ChetanTheRobot/internal/session"
	"github.com/pycoderabhishek/ChetanTheRobot/internal/snapshot"
	"github.com/pycoderabhishek/ChetanTheRobot/internal/store"
)

func newServeCommand() *cobra.Command {
	var overrides config.Overrides

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordination server (default long-running command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(overrides)
		},
	}

	cmd.Flags().StringVar(&overrides.ConfigFile, "config", "", "Path to config file (default: ./chetan.yaml)")
	cmd.Flags().StringVar(&overrides.ListenAddr, "listen", "", "HTTP listen address, host:port (overrides listen_host/listen_port)")
	cmd.Flags().StringVar(&overrides.DatabasePath, "database-path", "", "Path to the sqlite audit database (overrides database_path)")
	cmd.Flags().StringVar(&overrides.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides log_level)")

	return cmd
}

func runServe(overrides config.Overrides) error {
	startTime := time.Now()

	early := zerolog.New(os.Stdout).With().Timestamp().Logger()

	var logRef *zerolog.Logger
	var pipelineRef *audio.Pipeline
	cfg, v, err := config.Load(overrides, early, func(reloaded *config.Config) {
		if pipelineRef != nil {
			pipelineRef.SetOptions(audio.Options{
				PrefixPhrases:       reloaded.PrefixPhrases,
				ConfidenceThreshold: reloaded.ConfidenceThreshold,
				SampleRate:          reloaded.AudioSampleRate,
			})
		}
		if logRef != nil {
			logRef.Info().
				Float64("rate_limit_rps", reloaded.RateLimitRPS).
				Int("rate_limit_burst", reloaded.RateLimitBurst).
				Strs("prefix_phrases", reloaded.PrefixPhrases).
				Float64("confidence_threshold", reloaded.ConfidenceThreshold).
				Msg("hot-reloaded config values applied")
		}
	})
	if err != nil {
		early.Fatal().Err(err).Msg("failed to load config")
	}
	_ = v

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	logRef = &log

	log.Info().
		Str("version", version).
		Str("commit", commit).
		Str("built", buildTime).
		Str("log_level", level.String()).
		Msg("chetan-server starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// C1: durable audit store
	db, err := store.Open(ctx, cfg.DatabasePath, log.With().Str("component", "store").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open audit store")
	}
	defer db.Close()

	// C2: authoritative in-memory device registry, mirrored to the store
	reg := registry.New(db, log.With().Str("component", "registry").Logger())

	// C3: session manager
	sessions := session.NewManager(reg, cfg.OutboundQueueCapacity, log.With().Str("component", "session").Logger())

	// C5: command router
	cmdRouter := router.New(db, sessions, cfg.CommandAckTimeout(), log.With().Str("component", "router").Logger())
	sessions.SetCommandAckHandler(cmdRouter.HandleAck)

	// C6: state-snapshot ingestor
	snapshotIngestor := snapshot.New(db, log.With().Str("component", "snapshot").Logger())
	sessions.SetStatusHandler(snapshotIngestor.Handle)

	// External collaborators (C7's three pure-effect dependencies)
	transcriber, synthesizer, matcher, err := buildCollaborators(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build audio collaborators")
	}

	// C7: audio ingest pipeline
	pipeline := audio.New(transcriber, synthesizer, matcher, cmdRouter, sessions, db, audio.Options{
		PrefixPhrases:       cfg.PrefixPhrases,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		SampleRate:          cfg.AudioSampleRate,
	}, log.With().Str("component", "audio").Logger())
	pipelineRef = pipeline

	// C4: heartbeat reaper, piggy-backing the router's ack-timeout sweep
	heartbeatReaper := reaper.New(reg, sessions, cmdRouter, cfg.HeartbeatTimeout(), cfg.ReaperInterval(), log.With().Str("component", "reaper").Logger())
	heartbeatReaper.Start(ctx)
	defer heartbeatReaper.Stop()

	// C8/C9: HTTP API composition root
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(api.ServerOptions{
		Config:    cfg,
		Store:     db,
		Registry:  reg,
		Router:    cmdRouter,
		Sessions:  sessions,
		Audio:     pipeline,
		Version:   fmt.Sprintf("%s (commit=%s, built=%s)", version, commit, buildTime),
		StartTime: startTime,
		Log:       httpLog,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	log.Info().
		Str("listen", cfg.ListenAddr()).
		Str("stt_provider", cfg.STTProvider).
		Str("tts_provider", cfg.TTSProvider).
		Dur("startup_ms", time.Since(startTime)).
		Msg("chetan-server ready")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("chetan-server stopped")
	return nil
}

// buildCollaborators selects the STT/TTS backends named by config,
// falling back to the network-free stubs when unset. The fuzzy matcher
// has no provider switch — it is always the local Levenshtein matcher.
func buildCollaborators(cfg *config.Config) (collab.Transcriber, collab.Synthesizer, collab.Matcher, error) {
	var transcriber collab.Transcriber
	var synthesizer collab.Synthesizer

	switch cfg.STTProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, nil, nil, fmt.Errorf("stt_provider=openai requires openai_api_key")
		}
		transcriber = collab.NewOpenAITranscriber(cfg.OpenAIAPIKey)
	case "stub", "":
		transcriber = collab.StubTranscriber{Text: ""}
	default:
		return nil, nil, nil, fmt.Errorf("unknown stt_provider %q (valid: stub, openai)", cfg.STTProvider)
	}

	switch cfg.TTSProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, nil, nil, fmt.Errorf("tts_provider=openai requires openai_api_key")
		}
		synthesizer = collab.NewOpenAISynthesizer(cfg.OpenAIAPIKey)
	case "stub", "":
		synthesizer = collab.StubSynthesizer{}
	default:
		return nil, nil, nil, fmt.Errorf("unknown tts_provider %q (valid: stub, openai)", cfg.TTSProvider)
	}

	return transcriber, synthesizer, collab.LevenshteinMatcher{}, nil
}
