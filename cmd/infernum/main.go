package main

import (
	"context"
	"log"
	"os"

	"github.com/seantiz/infernum/internal/api"
	"github.com/seantiz/infernum/internal/backend"
	"github.com/seantiz/infernum/internal/backend/echo"
	"github.com/seantiz/infernum/internal/backend/ollama"
	"github.com/seantiz/infernum/internal/config"
	"github.com/seantiz/infernum/internal/engine"
	"github.com/seantiz/infernum/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("infernum: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"model", cfg.Model,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	// Requests queued by a previous process are gone with it.
	n, err := db.AbandonPending(context.Background())
	if err != nil {
		log.Fatalf("failed to abandon pending records: %v", err)
	}
	if n > 0 {
		logger.Warn("abandoned records from previous run", "count", n)
	}

	reg := backend.NewRegistry()
	reg.Register(echo.Name, "deterministic description of the prompt and image", echo.Factory)
	reg.Register(ollama.Name, "vision model served by an Ollama instance", ollama.Factory)

	m, err := reg.New(cfg.Model, backend.Options{
		Delay:       cfg.ModelDelay,
		OllamaURL:   cfg.OllamaURL,
		OllamaModel: cfg.OllamaModel,
	})
	if err != nil {
		log.Fatalf("failed to load model: %v", err)
	}

	eng := backend.NewEngine(m,
		engine.WithLogger(logger.With("component", "engine")),
		engine.WithQueueCapacity(cfg.QueueCapacity),
	)

	srv := api.NewServer(cfg.ListenAddr, db, reg, eng, api.Settings{
		Model:          cfg.Model,
		SampleLen:      cfg.SampleLen,
		RejectWhenBusy: cfg.RejectWhenBusy,
	}, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
