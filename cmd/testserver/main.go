// testserver starts an Infernum API server with the echo model for E2E testing.
// Usage: go run ./cmd/testserver
package main

import (
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/seantiz/infernum/internal/api"
	"github.com/seantiz/infernum/internal/backend"
	"github.com/seantiz/infernum/internal/backend/echo"
	"github.com/seantiz/infernum/internal/engine"
	"github.com/seantiz/infernum/internal/store"
)

// modelDelay keeps each inference long enough for tests to observe the
// processing state.
const modelDelay = 500 * time.Millisecond

func main() {
	addr := ":3000"
	if v := os.Getenv("INFERNUM_LISTEN_ADDR"); v != "" {
		addr = v
	}

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	reg := backend.NewRegistry()
	reg.Register(echo.Name, "deterministic description of the prompt and image", echo.Factory)

	m, err := reg.New(echo.Name, backend.Options{Delay: modelDelay})
	if err != nil {
		log.Fatalf("failed to load model: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	eng := backend.NewEngine(m, engine.WithLogger(logger))
	srv := api.NewServer(addr, db, reg, eng, api.Settings{
		Model:          echo.Name,
		RejectWhenBusy: true,
	}, logger)

	logger.Info("testserver: starting", "addr", addr)
	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
