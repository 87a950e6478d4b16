package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Super-Meta77/sefaria-backend/internal/app"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := app.LoadConfig()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, log, cfg)
	if err != nil {
		log.Error("Failed to init app", "error", err)
		log.Sync()
		os.Exit(1)
	}
	defer a.Close(context.Background())

	if err := a.Run(ctx); err != nil {
		log.Error("Server failed", "error", err)
	}
}
