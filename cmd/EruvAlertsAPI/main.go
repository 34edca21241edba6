package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/eruvnet/eruv-alerts-api/internal/app"
	"github.com/eruvnet/eruv-alerts-api/internal/config"
	"github.com/eruvnet/eruv-alerts-api/pkg/logger"
)

// @title Eruv Alerts API
// @version 1.0
// @description Sends SMS alerts to subscribers when a city's eruv status changes
// @host localhost:8080
// @BasePath /api/
func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	cfg, err := config.NewConfig()
	if err != nil {
		log.Panicf("failed to load configuration: %v", err)
	}

	l, err := logger.New(cfg.LogsPath, "eruv-alerts")
	if err != nil {
		log.Panicf("failed to create logger: %v", err)
	}

	application := app.New(*cfg, l)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		log.Panic(err)
	}
}
