package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/keyrelay/internal/logging"
	"github.com/dmitrijs2005/keyrelay/internal/server"
	"github.com/dmitrijs2005/keyrelay/internal/server/config"
)

func main() {

	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("config: %v", err)
		os.Exit(2)
	}

	logger, err := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Printf("logger: %v", err)
		os.Exit(2)
	}

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "startup failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		logger.Error(ctx, "server stopped with error", "error", err)
		_ = app.Close()
		os.Exit(1)
	}

}
