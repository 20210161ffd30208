// Package main Chat with PDF API Server
//
//	@title			Chat with PDF API
//	@version		1.0
//	@description	Upload PDFs and chat with them. Small documents are sent to the model inline; large ones are searched through a vector index.
//
//	@contact.name	API Support
//
//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html
//
//	@host		localhost:8080
//	@BasePath	/
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	_ "github.com/tejasgodse24/chat-with-pdf/docs" // swagger docs
	"github.com/tejasgodse24/chat-with-pdf/internal/config"
	"github.com/tejasgodse24/chat-with-pdf/internal/logger"
	"github.com/tejasgodse24/chat-with-pdf/internal/server"
)

func main() {
	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to read .env: %v", err)
	}

	cfg, path, err := config.LoadDefault()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New("[SERVER] ", cfg.Server.Debug)
	appLogger.Info("Loaded config from %s", path)
	if cfg.OpenAI.APIKey == "" {
		appLogger.Warn("%s is not set; model calls will be rejected", cfg.OpenAI.APIKeyEnv)
	}

	srv, err := server.New(cfg, appLogger)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appLogger.Info("Starting Chat with PDF server...")
	if err := srv.Run(ctx); err != nil {
		appLogger.Error("Server exited: %v", err)
		os.Exit(1)
	}
	appLogger.Info("Server stopped")
}
