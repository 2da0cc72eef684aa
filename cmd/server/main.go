package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mizuos/shell/internal/infrastructure/config"
	"github.com/mizuos/shell/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the environment
	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "Server port")
	flag.StringVar(&cfg.Shell.ConfigDir, "config", cfg.Shell.ConfigDir, "Shell config directory")
	flag.StringVar(&cfg.Shell.AppsDir, "apps", cfg.Shell.AppsDir, "App manifest directory")
	flag.StringVar(&cfg.Store.DSN, "store", cfg.Store.DSN, "State store DSN")
	flag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development logging")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// A failed boot is reported through /boot; the server keeps serving.
	if err := srv.Boot(ctx); err != nil {
		log.Printf("Boot failed: %v", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	select {
	case <-ctx.Done():
		log.Println("Shutting down gracefully...")
	case err := <-errChan:
		if err != nil {
			log.Printf("Server error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Close(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
}
