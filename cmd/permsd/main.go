package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/astro-web3/txcache-auth/internal/config"
	httptransport "github.com/astro-web3/txcache-auth/internal/transport/http"
	"github.com/astro-web3/txcache-auth/pkg/otel"
)

const shutdownTimeoutSeconds = 10

func main() {
	cfg := config.MustLoad()

	srv, err := httptransport.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create permission gateway: %v", err)
	}

	if cfg.OAuth.RefreshInterval > 0 {
		log.Printf("Background token refresh enabled (every %s)", cfg.OAuth.RefreshInterval)
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Printf("permsd listening on %s (mode: %s)", cfg.Server.Addr, cfg.Server.Mode)
		if listenErr := srv.ListenAndServe(); listenErr != nil &&
			!errors.Is(listenErr, http.ErrServerClosed) {
			serverErrChan <- listenErr
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Println("Signal received, shutting down permsd...")
	case serverErr := <-serverErrChan:
		log.Printf("Server error, shutting down permsd: %v", serverErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		shutdownTimeoutSeconds*time.Second,
	)
	defer shutdownCancel()

	// Shutdown also stops the background token refresh loop.
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Printf("permsd forced to shutdown: %v", shutdownErr)
	} else {
		log.Println("permsd stopped gracefully")
	}

	if shutdownErr := otel.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Printf("Failed to shutdown tracer provider: %v", shutdownErr)
	}
}
