package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parkwell.io/rewards-service/internal/api"
	"parkwell.io/rewards-service/internal/chat"
	"parkwell.io/rewards-service/internal/config"
	"parkwell.io/rewards-service/internal/core"
	"parkwell.io/rewards-service/internal/store"
	"parkwell.io/rewards-service/internal/wallet"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	// Initialize wallet service
	walletService := wallet.NewService(dbStore)

	// Initialize the assistant backend; without an API key the chat
	// endpoint still works and answers with the fallback reply.
	var replier chat.Replier
	if config.AppConfig.GeminiAPIKey != "" {
		llmService, err := core.NewLLMService(context.Background(), config.AppConfig.GeminiAPIKey)
		if err != nil {
			log.Fatalf("Failed to initialize LLM service: %v", err)
		}
		defer llmService.Close()
		replier = llmService
	}

	// Initialize session store and chat service
	sessionStore := chat.NewSessionStore(chat.Options{
		TTL:          config.AppConfig.SessionTTL,
		ReplyTimeout: config.AppConfig.ReplyTimeout,
	})
	chatService := chat.NewService(sessionStore, replier)

	// Periodic eviction of idle sessions, independent of request traffic
	sweeperDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(config.AppConfig.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := sessionStore.SweepExpired(time.Now()); removed > 0 {
					log.Printf("Session sweep evicted %d idle sessions", removed)
				}
			case <-sweeperDone:
				return
			}
		}
	}()

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(walletService, chatService, config.AppConfig.DevLoginUser, config.AppConfig.DevLoginSecret)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second, // Adjusted for potentially slower LLM handshakes
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	close(sweeperDone)

	// Create a context with a timeout for the shutdown.
	// This gives active connections time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// llmService.Close() and dbStore.Close() will be called by their defers.
	log.Println("Server exiting gracefully")
}
