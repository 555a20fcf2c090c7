package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"textbook-chat-be/internal/bootstrap"
	"textbook-chat-be/internal/config"
	"textbook-chat-be/internal/server"
	"textbook-chat-be/internal/tracer"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(cfg)
	defer container.Close()

	// 2.5 Tracer (no-op unless OTEL_ENABLED=true); must precede server.New
	// so otelfiber picks up the provider
	shutdownTracer := tracer.InitTracer(cfg.Otel, container.Logger)
	defer shutdownTracer(context.Background())

	// 3. Start Background Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		log.Println("Background: Starting Activity Consumer...")
		if err := container.ConsumerService.Consume(ctx); err != nil {
			log.Printf("Background Consumer Error: %v", err)
		}
	}()

	// 4. Initialize Server
	srv := server.New(cfg, container)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")
		if err := srv.Shutdown(); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// 5. Run Server
	if err := srv.Run(); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}
