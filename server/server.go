package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stellamgmt/stella/config"
	"github.com/stellamgmt/stella/db"
	"github.com/stellamgmt/stella/realtime"
	"github.com/stellamgmt/stella/services"
)

// Server aggregates the configuration, repositories and services behind the
// HTTP API. Everything is injected so tests can swap in fakes.
type Server struct {
	Config                 *config.Config
	AuthRepository         db.AuthRepository
	AuthService            services.AuthService
	ChatService            services.ChatService
	NotificationService    *services.NotificationService
	Hub                    *realtime.Hub
}

// Start runs the HTTP server until interrupted, then drains in-flight
// requests.
func (s *Server) Start() {
	r := s.setupRouter()

	port := s.Config.Port
	if port == 0 {
		port = 8080
	}
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}

	go func() {
		log.Printf("server listening on :%d", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("server stopped")
}
