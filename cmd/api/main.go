package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"commute-annotator/internal/types"
	"commute-annotator/maps"
	"commute-annotator/resolver"
	"commute-annotator/settings"
	"commute-annotator/utils"
)

// Server holds the API server configuration
type Server struct {
	logger     *logrus.Logger
	config     *types.Config
	httpClient *utils.HTTPClient
	handler    *resolver.Handler
	httpServer *http.Server
}

// NewServer creates a new API server
func NewServer(ctx context.Context, port string) (*Server, error) {
	// Load .env file if present
	_ = godotenv.Load()

	// Setup logging
	logger := logrus.New()

	// Set timestamp format with milliseconds
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	if levelStr := os.Getenv("LOG_LEVEL"); levelStr != "" {
		if level, err := logrus.ParseLevel(levelStr); err == nil {
			logger.SetLevel(level)
		}
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	// Create configuration
	config := types.DefaultConfig()

	settingsPath := os.Getenv("SETTINGS_PATH")
	if settingsPath == "" {
		settingsPath = "settings.json"
	}
	store, err := settings.Open(settingsPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	store.Watch()

	tracer := utils.NewTracer(logger, store.Get().DebugMode)
	store.Subscribe(func(old, new settings.Settings) {
		tracer.SetEnabled(new.DebugMode)
	})

	httpClient := utils.NewHTTPClient(config, logger, tracer)
	geocache := maps.OpenGeocodeCache(ctx, os.Getenv("REDIS_ADDR"), 24*time.Hour, logger)
	service := resolver.NewService(store, maps.NewClient(httpClient, logger, tracer, "", ""), geocache, logger, tracer)

	handler := resolver.NewHandler(service, logger, 2*config.Timeout)

	return &Server{
		logger:     logger,
		config:     config,
		httpClient: httpClient,
		handler:    handler,
		httpServer: &http.Server{
			Addr:         ":" + port,
			Handler:      handler.Router(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 3 * config.Timeout,
		},
	}, nil
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Infof("Starting API server on %s", s.httpServer.Addr)
	s.logger.Info("Available endpoints:")
	s.logger.Info("  POST /api/commute - Resolve the commute for an apartment address")
	s.logger.Info("  GET  /api/health  - Health check")
	s.logger.Info("  GET  /metrics     - Prometheus metrics")

	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Close closes the server and cleanup resources
func (s *Server) Close() {
	s.httpClient.Close()
}

func main() {
	// Get port from environment variable, default to 8080
	serverPort := "8080"
	if envPort := os.Getenv("API_PORT"); envPort != "" {
		serverPort = envPort
		fmt.Printf("Using port from environment variable API_PORT: %s\n", serverPort)
	} else {
		fmt.Printf("No API_PORT environment variable found, using default: %s\n", serverPort)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create and start server
	server, err := NewServer(ctx, serverPort)
	if err != nil {
		log.Fatal(err)
	}
	defer server.Close()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			server.logger.Errorf("Shutdown failed: %v", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
