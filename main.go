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

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"confy/relay/internal/config"
	httpapi "confy/relay/internal/http"
	"confy/relay/internal/logging"
	"confy/relay/internal/presence"
	"confy/relay/internal/relay"
	"confy/relay/internal/ws"
)

// Version identifies the relay build reported by the liveness endpoint.
const Version = "1.0.0"

// shutdownGrace bounds how long draining connections may hold up process exit.
const shutdownGrace = 10 * time.Second

// bootstrap loads the configuration and constructs the structured logger, the
// two steps that must succeed before the relay can report failures itself.
func bootstrap() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("construct logger: %w", err)
	}
	return cfg, logger, nil
}

func main() {
	//1.- Bootstrap failures happen before the structured logger exists, so they
	// go through the stdlib logger and land on stderr.
	cfg, logger, err := bootstrap()
	if err != nil {
		log.Fatalf("relay startup: %v", err)
	}
	logging.ReplaceGlobals(logger)
	defer func() { _ = logger.Sync() }()

	//2.- The presence client connects lazily; failures surface per call and are logged.
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = client.Close() }()
	store := presence.NewRedisStore(client, cfg.PresenceKey)

	//3.- Relay state and both endpoint surfaces share one router.
	exchange := relay.NewExchange(relay.WithPresence(store), relay.WithLogger(logger))
	router := mux.NewRouter()
	ws.NewHandler(ws.Options{
		Exchange:        exchange,
		Logger:          logger,
		AllowedOrigins:  cfg.AllowedOrigins,
		MaxPayloadBytes: cfg.MaxPayloadBytes,
		PingInterval:    cfg.PingInterval,
		MaxClients:      cfg.MaxClients,
	}).Register(router)
	httpapi.NewHandlerSet(httpapi.Options{
		Logger:       logger,
		Availability: exchange,
		Stats:        exchange,
		Status:       httpapi.HostCollector{},
		StatusLimit:  httpapi.NewSlidingWindowLimiter(cfg.StatusWindow, cfg.StatusBurst, nil),
		Version:      Version,
	}).Register(router)

	server := &http.Server{
		Addr:    cfg.Address,
		Handler: logging.HTTPTraceMiddleware(logger)(router),
	}

	//4.- Serve until a shutdown signal or a listener failure arrives.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	tlsEnabled := cfg.TLSCertPath != "" && cfg.TLSKeyPath != ""
	go func() {
		logger.Info("relay listening", logging.String("url", listenerURL(cfg.Address, tlsEnabled)))
		if tlsEnabled {
			serveErr <- server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			serveErr <- server.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", logging.Error(err))
		}
	}

	//5.- Drain the HTTP server, then reconcile the shared presence set.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown incomplete", logging.Error(err))
	}
	if err := store.Clear(shutdownCtx); err != nil {
		logger.Warn("presence clear failed", logging.Error(err))
	}
	logger.Info("relay stopped")
}
