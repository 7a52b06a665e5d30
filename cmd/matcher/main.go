package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/peercode/match-service/internal/collab"
	"github.com/peercode/match-service/internal/history"
	"github.com/peercode/match-service/internal/matching"
	"github.com/peercode/match-service/internal/messaging"
	"github.com/peercode/match-service/internal/metrics"
	"github.com/peercode/match-service/internal/store"
)

func main() {
	log.Println("Starting PeerCode match service...")

	// Redis setup.
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	// NATS setup.
	natsConfig := messaging.DefaultNATSConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}

	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// Matching rules.
	rules := matching.DefaultRules()
	if v := os.Getenv("MATCH_TOLERANCE_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			rules.ToleranceWindow = d
		}
	}
	if v := os.Getenv("MATCH_GLOBAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			rules.GlobalTimeout = d
		}
	}
	if rules.GlobalTimeout < rules.ToleranceWindow {
		log.Fatalf("MATCH_GLOBAL_TIMEOUT (%s) must be >= MATCH_TOLERANCE_WINDOW (%s)",
			rules.GlobalTimeout, rules.ToleranceWindow)
	}

	// Downstream pair consumers: session bootstrap record, match.created
	// event, and (when configured) the PostgreSQL history archive.
	publisher := matching.NewPublisher(natsClient)
	sinks := matching.MultiSink{collab.NewStore(rdb), publisher}

	var historyStore *history.Store
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		historyStore, err = history.Open(databaseURL)
		if err != nil {
			log.Fatalf("failed to open match history store: %v", err)
		}
		sinks = append(sinks, historyStore)
	}

	requestStore := store.NewRedis(rdb)
	controller := matching.NewController(requestStore, publisher, sinks, rules)
	svc := matching.NewService(controller, requestStore, natsClient)
	if err := svc.Start(); err != nil {
		log.Fatalf("failed to start matching service: %v", err)
	}

	// Metrics endpoint.
	metricsAddr := ":9091"
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		metricsAddr = v
	}
	metricsServer := &http.Server{Addr: metricsAddr, Handler: metrics.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[metrics] server: %v", err)
		}
	}()

	log.Printf("PeerCode match service running")
	log.Printf("  redis_addr:       %s", redisAddr)
	log.Printf("  nats_url:         %s", natsConfig.URL)
	log.Printf("  metrics_addr:     %s", metricsAddr)
	log.Printf("  tolerance_window: %s", rules.ToleranceWindow)
	log.Printf("  global_timeout:   %s", rules.GlobalTimeout)
	log.Printf("  history_enabled:  %v", historyStore != nil)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	metricsServer.Shutdown(shutdownCtx)
	shutdownCancel()

	svc.Stop()
	natsClient.Close()
	if historyStore != nil {
		historyStore.Close()
	}
	rdb.Close()
}
