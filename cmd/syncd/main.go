// Package main provides the offline sync engine daemon.
// Host applications communicate via REST/WebSocket on localhost.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/kimhsiao/offsync/cmd/syncd/handlers"
	"github.com/kimhsiao/offsync/internal/connectivity"
	"github.com/kimhsiao/offsync/internal/db"
	"github.com/kimhsiao/offsync/internal/logging"
	syncpkg "github.com/kimhsiao/offsync/internal/sync"
	"github.com/kimhsiao/offsync/internal/sync/queue"
	"github.com/kimhsiao/offsync/internal/sync/scheduler"
)

func main() {
	logging.Init(os.Stderr, logLevel())

	dataDir := os.Getenv("DB_PATH")
	if dataDir == "" {
		dataDir = "./data"
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8090"
	}

	database, err := db.Open(dataDir)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	migrator := db.NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		log.Fatalf("Failed to initialize migrations: %v", err)
	}
	if err := migrator.Up(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	store := db.NewQueueStore(database.DB)
	q := queue.NewManager(store, queueConfig())

	// The engine never probes the network itself; the host reports
	// transitions via PUT /api/connectivity. Assume reachable at boot.
	monitor := connectivity.NewMonitor(true)

	wsHub := NewWSHub()

	coordinator := syncpkg.NewCoordinator(q, monitor, newApplier(), nil, wsHub)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.NewScheduler(coordinator, q, monitor, schedulerConfig())
	sched.Start(ctx)

	queueHandler := handlers.NewQueueHandler(q)
	queueHandler.SetWebSocketHub(wsHub)
	syncHandler := handlers.NewSyncHandler(coordinator, monitor)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"offsync"}`))
	})
	mux.HandleFunc("GET /api/queue", queueHandler.List)
	mux.HandleFunc("POST /api/queue", queueHandler.Enqueue)
	mux.HandleFunc("DELETE /api/queue", queueHandler.Clear)
	mux.HandleFunc("GET /api/queue/stats", queueHandler.Stats)
	mux.HandleFunc("GET /api/queue/{id}", queueHandler.Get)
	mux.HandleFunc("DELETE /api/queue/{id}", queueHandler.Remove)
	mux.HandleFunc("POST /api/queue/{id}/retry", queueHandler.Retry)
	mux.HandleFunc("GET /api/sync/status", syncHandler.Status)
	mux.HandleFunc("POST /api/sync/now", syncHandler.TriggerSync)
	mux.HandleFunc("PUT /api/sync/auto", syncHandler.SetAutoSync)
	mux.HandleFunc("PUT /api/connectivity", syncHandler.SetConnectivity)
	mux.HandleFunc("GET /ws", HandleWebSocket(wsHub))

	server := &http.Server{
		Addr:    "localhost:" + port,
		Handler: mux,
	}

	go func() {
		log.Printf("offsync daemon listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	// Persist the queue one last time so nothing is lost across restart.
	if err := q.Flush(); err != nil {
		log.Printf("Final queue flush failed: %v", err)
	}
}

func logLevel() logging.LogLevel {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func queueConfig() *queue.Config {
	cfg := queue.DefaultConfig()
	if v := os.Getenv("RETENTION_WINDOW_MINUTES"); v != "" {
		if minutes, err := strconv.Atoi(v); err == nil && minutes > 0 {
			cfg.RetentionWindow = time.Duration(minutes) * time.Minute
		}
	}
	if v := os.Getenv("MAX_AUTO_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxAutoRetries = n
		}
	}
	return cfg
}

func schedulerConfig() *scheduler.Config {
	cfg := scheduler.DefaultConfig()
	if v := os.Getenv("SYNC_INTERVAL_SECONDS"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			cfg.SyncInterval = time.Duration(seconds) * time.Second
		}
	}
	return cfg
}
