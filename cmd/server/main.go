package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/collabtext/scribeserver/pkg/auth"
	"github.com/collabtext/scribeserver/pkg/authority"
	"github.com/collabtext/scribeserver/pkg/httpapi"
	"github.com/collabtext/scribeserver/pkg/logger"
	"github.com/collabtext/scribeserver/pkg/presence"
	"github.com/collabtext/scribeserver/pkg/session"
	"github.com/collabtext/scribeserver/pkg/store"
	"github.com/joho/godotenv"
)

// Config holds all server configuration, the teacher's getEnv/getEnvInt
// pattern (cmd/server/main.go) extended with the settings this spec's
// ambient stack adds (JWT secret, Redis, idle-eviction thresholds).
type Config struct {
	Port            string
	SQLiteURI       string
	JWTSecret       string
	JWTTTL          time.Duration
	AllowedOrigins  []string
	TailSize        int
	PersistThresh   int
	PersistInterval time.Duration
	PresenceTTL     time.Duration
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
}

func main() {
	logger.Init()

	if err := godotenv.Load(); err != nil {
		logger.Info(".env file not found, using system environment variables")
	}

	cfg := Config{
		Port:            getEnv("PORT", "3030"),
		SQLiteURI:       getEnv("SQLITE_URI", "scribeserver.db"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		JWTTTL:          time.Duration(getEnvInt("JWT_TTL_HOURS", 24)) * time.Hour,
		AllowedOrigins:  strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:3000"), ","),
		TailSize:        getEnvInt("TAIL_SIZE", authority.DefaultTailSize),
		PersistThresh:   getEnvInt("PERSIST_THRESHOLD", authority.DefaultPersistThreshold),
		PersistInterval: time.Duration(getEnvInt("PERSIST_INTERVAL_SECONDS", 2)) * time.Second,
		PresenceTTL:     time.Duration(getEnvInt("PRESENCE_TTL_SECONDS", 30)) * time.Second,
		IdleTimeout:     time.Duration(getEnvInt("IDLE_TIMEOUT_MINUTES", 30)) * time.Minute,
		CleanupInterval: time.Duration(getEnvInt("CLEANUP_INTERVAL_MINUTES", 5)) * time.Minute,
	}

	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}

	logger.Info("starting scribeserver on port %s", cfg.Port)

	docStore, err := store.Open(cfg.SQLiteURI)
	if err != nil {
		logger.Error("failed to open document store: %v", err)
		os.Exit(1)
	}
	defer docStore.Close()

	authorities := authority.NewRegistry(docStore, cfg.TailSize, cfg.PersistThresh, cfg.PersistInterval)

	rdb := presence.Connect()
	defer rdb.Close()
	presenceReg := presence.NewRegistry(rdb, cfg.PresenceTTL)

	router := session.NewRouter(authorities, presenceReg, session.DefaultSendBuffer)
	signer := auth.NewSigner([]byte(cfg.JWTSecret), cfg.JWTTTL)

	api := httpapi.New(httpapi.Config{AllowedOrigins: cfg.AllowedOrigins}, router, authorities, signer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go startIdleCleaner(ctx, authorities, cfg.IdleTimeout, cfg.CleanupInterval)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.Handler(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed: %v", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed: %v", err)
	}

	flushAll(shutdownCtx, authorities)
	logger.Sync()
}

// startIdleCleaner periodically evicts in-memory authorities that have
// not been read or written in idleTimeout, flushing them to the durable
// store first (spec.md §9 idle-document cleanup; teacher's
// pkg/server.StartCleaner / cleanupExpiredDocuments, generalized from
// LastAccessed on the document wrapper to Authority.LastAccess).
func startIdleCleaner(ctx context.Context, authorities *authority.Registry, idleTimeout, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var idle []string
			authorities.Range(func(docID string, a *authority.Authority) bool {
				if time.Since(a.LastAccess()) > idleTimeout {
					idle = append(idle, docID)
				}
				return true
			})
			for _, docID := range idle {
				logger.Debug("evicting idle document %s", docID)
				authorities.Evict(ctx, docID)
			}
		}
	}
}

func flushAll(ctx context.Context, authorities *authority.Registry) {
	authorities.Range(func(docID string, a *authority.Authority) bool {
		a.Flush(ctx)
		return true
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
