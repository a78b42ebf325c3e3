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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kapu/chess-arena/internal/archive"
	appcfg "github.com/kapu/chess-arena/internal/config"
	"github.com/kapu/chess-arena/internal/clock"
	"github.com/kapu/chess-arena/internal/invite"
	"github.com/kapu/chess-arena/internal/msgcat"
	"github.com/kapu/chess-arena/internal/obslog"
	"github.com/kapu/chess-arena/internal/orchestrator"
	"github.com/kapu/chess-arena/internal/presence"
	"github.com/kapu/chess-arena/internal/room"
	"github.com/kapu/chess-arena/internal/session"
	"github.com/kapu/chess-arena/internal/ws"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer obslog.Sync()

	cat, err := msgcat.New(cfg.MessageOverrideDir)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}

	// Optional redis-backed invite tokens; without redis the tokens
	// live only in process memory.
	var inviteStore *invite.Store
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis url error: %v", err)
		}
		rdb := redis.NewClient(opts)
		pctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = rdb.Ping(pctx).Err()
		cancel()
		if err != nil {
			log.Fatalf("redis ping error: %v", err)
		}
		defer rdb.Close()
		inviteStore = invite.NewStore(rdb, time.Duration(cfg.InviteTTLSec)*time.Second)
	}

	// Optional postgres archive of finished games.
	var repo *archive.Repository
	if cfg.DatabaseURL != "" {
		repo, err = archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("archive init error: %v", err)
		}
		defer repo.Close()
	}

	pres := presence.NewRegistry()
	rooms := room.NewRouter(pres)
	store := session.NewStore()
	clocks := clock.New(nil)

	orch := orchestrator.New(store, clocks, rooms, pres, inviteStore, repo, orchestrator.Options{
		DefaultClock: session.ClockConfig{
			InitialTimeSeconds: cfg.DefaultInitialTimeSec,
			IncrementSeconds:   cfg.DefaultIncrementSec,
		},
		MaxGames: cfg.MaxConcurrentGames,
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", ws.NewHandler(orch, cat, cfg.AllowedOrigins))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		obslog.L().Info("server_listen", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obslog.L().Fatal("server_failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	obslog.L().Info("server_shutdown")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(sctx)
}
