package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pongserver/internal/broadcaster"
	"pongserver/internal/config"
	"pongserver/internal/coordstore"
	"pongserver/internal/diagnostics"
	"pongserver/internal/gamehub"
	"pongserver/internal/health"
	"pongserver/internal/input"
	"pongserver/internal/inputcache"
	"pongserver/internal/logging"
	"pongserver/internal/matchqueue"
	"pongserver/internal/protocol"
	"pongserver/internal/scheduler"
	"pongserver/internal/sessionstore"
	"pongserver/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("construct logger: %v", err)
	}
	logging.ReplaceGlobals(logger)

	sessions := sessionstore.New()
	inputs := inputcache.New(cfg.InputTTL)
	gate := input.NewGate(input.Config{MaxAge: cfg.InputMaxAge, MinInterval: cfg.InputMinInterval}, logger)

	// A coordination store that fails to configure at startup disables
	// matchmaking entirely: there is no in-process fallback queue in
	// production (spec §7). Bot matches, which never touch the queue,
	// remain available regardless. coordClient may be a nil *Client here;
	// its methods tolerate that and report ErrNotConfigured.
	var queue matchqueue.Queue
	coordClient, err := coordstore.New(cfg.CoordStoreURL, coordstore.WithTimeout(cfg.CoordStoreTimeout))
	if err != nil {
		logger.Error("coordination store unavailable, matchmaking disabled", logging.Error(err))
	} else if rq, err := matchqueue.NewRedisQueue(coordClient, cfg.MatchQueueKey); err != nil {
		logger.Error("construct match queue failed, matchmaking disabled", logging.Error(err))
	} else {
		queue = rq
	}

	transportHub := transport.NewHub(nil,
		transport.WithAllowedOrigins(cfg.AllowedOrigins),
		transport.WithLogger(logger),
		transport.WithGate(gate),
	)
	broadcast := broadcaster.New(transportHub, protocol.Encode, broadcaster.WithLogger(logger))

	hub := gamehub.New(sessions, queue, inputs, broadcast, gamehub.WithLogger(logger))
	transportHub.SetHandler(hub)

	sched := scheduler.New(sessions, inputs, broadcast, cfg.ClientSyncInterval, cfg.TickInterval, scheduler.WithLogger(logger))

	snapshotter, err := diagnostics.New(cfg.StateSnapshotPath, cfg.StateSnapshotInterval, sessions, logger)
	if err != nil {
		logger.Fatal("construct diagnostics snapshotter", logging.Error(err))
	}

	rateLimiter := health.NewSlidingWindowLimiter(time.Minute, 30, nil)
	handlers := health.NewHandlerSet(health.Options{
		Logger:      logger,
		CoordStore:  coordClient,
		Queue:       queue,
		Sessions:    sessions,
		Snapshotter: snapshotter,
		Scheduler:   sched,
		AdminToken:  cfg.AdminToken,
		RateLimiter: rateLimiter,
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", transportHub)
	handlers.Register(mux)

	server := &http.Server{
		Addr:    cfg.Address,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sched.Start(ctx)

	go func() {
		logger.Info("pong server listening", logging.String("address", cfg.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", logging.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received, draining sessions")

	endActiveSessions(sessions, broadcast)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", logging.Error(err))
	}
	if snapshotter != nil {
		if err := snapshotter.Close(); err != nil {
			logger.Error("diagnostics snapshotter shutdown error", logging.Error(err))
		}
	}
	if err := coordClient.Close(); err != nil {
		logger.Error("coordination store close error", logging.Error(err))
	}
}

// endActiveSessions flips every still-active session to a neutral game-over
// state and sends one terminal update to whichever players are still
// connected, so a graceful shutdown never leaves a client waiting on a tick
// that will never arrive (spec §5).
func endActiveSessions(sessions *sessionstore.Store, publish *broadcaster.Broadcaster) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, session := range sessions.Snapshot() {
		if session.State.GameOver {
			continue
		}
		updated, err := sessions.Mutate(session.ID, func(s *sessionstore.Session) {
			s.State.GameOver = true
			s.State.Winner = 0
		})
		if err != nil {
			continue
		}
		payload := protocol.GameUpdateFromState(updated.State)
		_ = publish.Send(ctx, updated.Player1, protocol.TypeGameUpdate, payload)
		if !sessionstore.IsBot(updated.Player2) {
			_ = publish.Send(ctx, updated.Player2, protocol.TypeGameUpdate, payload)
		}
		sessions.Remove(session.ID)
	}
}
