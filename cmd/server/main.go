package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/vedran77/pulsechat/internal/blob"
	"github.com/vedran77/pulsechat/internal/config"
	"github.com/vedran77/pulsechat/internal/database"
	"github.com/vedran77/pulsechat/internal/logger"
	"github.com/vedran77/pulsechat/internal/repository"
	"github.com/vedran77/pulsechat/internal/repository/memory"
	postgresrepo "github.com/vedran77/pulsechat/internal/repository/postgres"
	"github.com/vedran77/pulsechat/internal/service"
	"github.com/vedran77/pulsechat/internal/transport/http/handlers"
	"github.com/vedran77/pulsechat/internal/transport/http/middleware"
	"github.com/vedran77/pulsechat/internal/transport/ws"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Environment)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	var store repository.Store
	switch cfg.Database.Driver {
	case "postgres":
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			return err
		}
		store = postgresrepo.NewStore(pool)
		log.Info("connected to database")
	default:
		store = memory.NewStore()
		log.Warn("using in-memory storage, data is lost on restart")
	}

	blobs, err := blob.OpenPebble(cfg.Media.Dir, cfg.Media.BaseURL, log.Named("blob"))
	if err != nil {
		return fmt.Errorf("opening media store: %w", err)
	}
	defer blobs.Close()

	// Services
	resolver := service.NewConversationResolver()
	authService := service.NewAuthService(store.Users(), cfg.JWT.Secret, cfg.JWT.AccessTTL)
	userService := service.NewUserService(store)
	messageService := service.NewMessageService(store, resolver, blobs, log.Named("messages"))
	chatState := service.NewChatStateService(store, resolver)
	groupService := service.NewGroupService(store, resolver, blobs, log.Named("groups"))
	relayAccess := service.NewRelayAccess(store, resolver)

	// Real-time relay
	hub := ws.NewHub(log.Named("hub"))
	go hub.Run(ctx)

	notifier := ws.NewHubNotifier(hub, log.Named("notifier"))
	messageService.SetNotifier(notifier)
	chatState.SetNotifier(notifier)
	groupService.SetNotifier(notifier)

	sweeper, err := service.NewMuteSweeper(chatState, cfg.Relay.MuteSweepCron, log.Named("sweeper"))
	if err != nil {
		return err
	}
	go sweeper.Run(ctx)

	// Rate limiting
	var counter middleware.Counter
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, rate limiting disabled", zap.Error(err))
		} else {
			counter = middleware.NewRedisCounter(rdb)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /ws", ws.ServeWS(hub, authService, ws.Deps{
		Messages: messageService,
		Access:   relayAccess,
	}, ws.HandlerConfig{
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		CommandsPerSecond: cfg.Relay.CommandsPerSecond,
		Burst:             cfg.Relay.Burst,
	}, log.Named("ws")))

	handlers.Register(mux, handlers.Handlers{
		Auth:          handlers.NewAuthHandler(authService, log),
		Users:         handlers.NewUserHandler(userService, log),
		Conversations: handlers.NewConversationHandler(chatState, messageService, log),
		Messages:      handlers.NewMessageHandler(messageService, cfg.Media.MaxBytes, log),
		Groups:        handlers.NewGroupHandler(groupService, log),
		Media:         handlers.NewMediaHandler(blobs, log),
	}, middleware.Auth(authService), middleware.RateLimit(counter, cfg.Redis.RateLimit, cfg.Redis.RateWindow, log.Named("ratelimit")))

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      middleware.CORS(cfg.Server.AllowedOrigins)(middleware.Logging(log.Named("http"))(mux)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
