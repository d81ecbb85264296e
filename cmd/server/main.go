package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/unichat/internal/aireply"
	"github.com/mbeoliero/unichat/internal/config"
	"github.com/mbeoliero/unichat/internal/fanout"
	"github.com/mbeoliero/unichat/internal/gateway"
	"github.com/mbeoliero/unichat/internal/handler"
	"github.com/mbeoliero/unichat/internal/middleware"
	"github.com/mbeoliero/unichat/internal/repository"
	"github.com/mbeoliero/unichat/internal/router"
	"github.com/mbeoliero/unichat/internal/service"
	"github.com/mbeoliero/unichat/pkg/constant"
	"github.com/mbeoliero/unichat/pkg/idgen"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.CtxError(ctx, "failed to load config: %v", err)
		panic(err)
	}

	log.CtxInfo(ctx, "config loaded: mode=%s, store=%s", cfg.Server.Mode, cfg.Store.Driver)

	// Initialize Redis key prefix
	constant.InitRedisKeyPrefix(cfg.Redis.KeyPrefix)
	log.CtxInfo(ctx, "redis key prefix: %s", constant.GetRedisKeyPrefix())

	gen, err := idgen.NewSonyflakeGenerator(cfg.Server.MachineId)
	if err != nil {
		log.CtxError(ctx, "failed to initialize id generator: %v", err)
		panic(err)
	}
	idgen.SetDefaultGenerator(gen)

	// Initialize storage
	backend, err := repository.Open(ctx, cfg)
	if err != nil {
		log.CtxError(ctx, "failed to open store: %v", err)
		panic(err)
	}
	defer backend.Close()

	if err := backend.Ping(ctx); err != nil {
		log.CtxError(ctx, "store connection check failed: %v", err)
		panic(err)
	}
	log.CtxInfo(ctx, "store connection established")

	// Initialize services
	personas := aireply.NewRegistry(cfg.AI.Personas)
	identity := service.NewIdentityService(backend.Users, personas)
	convService := service.NewConversationService(backend.Store, backend.Seq, identity)
	msgService := service.NewMessageService(backend.Store, backend.Seq, cfg.Chat.MaxContentLength)
	presenceService := service.NewPresenceService(backend.Presence, cfg.Presence.StaleAfter)

	// Live subscriptions
	hub := fanout.NewHub(service.NewSnapshotLoader(backend.Store, presenceService), cfg.Subscription.WorkerNum, cfg.Subscription.LoadTimeout)
	hub.Run(ctx)

	var notifier service.Notifier = hub
	if cfg.Store.Relay && backend.Redis != nil {
		relay := fanout.NewRedisRelay(backend.Redis, constant.RedisChannel(cfg.Redis.ChangeChannel), hub)
		go relay.Run(ctx)
		notifier = relay
		log.CtxInfo(ctx, "change relay enabled: channel=%s", constant.RedisChannel(cfg.Redis.ChangeChannel))
	}
	convService.SetNotifier(notifier)
	msgService.SetNotifier(notifier)
	presenceService.SetNotifier(notifier)

	// Initialize WebSocket server
	limiter := middleware.NewLimiterStore(cfg.Chat.SendRatePerMinute, cfg.Chat.SendBurst, time.Minute)
	defer limiter.Stop()
	wsServer := gateway.NewWsServer(cfg, hub, convService, msgService, presenceService, limiter)
	wsServer.Run(ctx)
	log.CtxInfo(ctx, "websocket server started")

	// AI replies
	var orchestrator *aireply.Orchestrator
	if cfg.AI.Enabled {
		orchestrator = aireply.NewOrchestrator(aireply.NewOpenAIGenerator(cfg.AI), personas, msgService, msgService, aireply.Options{
			Timeout:       cfg.AI.Timeout,
			MinTyping:     cfg.AI.MinTyping,
			MaxConcurrent: cfg.AI.MaxConcurrent,
			HistoryLimit:  cfg.AI.HistoryLimit,
		})
		orchestrator.SetTypingNotifier(wsServer)
		msgService.SetReplyTrigger(orchestrator)
		log.CtxInfo(ctx, "ai replies enabled: model=%s, personas=%d", cfg.AI.Model, len(cfg.AI.Personas))
	}

	// Initialize handlers
	handlers := &router.Handlers{
		User:         handler.NewUserHandler(identity),
		Message:      handler.NewMessageHandler(msgService),
		Conversation: handler.NewConversationHandler(convService, msgService),
		Presence:     handler.NewPresenceHandler(presenceService),
	}

	// Create Hertz server
	h := server.Default(
		server.WithHostPorts(fmt.Sprintf(":%d", cfg.Server.HTTPPort)),
	)

	// Setup routes
	router.SetupRouter(h, cfg, handlers, wsServer, backend, limiter)

	log.CtxInfo(ctx, "server starting on port %d", cfg.Server.HTTPPort)

	// Start server in goroutine
	go func() {
		h.Spin()
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.CtxInfo(ctx, "shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := h.Shutdown(shutdownCtx); err != nil {
		log.CtxError(ctx, "server shutdown error: %v", err)
	}
	wsServer.Shutdown(shutdownCtx)
	if orchestrator != nil {
		orchestrator.Wait()
	}
	cancel()
	hub.Stop()

	log.CtxInfo(ctx, "server stopped")
}
