package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/adaptor"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/websocket"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/unichat/internal/config"
	"github.com/mbeoliero/unichat/internal/gateway"
	"github.com/mbeoliero/unichat/internal/handler"
	"github.com/mbeoliero/unichat/internal/metrics"
	"github.com/mbeoliero/unichat/internal/middleware"
)

// Pinger reports whether a backend dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds all HTTP handlers
type Handlers struct {
	User         *handler.UserHandler
	Message      *handler.MessageHandler
	Conversation *handler.ConversationHandler
	Presence     *handler.PresenceHandler
}

// SetupRouter sets up all routes
func SetupRouter(h *server.Hertz, cfg *config.Config, handlers *Handlers, wsServer *gateway.WsServer, backend Pinger, limiter *middleware.LimiterStore) {
	h.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	h.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		if backend != nil {
			if err := backend.Ping(ctx); err != nil {
				log.CtxWarn(ctx, "health check failed: %v", err)
				c.JSON(consts.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		c.JSON(consts.StatusOK, map[string]string{"status": "ok"})
	})

	h.GET("/metrics", adaptor.HertzHandler(metrics.Handler()))

	auth := middleware.JWTAuth(cfg)

	// User routes (auth required)
	userGroup := h.Group("/user", auth)
	{
		userGroup.GET("/info", handlers.User.GetUserInfo)
		userGroup.GET("/info/:user_id", handlers.User.GetUserInfoById)
	}

	// Message routes (auth required)
	msgGroup := h.Group("/msg", auth)
	{
		msgGroup.POST("/send", middleware.SendRateLimit(limiter), handlers.Message.SendMessage)
		msgGroup.GET("/list", handlers.Message.ListMessages)
	}

	// Conversation routes (auth required)
	convGroup := h.Group("/conversation", auth)
	{
		convGroup.POST("/get_or_create", handlers.Conversation.GetOrCreate)
		convGroup.GET("/list", handlers.Conversation.GetConversationList)
		convGroup.GET("/info", handlers.Conversation.GetConversation)
		convGroup.DELETE("/delete", handlers.Conversation.DeleteConversation)
		convGroup.POST("/mark_read", handlers.Conversation.MarkRead)
	}

	// Presence routes (auth required)
	presenceGroup := h.Group("/presence", auth)
	{
		presenceGroup.POST("/update", handlers.Presence.UpdateStatus)
		presenceGroup.POST("/heartbeat", handlers.Presence.Heartbeat)
		presenceGroup.GET("/status", handlers.Presence.GetStatus)
	}

	// WebSocket route using hertz-contrib/websocket with origin validation
	allowedOrigins := cfg.Server.AllowedOrigins
	upgrader := &websocket.HertzUpgrader{
		CheckOrigin: func(ctx *app.RequestContext) bool {
			return middleware.OriginAllowed(string(ctx.Request.Header.Peek("Origin")), allowedOrigins)
		},
	}

	h.GET("/ws", func(ctx context.Context, c *app.RequestContext) {
		wsServer.HandleHertzConnection(ctx, c, upgrader)
	})
}
