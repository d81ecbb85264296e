package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/unichat/internal/config"
	"github.com/mbeoliero/unichat/internal/entity"
	"github.com/mbeoliero/unichat/internal/fanout"
	"github.com/mbeoliero/unichat/internal/metrics"
	"github.com/mbeoliero/unichat/internal/middleware"
	"github.com/mbeoliero/unichat/internal/service"
	"github.com/mbeoliero/unichat/pkg/errcode"
	"github.com/mbeoliero/unichat/pkg/jwt"
)

// WsServer is the WebSocket server
type WsServer struct {
	upgrader        *websocket.Upgrader
	cfg             *config.Config
	userMap         *UserMap
	eventChan       chan clientEvent
	pushChan        chan *PushTask
	hub             *fanout.Hub
	convService     *service.ConversationService
	msgService      *service.MessageService
	presenceService *service.PresenceService
	limiter         *middleware.LimiterStore
	onlineUserNum   atomic.Int64
	onlineConnNum   atomic.Int64
	maxConnNum      int64
	// runCtx ends when the event loop stops
	runCtx context.Context
}

// clientEvent registers or unregisters a client. A single channel keeps the two in order.
type clientEvent struct {
	client   *Client
	register bool
}

// PushTask represents a push to every local connection of the target users
type PushTask struct {
	Identifier int32
	Data       []byte
	TargetIds  []string
}

// NewWsServer creates a new WebSocket server
func NewWsServer(
	cfg *config.Config,
	hub *fanout.Hub,
	convService *service.ConversationService,
	msgService *service.MessageService,
	presenceService *service.PresenceService,
	limiter *middleware.LimiterStore,
) *WsServer {
	allowedOrigins := cfg.Server.AllowedOrigins
	upgrader := &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return middleware.OriginAllowed(r.Header.Get("Origin"), allowedOrigins)
		},
	}

	return &WsServer{
		upgrader:        upgrader,
		cfg:             cfg,
		userMap:         NewUserMap(),
		eventChan:       make(chan clientEvent, 1000),
		pushChan:        make(chan *PushTask, cfg.WebSocket.PushChannelSize),
		hub:             hub,
		convService:     convService,
		msgService:      msgService,
		presenceService: presenceService,
		limiter:         limiter,
		maxConnNum:      cfg.WebSocket.MaxConnNum,
		runCtx:          context.Background(),
	}
}

// Run starts the WebSocket server
func (s *WsServer) Run(ctx context.Context) {
	s.runCtx = ctx
	go s.eventLoop(ctx)

	workerNum := s.cfg.WebSocket.PushWorkerNum
	if workerNum <= 0 {
		workerNum = 10
	}
	for i := 0; i < workerNum; i++ {
		go s.pushLoop(ctx)
	}

	if s.cfg.Presence.HeartbeatInterval > 0 {
		go s.heartbeatLoop(ctx, s.cfg.Presence.HeartbeatInterval)
	}
	log.Info("started %d push workers", workerNum)
}

// eventLoop handles client registration and unregistration
func (s *WsServer) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.eventChan:
			if ev.register {
				s.registerClient(ctx, ev.client)
			} else {
				s.unregisterClient(ctx, ev.client)
			}
		}
	}
}

// pushLoop handles async pushes
func (s *WsServer) pushLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-s.pushChan:
			s.processPushTask(ctx, task)
		}
	}
}

// processPushTask processes a single push task
func (s *WsServer) processPushTask(ctx context.Context, task *PushTask) {
	for _, userId := range task.TargetIds {
		clients, ok := s.userMap.GetAll(userId)
		if !ok {
			continue
		}

		for _, client := range clients {
			if err := client.writeResponse(WSResponse{ReqIdentifier: task.Identifier, Data: task.Data}); err != nil {
				log.CtxDebug(ctx, "push to client failed: user_id=%s, conn_id=%s, error=%v", userId, client.ConnId, err)
			}
		}
	}
}

// heartbeatLoop keeps the presence of locally connected users fresh
func (s *WsServer) heartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, userId := range s.userMap.GetAllOnlineUserIds() {
				if err := s.presenceService.Heartbeat(ctx, userId); err != nil {
					log.CtxWarn(ctx, "presence heartbeat failed: user_id=%s, error=%v", userId, err)
				}
			}
		}
	}
}

// registerClient registers a client and marks its user online on the first connection
func (s *WsServer) registerClient(ctx context.Context, client *Client) {
	// only the event loop mutates userMap, so the check and Register agree
	first := !s.userMap.HasConnection(client.UserId)
	if first {
		if err := s.presenceService.UpdateUserOnlineStatus(ctx, client.UserId, true); err != nil {
			log.CtxWarn(ctx, "set user online failed: user_id=%s, error=%v", client.UserId, err)
		}
		s.onlineUserNum.Add(1)
	}
	s.userMap.Register(client)
	s.onlineConnNum.Add(1)
	metrics.WsConnections.Inc()

	log.CtxInfo(ctx, "client registered: user_id=%s, platform_id=%d, conn_id=%s, first_conn=%v, online_users=%d, online_conns=%d",
		client.UserId, client.PlatformId, client.ConnId, first, s.onlineUserNum.Load(), s.onlineConnNum.Load())
}

// unregisterClient unregisters a client and marks its user offline after the last connection
func (s *WsServer) unregisterClient(ctx context.Context, client *Client) {
	wasLast := s.userMap.Unregister(client)
	s.onlineConnNum.Add(-1)
	metrics.WsConnections.Dec()

	if wasLast {
		s.onlineUserNum.Add(-1)
		if err := s.presenceService.UpdateUserOnlineStatus(ctx, client.UserId, false); err != nil {
			log.CtxWarn(ctx, "set user offline failed: user_id=%s, error=%v", client.UserId, err)
		}
	}

	log.CtxInfo(ctx, "client unregistered: user_id=%s, platform_id=%d, conn_id=%s, user_offline=%v, online_users=%d, online_conns=%d",
		client.UserId, client.PlatformId, client.ConnId, wasLast, s.onlineUserNum.Load(), s.onlineConnNum.Load())
}

// RegisterClient queues client for registration
func (s *WsServer) RegisterClient(client *Client) {
	s.eventChan <- clientEvent{client: client, register: true}
}

// UnregisterClient queues client for unregistration, waiting for room in the
// event queue. Once the event loop has stopped the client is unregistered in place.
func (s *WsServer) UnregisterClient(client *Client) {
	ev := clientEvent{client: client}
	select {
	case <-s.runCtx.Done():
		s.unregisterClient(context.Background(), client)
		return
	default:
	}

	select {
	case s.eventChan <- ev:
	case <-s.runCtx.Done():
		s.unregisterClient(context.Background(), client)
	}
}

// authenticate validates the handshake query and returns the caller's claims
func (s *WsServer) authenticate(query func(string) string) (*jwt.Claims, int, error) {
	if s.onlineConnNum.Load() >= s.maxConnNum {
		return nil, http.StatusServiceUnavailable, errcode.ErrConnOverLimit
	}

	token := query(QueryToken)
	sendId := query(QuerySendId)
	if token == "" || sendId == "" {
		return nil, http.StatusBadRequest, errcode.ErrInvalidParam
	}

	claims, err := middleware.ParseTokenWithFallback(token, s.cfg)
	if err != nil {
		return nil, http.StatusUnauthorized, err
	}

	platformId := claims.PlatformId
	if v := query(QueryPlatformId); v != "" {
		platformId, _ = strconv.Atoi(v)
	}
	if err := claims.Match(sendId, platformId); err != nil {
		return nil, http.StatusUnauthorized, err
	}
	return claims, http.StatusOK, nil
}

// HandleConnection handles a new WebSocket connection over net/http
func (s *WsServer) HandleConnection(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	claims, status, err := s.authenticate(query.Get)
	if err != nil {
		log.CtxDebug(ctx, "websocket handshake rejected: send_id=%s, error=%v", query.Get(QuerySendId), err)
		http.Error(w, errcode.From(err).Msg, status)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.CtxWarn(ctx, "websocket upgrade failed: %v", err)
		return
	}

	client := NewClient(newClientConn(conn, s.cfg.WebSocket), claims.UserId, claims.PlatformId, query.Get(QuerySDKType), uuid.New().String(), s)
	s.RegisterClient(client)
	client.Start()
}

// NotifyTyping pushes a typing indicator to the local connections of userIds
func (s *WsServer) NotifyTyping(ctx context.Context, conversationId, participantId string, userIds []string, typing bool) {
	data, err := json.Marshal(&TypingPush{
		ConversationId: conversationId,
		ParticipantId:  participantId,
		IsTyping:       typing,
	})
	if err != nil {
		return
	}
	s.AsyncPushToUsers(WSPushTyping, data, userIds)
}

// AsyncPushToUsers queues a push to users
func (s *WsServer) AsyncPushToUsers(identifier int32, data []byte, userIds []string) {
	task := &PushTask{
		Identifier: identifier,
		Data:       data,
		TargetIds:  userIds,
	}

	select {
	case s.pushChan <- task:
	default:
		log.Warn("push channel full, push dropped: req_identifier=%d, targets=%d", identifier, len(userIds))
	}
}

// Shutdown kicks every local connection and marks their users offline
func (s *WsServer) Shutdown(ctx context.Context) {
	userIds := s.userMap.GetAllOnlineUserIds()
	for _, client := range s.userMap.AllClients() {
		_ = client.KickOnline()
	}
	for _, userId := range userIds {
		if err := s.presenceService.UpdateUserOnlineStatus(ctx, userId, false); err != nil {
			log.CtxWarn(ctx, "set user offline failed: user_id=%s, error=%v", userId, err)
		}
	}
}

// GetOnlineUserCount returns online user count
func (s *WsServer) GetOnlineUserCount() int64 {
	return s.onlineUserNum.Load()
}

// GetOnlineConnCount returns online connection count
func (s *WsServer) GetOnlineConnCount() int64 {
	return s.onlineConnNum.Load()
}

// ========== Message Handlers ==========

func decodeData(req *WSRequest, v any) error {
	if len(req.Data) == 0 {
		return errcode.ErrInvalidParam
	}
	if err := json.Unmarshal(req.Data, v); err != nil {
		return errcode.ErrInvalidParam.Wrap(err)
	}
	return nil
}

// HandleSendMsg handles send message request
func (s *WsServer) HandleSendMsg(ctx context.Context, client *Client, req *WSRequest) (any, error) {
	var sendReq SendMsgReq
	if err := decodeData(req, &sendReq); err != nil {
		return nil, err
	}
	if s.limiter != nil && !s.limiter.Allow(client.UserId) {
		return nil, errcode.ErrTooManyRequests
	}

	return s.msgService.SendMessage(ctx, &service.SendMessageRequest{
		ConversationId: sendReq.ConversationId,
		SenderId:       client.UserId,
		SenderName:     sendReq.SenderName,
		SenderAvatar:   sendReq.SenderAvatar,
		Content:        sendReq.Content,
	})
}

// HandleMarkRead handles mark read request
func (s *WsServer) HandleMarkRead(ctx context.Context, client *Client, req *WSRequest) (any, error) {
	var markReq MarkReadReq
	if err := decodeData(req, &markReq); err != nil {
		return nil, err
	}
	return nil, s.msgService.MarkMessagesAsRead(ctx, markReq.ConversationId, client.UserId)
}

// HandleHeartbeat refreshes the caller's presence
func (s *WsServer) HandleHeartbeat(ctx context.Context, client *Client, _ *WSRequest) (any, error) {
	return nil, s.presenceService.Heartbeat(ctx, client.UserId)
}

// HandleGetOrCreate handles get or create conversation request
func (s *WsServer) HandleGetOrCreate(ctx context.Context, client *Client, req *WSRequest) (any, error) {
	var getReq GetOrCreateReq
	if err := decodeData(req, &getReq); err != nil {
		return nil, err
	}

	convId, err := s.convService.GetOrCreateConversation(ctx, &service.GetOrCreateRequest{
		UserA:   client.UserId,
		NameA:   getReq.Name,
		AvatarA: getReq.Avatar,
		UserB:   getReq.OtherUserId,
		NameB:   getReq.OtherName,
		AvatarB: getReq.OtherAvatar,
	})
	if err != nil {
		return nil, err
	}
	return &GetOrCreateResp{ConversationId: convId}, nil
}

// HandleSubscribe opens a live subscription for the client
func (s *WsServer) HandleSubscribe(ctx context.Context, client *Client, req *WSRequest) (any, error) {
	var subReq SubscribeReq
	if err := decodeData(req, &subReq); err != nil {
		return nil, err
	}

	subId := uuid.New().String()
	target := subReq.TargetId
	var sub *fanout.Subscription

	switch subReq.Kind {
	case SubKindMessages:
		if _, err := s.convService.GetConversation(ctx, client.UserId, target); err != nil {
			return nil, err
		}
		sub = s.hub.SubscribeConversationMessages(target, func(msgs []*entity.Message) {
			client.pushSnapshot(subId, SubKindMessages, target, msgs)
		})
	case SubKindConversations:
		if target == "" {
			target = client.UserId
		}
		if target != client.UserId {
			return nil, errcode.ErrForbidden
		}
		sub = s.hub.SubscribeUserConversations(target, func(convs []*entity.Conversation) {
			client.pushSnapshot(subId, SubKindConversations, target, convs)
		})
	case SubKindPresence:
		if target == "" {
			return nil, errcode.ErrInvalidParam
		}
		sub = s.hub.SubscribeUserOnlineStatus(target, func(p *entity.Presence) {
			client.pushSnapshot(subId, SubKindPresence, target, p)
		})
	default:
		return nil, errcode.ErrInvalidParam
	}

	if err := client.addSubscription(subId, sub, s.cfg.Subscription.WarmupTimeout); err != nil {
		return nil, err
	}
	return &SubscribeResp{SubscriptionId: subId}, nil
}

// HandleUnsubscribe cancels one of the client's subscriptions
func (s *WsServer) HandleUnsubscribe(_ context.Context, client *Client, req *WSRequest) (any, error) {
	var unsubReq UnsubscribeReq
	if err := decodeData(req, &unsubReq); err != nil {
		return nil, err
	}
	if !client.removeSubscription(unsubReq.SubscriptionId) {
		return nil, errcode.ErrSubNotFound
	}
	return nil, nil
}
