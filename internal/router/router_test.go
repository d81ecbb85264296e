package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/unichat/internal/config"
	"github.com/mbeoliero/unichat/internal/entity"
	"github.com/mbeoliero/unichat/internal/fanout"
	"github.com/mbeoliero/unichat/internal/gateway"
	"github.com/mbeoliero/unichat/internal/handler"
	"github.com/mbeoliero/unichat/internal/middleware"
	"github.com/mbeoliero/unichat/internal/repository/memstore"
	"github.com/mbeoliero/unichat/internal/service"
	"github.com/mbeoliero/unichat/pkg/errcode"
	"github.com/mbeoliero/unichat/pkg/jwt"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type testAPI struct {
	t      *testing.T
	cfg    *config.Config
	h      *server.Hertz
	mem    *memstore.MemoryStore
	health error
}

func newTestAPI(t *testing.T, mutate func(*config.Config)) *testAPI {
	t.Helper()
	cfg := config.Default()
	cfg.JWT.Secret = "router-secret"
	if mutate != nil {
		mutate(cfg)
	}

	mem := memstore.New()
	mem.PutUser(&entity.User{Id: "alice", Nickname: "Alice", Avatar: "alice.png"})
	mem.PutUser(&entity.User{Id: "bob", Nickname: "Bob"})

	identity := service.NewIdentityService(mem, nil)
	convs := service.NewConversationService(mem, mem, identity)
	msgs := service.NewMessageService(mem, mem, cfg.Chat.MaxContentLength)
	presence := service.NewPresenceService(mem.Presence(), 0)
	hub := fanout.NewHub(service.NewSnapshotLoader(mem, presence), 1, time.Second)
	limiter := middleware.NewLimiterStore(cfg.Chat.SendRatePerMinute, cfg.Chat.SendBurst, 0)
	wsServer := gateway.NewWsServer(cfg, hub, convs, msgs, presence, limiter)

	api := &testAPI{t: t, cfg: cfg, h: server.New(), mem: mem}
	handlers := &Handlers{
		User:         handler.NewUserHandler(identity),
		Message:      handler.NewMessageHandler(msgs),
		Conversation: handler.NewConversationHandler(convs, msgs),
		Presence:     handler.NewPresenceHandler(presence),
	}
	SetupRouter(api.h, cfg, handlers, wsServer, pingFunc(func(context.Context) error { return api.health }), limiter)
	return api
}

func (a *testAPI) do(method, path, userId string, body any) apiResponse {
	a.t.Helper()
	var headers []ut.Header
	if userId != "" {
		token, err := jwt.GenerateToken(userId, 1, a.cfg.JWT.Secret, 1)
		require.NoError(a.t, err)
		headers = append(headers, ut.Header{Key: middleware.AuthorizationHeader, Value: middleware.BearerPrefix + token})
	}
	var reqBody *ut.Body
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reqBody = &ut.Body{Body: bytes.NewReader(raw), Len: len(raw)}
		headers = append(headers, ut.Header{Key: "Content-Type", Value: "application/json"})
	}

	w := ut.PerformRequest(a.h.Engine, method, path, reqBody, headers...)
	var resp apiResponse
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func (a *testAPI) ok(method, path, userId string, body any, out any) {
	a.t.Helper()
	resp := a.do(method, path, userId, body)
	require.Equal(a.t, 0, resp.Code, resp.Msg)
	if out != nil {
		require.NoError(a.t, json.Unmarshal(resp.Data, out))
	}
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, nil)

	w := ut.PerformRequest(api.h.Engine, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	api.health = errors.New("redis down")
	w = ut.PerformRequest(api.h.Engine, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t, nil)
	w := ut.PerformRequest(api.h.Engine, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "go_goroutines"))
}

func TestConversationFlow(t *testing.T) {
	api := newTestAPI(t, nil)

	var created map[string]string
	api.ok(http.MethodPost, "/conversation/get_or_create", "alice", handler.GetOrCreateRequest{OtherUserId: "bob"}, &created)
	convId := created["conversation_id"]
	assert.Equal(t, "si_alice:bob", convId)

	var again map[string]string
	api.ok(http.MethodPost, "/conversation/get_or_create", "bob", handler.GetOrCreateRequest{OtherUserId: "alice"}, &again)
	assert.Equal(t, convId, again["conversation_id"])

	var sent entity.Message
	api.ok(http.MethodPost, "/msg/send", "alice", map[string]string{"conversation_id": convId, "content": "hello"}, &sent)
	assert.Equal(t, "alice", sent.SenderId)
	assert.Equal(t, "Alice", sent.SenderName)
	assert.Equal(t, int64(1), sent.Seq)

	var convs []*entity.Conversation
	api.ok(http.MethodGet, "/conversation/list", "bob", nil, &convs)
	require.Len(t, convs, 1)
	assert.Equal(t, int64(1), convs[0].UnreadCount["bob"])
	require.NotNil(t, convs[0].LastMessage)
	assert.Equal(t, "hello", convs[0].LastMessage.Content)

	api.ok(http.MethodPost, "/conversation/mark_read", "bob", map[string]string{"conversation_id": convId}, nil)

	var conv entity.Conversation
	api.ok(http.MethodGet, "/conversation/info?conversation_id="+convId, "bob", nil, &conv)
	assert.Equal(t, int64(0), conv.UnreadCount["bob"])

	var msgs []*entity.Message
	api.ok(http.MethodGet, "/msg/list?conversation_id="+convId, "bob", nil, &msgs)
	require.Len(t, msgs, 1)
	assert.ElementsMatch(t, []string{"alice", "bob"}, []string(msgs[0].ReadBy))

	api.ok(http.MethodDelete, "/conversation/delete?conversation_id="+convId, "bob", nil, nil)
	resp := api.do(http.MethodGet, "/conversation/info?conversation_id="+convId, "alice", nil)
	assert.Equal(t, errcode.ErrConvNotFound.Code, resp.Code)
}

func TestSendValidation(t *testing.T) {
	api := newTestAPI(t, nil)
	var created map[string]string
	api.ok(http.MethodPost, "/conversation/get_or_create", "alice", handler.GetOrCreateRequest{OtherUserId: "bob"}, &created)

	resp := api.do(http.MethodPost, "/msg/send", "alice", map[string]string{"conversation_id": created["conversation_id"], "content": "   "}, nil)
	assert.Equal(t, errcode.ErrEmptyContent.Code, resp.Code)

	resp = api.do(http.MethodPost, "/msg/send", "carol", map[string]string{"conversation_id": created["conversation_id"], "content": "hi"}, nil)
	assert.Equal(t, errcode.ErrNotParticipant.Code, resp.Code)

	resp = api.do(http.MethodPost, "/conversation/get_or_create", "alice", handler.GetOrCreateRequest{OtherUserId: "alice"}, nil)
	assert.Equal(t, errcode.ErrIdentityInvalid.Code, resp.Code)
}

func TestSendRateLimited(t *testing.T) {
	api := newTestAPI(t, func(cfg *config.Config) {
		cfg.Chat.SendRatePerMinute = 1
		cfg.Chat.SendBurst = 1
	})
	var created map[string]string
	api.ok(http.MethodPost, "/conversation/get_or_create", "alice", handler.GetOrCreateRequest{OtherUserId: "bob"}, &created)

	api.ok(http.MethodPost, "/msg/send", "alice", map[string]string{"conversation_id": created["conversation_id"], "content": "one"}, nil)
	resp := api.do(http.MethodPost, "/msg/send", "alice", map[string]string{"conversation_id": created["conversation_id"], "content": "two"}, nil)
	assert.Equal(t, errcode.ErrTooManyRequests.Code, resp.Code)
}

func TestPresenceRoutes(t *testing.T) {
	api := newTestAPI(t, nil)

	var p entity.Presence
	api.ok(http.MethodGet, "/presence/status?user_id=bob", "alice", nil, &p)
	assert.False(t, p.IsOnline)

	api.ok(http.MethodPost, "/presence/update", "bob", map[string]bool{"is_online": true}, nil)
	api.ok(http.MethodGet, "/presence/status?user_id=bob", "alice", nil, &p)
	assert.True(t, p.IsOnline)
	assert.NotZero(t, p.LastSeen)

	api.ok(http.MethodPost, "/presence/heartbeat", "bob", nil, nil)
}

func TestUserInfo(t *testing.T) {
	api := newTestAPI(t, nil)

	var info entity.UserInfo
	api.ok(http.MethodGet, "/user/info", "alice", nil, &info)
	assert.Equal(t, entity.UserInfo{Id: "alice", DisplayName: "Alice", AvatarUrl: "alice.png"}, info)

	api.ok(http.MethodGet, "/user/info/ai_maya", "alice", nil, &info)
	assert.True(t, info.IsAI)

	resp := api.do(http.MethodGet, "/user/info/nobody", "alice", nil)
	assert.Equal(t, errcode.ErrUserNotFound.Code, resp.Code)
}

func TestRoutesRequireAuth(t *testing.T) {
	api := newTestAPI(t, nil)
	w := ut.PerformRequest(api.h.Engine, http.MethodGet, "/conversation/list", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
