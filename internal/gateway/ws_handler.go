package gateway

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"
	"github.com/hertz-contrib/websocket"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/unichat/pkg/errcode"
)

// HandleHertzConnection handles a WebSocket connection from Hertz using hertz-contrib/websocket
func (s *WsServer) HandleHertzConnection(ctx context.Context, c *app.RequestContext, upgrader *websocket.HertzUpgrader) {
	query := func(key string) string { return c.Query(key) }
	claims, status, err := s.authenticate(query)
	if err != nil {
		log.CtxDebug(ctx, "websocket handshake rejected: send_id=%s, error=%v", query(QuerySendId), err)
		c.String(status, errcode.From(err).Msg)
		return
	}
	sdkType := query(QuerySDKType)

	err = upgrader.Upgrade(c, func(conn *websocket.Conn) {
		client := NewClient(newClientConn(conn, s.cfg.WebSocket), claims.UserId, claims.PlatformId, sdkType, uuid.New().String(), s)
		s.RegisterClient(client)

		// blocks for the lifetime of the connection
		client.readLoop()
	})
	if err != nil {
		log.CtxWarn(ctx, "websocket upgrade failed: %v", err)
	}
}
