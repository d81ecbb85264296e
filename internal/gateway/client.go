package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/unichat/internal/fanout"
	"github.com/mbeoliero/unichat/pkg/errcode"
)

// Client represents a connected WebSocket client
type Client struct {
	mu         sync.Mutex
	conn       ClientConn
	UserId     string
	PlatformId int
	SDKType    string
	ConnId     string
	server     *WsServer
	closed     atomic.Bool
	closedErr  error
	ctx        context.Context
	cancel     context.CancelFunc

	subsMu sync.Mutex
	subs   map[string]*clientSub
}

// clientSub is one live subscription opened by the client
type clientSub struct {
	sub    *fanout.Subscription
	warmup *time.Timer
}

// NewClient creates a new client
func NewClient(conn ClientConn, userId string, platformId int, sdkType, connId string, server *WsServer) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:       conn,
		UserId:     userId,
		PlatformId: platformId,
		SDKType:    sdkType,
		ConnId:     connId,
		server:     server,
		ctx:        ctx,
		cancel:     cancel,
		subs:       make(map[string]*clientSub),
	}
}

// Start starts the client message handling
func (c *Client) Start() {
	go c.readLoop()
}

// readLoop continuously reads messages from the connection
func (c *Client) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			c.closedErr = ErrPanic
			log.CtxError(c.ctx, "client read loop panic: user_id=%s, error=%v", c.UserId, r)
		}
		c.Close()
	}()

	for {
		message, err := c.conn.ReadMessage()
		if err != nil {
			log.CtxDebug(c.ctx, "read message error: user_id=%s, error=%v", c.UserId, err)
			c.closedErr = err
			return
		}

		if c.closed.Load() {
			c.closedErr = ErrConnClosed
			return
		}

		if err := c.handleMessage(message); err != nil {
			log.CtxWarn(c.ctx, "handle message error: user_id=%s, error=%v", c.UserId, err)
			c.closedErr = err
			return
		}
	}
}

// handleMessage handles a single incoming message. Only transport failures are returned.
func (c *Client) handleMessage(message []byte) error {
	var req WSRequest
	if err := json.Unmarshal(message, &req); err != nil {
		return c.replyError(&req, errcode.ErrInvalidProtocol)
	}

	if req.SendId != "" && req.SendId != c.UserId {
		return c.replyError(&req, errcode.ErrTokenMismatch)
	}

	log.CtxDebug(c.ctx, "received message: req_identifier=%d, user_id=%s", req.ReqIdentifier, c.UserId)

	var resp any
	var err error

	switch req.ReqIdentifier {
	case WSSendMsg:
		resp, err = c.server.HandleSendMsg(c.ctx, c, &req)
	case WSMarkRead:
		resp, err = c.server.HandleMarkRead(c.ctx, c, &req)
	case WSSubscribe:
		resp, err = c.server.HandleSubscribe(c.ctx, c, &req)
	case WSUnsubscribe:
		resp, err = c.server.HandleUnsubscribe(c.ctx, c, &req)
	case WSHeartbeat:
		resp, err = c.server.HandleHeartbeat(c.ctx, c, &req)
	case WSGetOrCreate:
		resp, err = c.server.HandleGetOrCreate(c.ctx, c, &req)
	default:
		return c.replyError(&req, errcode.ErrInvalidProtocol)
	}

	if err != nil {
		return c.replyError(&req, err)
	}
	return c.reply(&req, resp)
}

// reply sends a success response to the client
func (c *Client) reply(req *WSRequest, data any) error {
	resp := WSResponse{
		ReqIdentifier: req.ReqIdentifier,
		MsgIncr:       req.MsgIncr,
		OperationId:   req.OperationId,
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return c.replyError(req, errcode.ErrInternalServer)
		}
		resp.Data = raw
	}
	return c.writeResponse(resp)
}

// replyError sends an error response
func (c *Client) replyError(req *WSRequest, err error) error {
	e := errcode.From(err)
	resp := WSResponse{
		ReqIdentifier: req.ReqIdentifier,
		MsgIncr:       req.MsgIncr,
		OperationId:   req.OperationId,
		ErrCode:       e.Code,
		ErrMsg:        e.Msg,
	}
	return c.writeResponse(resp)
}

// writeResponse writes a response to the connection
func (c *Client) writeResponse(resp WSResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	return c.conn.WriteMessage(data)
}

// push sends a server-initiated message
func (c *Client) push(identifier int32, payload any) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.writeResponse(WSResponse{ReqIdentifier: identifier, Data: data})
}

// pushSnapshot delivers a subscription snapshot. A client that cannot keep up is disconnected;
// on reconnect it subscribes again and receives a fresh snapshot.
func (c *Client) pushSnapshot(subId, kind, targetId string, data any) {
	err := c.push(WSPushSnapshot, &SnapshotPush{
		SubscriptionId: subId,
		Kind:           kind,
		TargetId:       targetId,
		Data:           data,
	})
	switch {
	case err == nil, errors.Is(err, ErrConnClosed):
	case errors.Is(err, ErrWriteChannelFull):
		log.CtxWarn(c.ctx, "client too slow, closing: user_id=%s, conn_id=%s, subscription_id=%s", c.UserId, c.ConnId, subId)
		c.Close()
	default:
		log.CtxDebug(c.ctx, "push snapshot failed: user_id=%s, subscription_id=%s, error=%v", c.UserId, subId, err)
	}
}

// addSubscription tracks sub under id. It fails once the client is closed.
func (c *Client) addSubscription(id string, sub *fanout.Subscription, warmupTimeout time.Duration) error {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	if c.closed.Load() {
		sub.Unsubscribe()
		return errcode.ErrConnClosed
	}

	entry := &clientSub{sub: sub}
	if warmupTimeout > 0 {
		entry.warmup = time.AfterFunc(warmupTimeout, func() {
			select {
			case <-sub.Ready():
				return
			default:
			}
			if err := c.push(WSPushWarmingUp, &WarmingUpPush{SubscriptionId: id}); err != nil {
				log.CtxDebug(c.ctx, "push warming up failed: user_id=%s, subscription_id=%s, error=%v", c.UserId, id, err)
			}
		})
	}
	c.subs[id] = entry
	return nil
}

// removeSubscription cancels the subscription id, reporting whether it existed
func (c *Client) removeSubscription(id string) bool {
	c.subsMu.Lock()
	entry, ok := c.subs[id]
	delete(c.subs, id)
	c.subsMu.Unlock()

	if !ok {
		return false
	}
	entry.cancel()
	return true
}

// SubscriptionCount returns the number of open subscriptions
func (c *Client) SubscriptionCount() int {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	return len(c.subs)
}

func (e *clientSub) cancel() {
	if e.warmup != nil {
		e.warmup.Stop()
	}
	e.sub.Unsubscribe()
}

// dropSubscriptions cancels every subscription of the client
func (c *Client) dropSubscriptions() {
	c.subsMu.Lock()
	subs := c.subs
	c.subs = make(map[string]*clientSub)
	c.subsMu.Unlock()

	for _, entry := range subs {
		entry.cancel()
	}
}

// KickOnline sends kick message and closes connection
func (c *Client) KickOnline() error {
	resp := WSResponse{
		ReqIdentifier: WSKickOnlineMsg,
	}
	_ = c.writeResponse(resp)
	return c.Close()
}

// Close closes the client connection, cancels its subscriptions and unregisters it
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return nil
	}
	c.closed.Store(true)
	c.mu.Unlock()

	c.cancel()
	// subsMu orders this after any addSubscription that saw closed == false
	c.dropSubscriptions()
	err := c.conn.Close()
	c.server.UnregisterClient(c)
	return err
}

// IsClosed returns whether the client is closed
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}
