package gateway

import "encoding/json"

// WSRequest represents a WebSocket request message
type WSRequest struct {
	ReqIdentifier int32           `json:"req_identifier"` // Request type
	MsgIncr       string          `json:"msg_incr"`       // Client message counter/trace Id
	OperationId   string          `json:"operation_id"`   // Operation Id
	SendId        string          `json:"send_id"`        // Sender user Id
	Data          json.RawMessage `json:"data,omitempty"` // Business data
}

// WSResponse represents a WebSocket response or push message
type WSResponse struct {
	ReqIdentifier int32           `json:"req_identifier"` // Request type (echo back)
	MsgIncr       string          `json:"msg_incr"`       // Message counter (echo back)
	OperationId   string          `json:"operation_id"`   // Operation Id (echo back)
	ErrCode       int             `json:"err_code"`       // Error code, 0 = success
	ErrMsg        string          `json:"err_msg"`        // Error message
	Data          json.RawMessage `json:"data,omitempty"` // Response data
}

// SendMsgReq represents send message request data
type SendMsgReq struct {
	ConversationId string `json:"conversation_id"`
	Content        string `json:"content"`
	SenderName     string `json:"sender_name,omitempty"`
	SenderAvatar   string `json:"sender_avatar,omitempty"`
}

// MarkReadReq represents mark read request data
type MarkReadReq struct {
	ConversationId string `json:"conversation_id"`
}

// GetOrCreateReq represents get or create conversation request data. The caller is always one side.
type GetOrCreateReq struct {
	Name        string `json:"name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	OtherUserId string `json:"other_user_id"`
	OtherName   string `json:"other_name,omitempty"`
	OtherAvatar string `json:"other_avatar,omitempty"`
}

// GetOrCreateResp represents get or create conversation response data
type GetOrCreateResp struct {
	ConversationId string `json:"conversation_id"`
}

// SubscribeReq opens a live subscription. TargetId is a conversation id for
// messages, and a user id for conversations and presence.
type SubscribeReq struct {
	Kind     string `json:"kind"`
	TargetId string `json:"target_id"`
}

// SubscribeResp carries the id used to match pushes and to unsubscribe
type SubscribeResp struct {
	SubscriptionId string `json:"subscription_id"`
}

// UnsubscribeReq cancels a live subscription
type UnsubscribeReq struct {
	SubscriptionId string `json:"subscription_id"`
}

// SnapshotPush is the full current result of a subscription. Data holds
// []*entity.Message, []*entity.Conversation or *entity.Presence depending on Kind.
type SnapshotPush struct {
	SubscriptionId string `json:"subscription_id"`
	Kind           string `json:"kind"`
	TargetId       string `json:"target_id"`
	Data           any    `json:"data"`
}

// WarmingUpPush tells the client a subscription is still loading
type WarmingUpPush struct {
	SubscriptionId string `json:"subscription_id"`
}

// TypingPush shows or hides a participant's typing indicator
type TypingPush struct {
	ConversationId string `json:"conversation_id"`
	ParticipantId  string `json:"participant_id"`
	IsTyping       bool   `json:"is_typing"`
}
