package gateway

// WebSocket protocol identifiers
const (
	// Request identifiers
	WSSendMsg     = 1003 // Send message
	WSMarkRead    = 1004 // Mark conversation read
	WSSubscribe   = 1010 // Open a live subscription
	WSUnsubscribe = 1011 // Cancel a live subscription
	WSHeartbeat   = 1020 // Presence heartbeat
	WSGetOrCreate = 1030 // Get or create a direct conversation

	// Push identifiers
	WSPushSnapshot  = 2001 // Subscription snapshot
	WSKickOnlineMsg = 2002 // Kick user offline
	WSPushTyping    = 2003 // Typing indicator
	WSPushWarmingUp = 2004 // Subscription has not produced its first snapshot yet
)

// Subscription kinds
const (
	SubKindMessages      = "messages"
	SubKindConversations = "conversations"
	SubKindPresence      = "presence"
)

// Query parameter keys
const (
	QueryToken      = "token"
	QuerySendId     = "send_id"
	QueryPlatformId = "platform_id"
	QuerySDKType    = "sdk_type"
)
