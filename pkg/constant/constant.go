package constant

// Message types
const (
	MsgTypeText = "text"
)

// Participant and conversation id prefixes
const (
	AIParticipantPrefix      = "ai_"
	SingleConversationPrefix = "si_"
)

// Platform Ids
const (
	PlatformIdUnknown = 0
	PlatformIdIOS     = 1
	PlatformIdAndroid = 2
	PlatformIdWeb     = 5
)

// PlatformIdToName converts platform Id to name
func PlatformIdToName(platformId int) string {
	switch platformId {
	case PlatformIdIOS:
		return "iOS"
	case PlatformIdAndroid:
		return "Android"
	case PlatformIdWeb:
		return "Web"
	default:
		return "Unknown"
	}
}

// Redis key patterns (without prefix, use RedisKey() to get full key)
const (
	redisKeyPresence        = "presence:%s" // presence:{user_id}
	redisKeySeqConversation = "seq:conv:%s" // seq:conv:{conversation_id}
)

// redisKeyPrefix is the global prefix for all Redis keys
var redisKeyPrefix = "unichat:"

// InitRedisKeyPrefix initializes the Redis key prefix from config
func InitRedisKeyPrefix(prefix string) {
	if prefix != "" {
		redisKeyPrefix = prefix
	}
}

// GetRedisKeyPrefix returns the current Redis key prefix
func GetRedisKeyPrefix() string {
	return redisKeyPrefix
}

// Redis key getters with prefix
func RedisKeyPresence() string        { return redisKeyPrefix + redisKeyPresence }
func RedisKeySeqConversation() string { return redisKeyPrefix + redisKeySeqConversation }

// RedisChannel returns the prefixed pub/sub channel name
func RedisChannel(name string) string { return redisKeyPrefix + name }
