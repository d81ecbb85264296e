package entity

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mbeoliero/unichat/pkg/constant"
)

// MessageGroupWindow is the gap under which consecutive messages of one sender render as a group
const MessageGroupWindow = 5 * time.Minute

// NowUnixMilli returns current unix timestamp in milliseconds
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// GenSingleConversationId generates the conversation Id for a participant pair.
// Format: si_{min(userA,userB)}:{max(userA,userB)}
// Uses ":" as separator between userIds to support userIds containing "_"
func GenSingleConversationId(userA, userB string) string {
	users := []string{userA, userB}
	sort.Strings(users)
	return fmt.Sprintf("%s%s:%s", constant.SingleConversationPrefix, users[0], users[1])
}

// IsAIParticipant reports whether the participant id names an AI persona
func IsAIParticipant(userId string) bool {
	return strings.HasPrefix(userId, constant.AIParticipantPrefix) && len(userId) > len(constant.AIParticipantPrefix)
}

// PersonaIdOf returns the AI character id behind a participant id, or "" for humans
func PersonaIdOf(userId string) string {
	if !IsAIParticipant(userId) {
		return ""
	}
	return strings.TrimPrefix(userId, constant.AIParticipantPrefix)
}

// AIParticipantId returns the participant id of an AI character
func AIParticipantId(characterId string) string {
	return constant.AIParticipantPrefix + characterId
}

// SortedPair returns the two ids in ascending order
func SortedPair(a, b string) []string {
	if a > b {
		a, b = b, a
	}
	return []string{a, b}
}
