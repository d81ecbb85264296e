package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenSingleConversationId_OrderIndependent(t *testing.T) {
	assert.Equal(t, GenSingleConversationId("u1", "ai_maya"), GenSingleConversationId("ai_maya", "u1"))
	assert.Equal(t, "si_ai_maya:u1", GenSingleConversationId("u1", "ai_maya"))
}

func TestAIParticipant(t *testing.T) {
	tests := []struct {
		id      string
		isAI    bool
		persona string
	}{
		{"ai_maya", true, "maya"},
		{"ai_", false, ""},
		{"u_123", false, ""},
		{"", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.isAI, IsAIParticipant(tt.id))
			assert.Equal(t, tt.persona, PersonaIdOf(tt.id))
		})
	}
	assert.Equal(t, "ai_kai", AIParticipantId("kai"))
}

func TestConversation_Participants(t *testing.T) {
	conv := &Conversation{ParticipantIds: []string{"a", "b"}}
	assert.True(t, conv.HasParticipant("a"))
	assert.False(t, conv.HasParticipant("c"))
	assert.Equal(t, "b", conv.OtherParticipant("a"))
	assert.Equal(t, "", conv.OtherParticipant("c"))
}

func TestConversation_CloneIsDeep(t *testing.T) {
	conv := &Conversation{
		Id:             "si_a:b",
		ParticipantIds: []string{"a", "b"},
		UnreadCount:    map[string]int64{"a": 0, "b": 1},
		LastMessage:    &LastMessage{Content: "hi"},
	}
	cp := conv.Clone()
	cp.UnreadCount["b"] = 5
	cp.LastMessage.Content = "changed"
	cp.ParticipantIds[0] = "x"

	assert.Equal(t, int64(1), conv.UnreadCount["b"])
	assert.Equal(t, "hi", conv.LastMessage.Content)
	assert.Equal(t, "a", conv.ParticipantIds[0])
}

func TestAssembleAndSplitConversation(t *testing.T) {
	conv := &Conversation{
		Id:                 "si_a:b",
		ParticipantIds:     []string{"a", "b"},
		ParticipantNames:   map[string]string{"a": "Ann", "b": "Bo"},
		ParticipantAvatars: map[string]string{"a": "a.png", "b": "b.png"},
		UnreadCount:        map[string]int64{"a": 0, "b": 2},
		LastMessage:        &LastMessage{Content: "hey", SenderId: "a", Timestamp: 10, Type: "text"},
		CreatedAt:          1,
		UpdatedAt:          10,
	}
	row, members := SplitConversation(conv)
	require.Len(t, members, 2)

	// member rows may come back in any order
	members[0], members[1] = members[1], members[0]
	assert.Equal(t, conv, AssembleConversation(row, members))
}

func TestMessage_ReadBy(t *testing.T) {
	msg := &Message{SenderId: "a", ReadBy: []string{"a"}}
	assert.True(t, msg.IsReadBy("a"))
	assert.True(t, msg.MarkReadBy("b"))
	assert.False(t, msg.MarkReadBy("b"))
	assert.Equal(t, []string{"a", "b"}, []string(msg.ReadBy))
}

func TestMessage_Ordering(t *testing.T) {
	first := &Message{Timestamp: 100, Seq: 2}
	second := &Message{Timestamp: 100, Seq: 3}
	third := &Message{Timestamp: 101, Seq: 1}
	assert.True(t, first.Before(second))
	assert.True(t, second.Before(third))
	assert.False(t, third.Before(first))
}

func TestIsGroupedWith(t *testing.T) {
	base := &Message{SenderId: "a", Timestamp: 0}
	assert.True(t, IsGroupedWith(base, &Message{SenderId: "a", Timestamp: (4 * time.Minute).Milliseconds()}))
	assert.False(t, IsGroupedWith(base, &Message{SenderId: "a", Timestamp: (6 * time.Minute).Milliseconds()}))
	assert.False(t, IsGroupedWith(base, &Message{SenderId: "b", Timestamp: 1}))
	assert.False(t, IsGroupedWith(nil, base))
}
