package entity

import (
	"gorm.io/datatypes"
)

// Message is one entry of a conversation
type Message struct {
	Id             string                      `json:"id" gorm:"column:id;primaryKey" bson:"_id"`
	ConversationId string                      `json:"conversation_id" gorm:"column:conversation_id;index:idx_conv_ts,priority:1" bson:"conversation_id"`
	Seq            int64                       `json:"seq" gorm:"column:seq" bson:"seq"`
	SenderId       string                      `json:"sender_id" gorm:"column:sender_id" bson:"sender_id"`
	SenderName     string                      `json:"sender_name" gorm:"column:sender_name" bson:"sender_name"`
	SenderAvatar   string                      `json:"sender_avatar" gorm:"column:sender_avatar" bson:"sender_avatar"`
	Content        string                      `json:"content" gorm:"column:content;type:text" bson:"content"`
	Type           string                      `json:"type" gorm:"column:type" bson:"type"`
	Timestamp      int64                       `json:"timestamp" gorm:"column:timestamp;index:idx_conv_ts,priority:2" bson:"timestamp"`
	ReadBy         datatypes.JSONSlice[string] `json:"read_by" gorm:"column:read_by" bson:"read_by"`
	IsEdited       bool                        `json:"is_edited" gorm:"column:is_edited" bson:"is_edited"`
}

// TableName returns the table name for Message
func (Message) TableName() string {
	return "messages"
}

// IsReadBy checks whether userId has read the message
func (m *Message) IsReadBy(userId string) bool {
	for _, id := range m.ReadBy {
		if id == userId {
			return true
		}
	}
	return false
}

// MarkReadBy adds userId to the read set, reporting whether it changed
func (m *Message) MarkReadBy(userId string) bool {
	if m.IsReadBy(userId) {
		return false
	}
	m.ReadBy = append(m.ReadBy, userId)
	return true
}

// Clone returns a deep copy
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	cp := *m
	cp.ReadBy = append(datatypes.JSONSlice[string](nil), m.ReadBy...)
	return &cp
}

// Before reports whether m sorts before other: by timestamp, then seq.
func (m *Message) Before(other *Message) bool {
	if m.Timestamp != other.Timestamp {
		return m.Timestamp < other.Timestamp
	}
	return m.Seq < other.Seq
}

// IsGroupedWith reports whether next renders in the same visual group as prev:
// same sender and sent within MessageGroupWindow.
func IsGroupedWith(prev, next *Message) bool {
	if prev == nil || next == nil || prev.SenderId != next.SenderId {
		return false
	}
	return next.Timestamp-prev.Timestamp < MessageGroupWindow.Milliseconds()
}

// ToLastMessage builds the conversation preview for m
func (m *Message) ToLastMessage() *LastMessage {
	return &LastMessage{
		Content:   m.Content,
		SenderId:  m.SenderId,
		Timestamp: m.Timestamp,
		Type:      m.Type,
	}
}
