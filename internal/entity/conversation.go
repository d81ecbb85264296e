package entity

// LastMessage is the denormalised preview shown in conversation lists
type LastMessage struct {
	Content   string `json:"content" bson:"content"`
	SenderId  string `json:"sender_id" bson:"sender_id"`
	Timestamp int64  `json:"timestamp" bson:"timestamp"`
	Type      string `json:"type" bson:"type"`
}

// Conversation is a 1:1 thread between exactly two participants
type Conversation struct {
	Id                 string            `json:"id" bson:"_id"`
	ParticipantIds     []string          `json:"participant_ids" bson:"participant_ids"`
	ParticipantNames   map[string]string `json:"participant_names" bson:"participant_names"`
	ParticipantAvatars map[string]string `json:"participant_avatars" bson:"participant_avatars"`
	LastMessage        *LastMessage      `json:"last_message" bson:"last_message"`
	UnreadCount        map[string]int64  `json:"unread_count" bson:"unread_count"`
	CreatedAt          int64             `json:"created_at" bson:"created_at"`
	UpdatedAt          int64             `json:"updated_at" bson:"updated_at"`
}

// HasParticipant checks membership
func (c *Conversation) HasParticipant(userId string) bool {
	for _, id := range c.ParticipantIds {
		if id == userId {
			return true
		}
	}
	return false
}

// OtherParticipant returns the counterpart of userId, or "" if userId is not a member
func (c *Conversation) OtherParticipant(userId string) string {
	if !c.HasParticipant(userId) {
		return ""
	}
	for _, id := range c.ParticipantIds {
		if id != userId {
			return id
		}
	}
	return ""
}

// Clone returns a deep copy
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	cp.ParticipantIds = append([]string(nil), c.ParticipantIds...)
	cp.ParticipantNames = cloneMap(c.ParticipantNames)
	cp.ParticipantAvatars = cloneMap(c.ParticipantAvatars)
	cp.UnreadCount = cloneMap(c.UnreadCount)
	if c.LastMessage != nil {
		lm := *c.LastMessage
		cp.LastMessage = &lm
	}
	return &cp
}

func cloneMap[V any](m map[string]V) map[string]V {
	if m == nil {
		return nil
	}
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ConversationRow is the MySQL row of a conversation
type ConversationRow struct {
	Id                  string `gorm:"column:id;primaryKey"`
	LastMessageContent  string `gorm:"column:last_message_content"`
	LastMessageSenderId string `gorm:"column:last_message_sender_id"`
	LastMessageType     string `gorm:"column:last_message_type"`
	LastMessageAt       int64  `gorm:"column:last_message_at"`
	CreatedAt           int64  `gorm:"column:created_at"`
	UpdatedAt           int64  `gorm:"column:updated_at;index"`
}

// TableName returns the table name for ConversationRow
func (ConversationRow) TableName() string {
	return "conversations"
}

// ConversationMember is the per-participant MySQL row holding the display snapshot and unread count
type ConversationMember struct {
	Id             int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ConversationId string `gorm:"column:conversation_id;uniqueIndex:uk_conv_user"`
	UserId         string `gorm:"column:user_id;uniqueIndex:uk_conv_user;index"`
	DisplayName    string `gorm:"column:display_name"`
	AvatarUrl      string `gorm:"column:avatar_url"`
	UnreadCount    int64  `gorm:"column:unread_count"`
}

// TableName returns the table name for ConversationMember
func (ConversationMember) TableName() string {
	return "conversation_members"
}

// AssembleConversation builds the aggregate from its MySQL rows
func AssembleConversation(row *ConversationRow, members []*ConversationMember) *Conversation {
	conv := &Conversation{
		Id:                 row.Id,
		ParticipantIds:     make([]string, 0, len(members)),
		ParticipantNames:   make(map[string]string, len(members)),
		ParticipantAvatars: make(map[string]string, len(members)),
		UnreadCount:        make(map[string]int64, len(members)),
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
	for _, m := range members {
		conv.ParticipantIds = append(conv.ParticipantIds, m.UserId)
		conv.ParticipantNames[m.UserId] = m.DisplayName
		conv.ParticipantAvatars[m.UserId] = m.AvatarUrl
		conv.UnreadCount[m.UserId] = m.UnreadCount
	}
	if len(conv.ParticipantIds) == 2 && conv.ParticipantIds[0] > conv.ParticipantIds[1] {
		conv.ParticipantIds[0], conv.ParticipantIds[1] = conv.ParticipantIds[1], conv.ParticipantIds[0]
	}
	if row.LastMessageAt > 0 {
		conv.LastMessage = &LastMessage{
			Content:   row.LastMessageContent,
			SenderId:  row.LastMessageSenderId,
			Timestamp: row.LastMessageAt,
			Type:      row.LastMessageType,
		}
	}
	return conv
}

// SplitConversation is the inverse of AssembleConversation
func SplitConversation(conv *Conversation) (*ConversationRow, []*ConversationMember) {
	row := &ConversationRow{
		Id:        conv.Id,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}
	if lm := conv.LastMessage; lm != nil {
		row.LastMessageContent = lm.Content
		row.LastMessageSenderId = lm.SenderId
		row.LastMessageType = lm.Type
		row.LastMessageAt = lm.Timestamp
	}
	members := make([]*ConversationMember, 0, len(conv.ParticipantIds))
	for _, uid := range conv.ParticipantIds {
		members = append(members, &ConversationMember{
			ConversationId: conv.Id,
			UserId:         uid,
			DisplayName:    conv.ParticipantNames[uid],
			AvatarUrl:      conv.ParticipantAvatars[uid],
			UnreadCount:    conv.UnreadCount[uid],
		})
	}
	return row, members
}
