package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/mbeoliero/unichat/internal/entity"
)

// MessageRepo is the repository for message operations
type MessageRepo struct {
	db *gorm.DB
}

// NewMessageRepo creates a new MessageRepo
func NewMessageRepo(db *gorm.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create creates a new message
func (r *MessageRepo) Create(ctx context.Context, msg *entity.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

// ListByConversation returns all messages of a conversation in display order
func (r *MessageRepo) ListByConversation(ctx context.Context, conversationId string) ([]*entity.Message, error) {
	var messages []*entity.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationId).
		Order("timestamp ASC").
		Order("seq ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Recent returns the newest limit messages, oldest first
func (r *MessageRepo) Recent(ctx context.Context, conversationId string, limit int) ([]*entity.Message, error) {
	if limit <= 0 {
		return r.ListByConversation(ctx, conversationId)
	}

	var messages []*entity.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationId).
		Order("timestamp DESC").
		Order("seq DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkRead appends readerId to read_by of every message that lacks it
func (r *MessageRepo) MarkRead(ctx context.Context, conversationId, readerId string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&entity.Message{}).
		Where("conversation_id = ?", conversationId).
		Where("NOT JSON_CONTAINS(read_by, JSON_QUOTE(?))", readerId).
		Update("read_by", gorm.Expr("JSON_ARRAY_APPEND(read_by, '$', ?)", readerId))
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// DeleteByConversation removes every message of a conversation
func (r *MessageRepo) DeleteByConversation(ctx context.Context, conversationId string) error {
	return r.db.WithContext(ctx).Where("conversation_id = ?", conversationId).Delete(&entity.Message{}).Error
}
