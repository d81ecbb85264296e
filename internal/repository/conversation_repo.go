package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mbeoliero/unichat/internal/entity"
	"github.com/mbeoliero/unichat/pkg/errcode"
)

// ConversationRepo stores a conversation as one conversations row plus one
// conversation_members row per participant.
type ConversationRepo struct {
	db *gorm.DB
}

// NewConversationRepo creates a new ConversationRepo
func NewConversationRepo(db *gorm.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// CreateIfAbsent inserts the conversation unless its id already exists
func (r *ConversationRepo) CreateIfAbsent(ctx context.Context, conv *entity.Conversation) (bool, error) {
	row, members := entity.SplitConversation(conv)
	created := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		created = true
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&members).Error
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// Get gets a conversation by id, nil when absent
func (r *ConversationRepo) Get(ctx context.Context, conversationId string) (*entity.Conversation, error) {
	var row entity.ConversationRow
	err := r.db.WithContext(ctx).Where("id = ?", conversationId).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var members []*entity.ConversationMember
	if err := r.db.WithContext(ctx).Where("conversation_id = ?", conversationId).Find(&members).Error; err != nil {
		return nil, err
	}
	return entity.AssembleConversation(&row, members), nil
}

// ListByUser gets all conversations of a user, most recently updated first
func (r *ConversationRepo) ListByUser(ctx context.Context, userId string) ([]*entity.Conversation, error) {
	var rows []*entity.ConversationRow
	err := r.db.WithContext(ctx).
		Table("conversations c").
		Select("c.*").
		Joins("JOIN conversation_members m ON m.conversation_id = c.id").
		Where("m.user_id = ?", userId).
		Order("c.updated_at DESC").
		Order("c.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []*entity.Conversation{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.Id)
	}

	var members []*entity.ConversationMember
	if err := r.db.WithContext(ctx).Where("conversation_id IN ?", ids).Find(&members).Error; err != nil {
		return nil, err
	}
	byConv := make(map[string][]*entity.ConversationMember, len(rows))
	for _, m := range members {
		byConv[m.ConversationId] = append(byConv[m.ConversationId], m)
	}

	convs := make([]*entity.Conversation, 0, len(rows))
	for _, row := range rows {
		convs = append(convs, entity.AssembleConversation(row, byConv[row.Id]))
	}
	return convs, nil
}

// ApplyMessage sets the last message preview and bumps unread counts of the non-senders
func (r *ConversationRepo) ApplyMessage(ctx context.Context, msg *entity.Message) error {
	db := r.db.WithContext(ctx)
	res := db.Model(&entity.ConversationRow{}).
		Where("id = ?", msg.ConversationId).
		Updates(map[string]interface{}{
			"last_message_content":   msg.Content,
			"last_message_sender_id": msg.SenderId,
			"last_message_type":      msg.Type,
			"last_message_at":        msg.Timestamp,
			"updated_at":             msg.Timestamp,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// mysql reports unchanged rows as unaffected, so tell that apart from a missing one
		var count int64
		if err := db.Model(&entity.ConversationRow{}).Where("id = ?", msg.ConversationId).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return errcode.ErrConvNotFound
		}
	}

	return db.Model(&entity.ConversationMember{}).
		Where("conversation_id = ? AND user_id <> ?", msg.ConversationId, msg.SenderId).
		Update("unread_count", gorm.Expr("unread_count + 1")).Error
}

// ResetUnread zeroes the unread count of one participant
func (r *ConversationRepo) ResetUnread(ctx context.Context, conversationId, userId string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&entity.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ? AND unread_count <> 0", conversationId, userId).
		Update("unread_count", 0)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Delete removes the conversation and its member rows
func (r *ConversationRepo) Delete(ctx context.Context, conversationId string) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("conversation_id = ?", conversationId).Delete(&entity.ConversationMember{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", conversationId).Delete(&entity.ConversationRow{}).Error
}
