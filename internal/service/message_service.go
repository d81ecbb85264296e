package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/unichat/internal/entity"
	"github.com/mbeoliero/unichat/internal/metrics"
	"github.com/mbeoliero/unichat/internal/store"
	"github.com/mbeoliero/unichat/pkg/constant"
	"github.com/mbeoliero/unichat/pkg/errcode"
	"github.com/mbeoliero/unichat/pkg/idgen"
)

// MessageService handles message-related business logic
type MessageService struct {
	store            store.Store
	seq              store.SeqAllocator
	notifier         Notifier
	trigger          ReplyTrigger
	maxContentLength int
	now              func() int64
}

// NewMessageService creates a new MessageService. maxContentLength <= 0 disables the length check.
func NewMessageService(st store.Store, seq store.SeqAllocator, maxContentLength int) *MessageService {
	return &MessageService{
		store:            st,
		seq:              seq,
		notifier:         nopNotifier{},
		maxContentLength: maxContentLength,
		now:              entity.NowUnixMilli,
	}
}

// SetNotifier sets the change notifier
func (s *MessageService) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}

// SetReplyTrigger sets the trigger called after every persisted message
func (s *MessageService) SetReplyTrigger(t ReplyTrigger) {
	s.trigger = t
}

// SendMessageRequest represents send message request
type SendMessageRequest struct {
	ConversationId string `json:"conversation_id"`
	SenderId       string `json:"-"`
	SenderName     string `json:"sender_name,omitempty"`
	SenderAvatar   string `json:"sender_avatar,omitempty"`
	Content        string `json:"content"`
}

// SendMessage appends a text message and updates the conversation preview and unread counters
func (s *MessageService) SendMessage(ctx context.Context, req *SendMessageRequest) (*entity.Message, error) {
	if req == nil {
		return nil, errcode.ErrInvalidParam
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, errcode.ErrEmptyContent
	}
	if s.maxContentLength > 0 && utf8.RuneCountInString(content) > s.maxContentLength {
		return nil, errcode.ErrContentTooLong
	}

	conv, err := loadParticipantConversation(ctx, s.store, req.ConversationId, req.SenderId)
	if err != nil {
		return nil, err
	}

	msgId, err := idgen.NextID()
	if err != nil {
		log.CtxError(ctx, "generate message id failed: %v", err)
		return nil, errcode.ErrSendFailed.Wrap(err)
	}

	senderName := req.SenderName
	if senderName == "" {
		senderName = conv.ParticipantNames[req.SenderId]
	}
	senderAvatar := req.SenderAvatar
	if senderAvatar == "" {
		senderAvatar = conv.ParticipantAvatars[req.SenderId]
	}

	msg := &entity.Message{
		Id:             msgId,
		ConversationId: conv.Id,
		SenderId:       req.SenderId,
		SenderName:     senderName,
		SenderAvatar:   senderAvatar,
		Content:        content,
		Type:           constant.MsgTypeText,
		Timestamp:      s.now(),
		ReadBy:         []string{req.SenderId},
	}

	err = s.store.Atomic(ctx, func(tx store.Store) error {
		seq, err := s.seq.AllocSeq(ctx, conv.Id)
		if err != nil {
			return errcode.ErrSeqAllocFailed.Wrap(err)
		}
		msg.Seq = seq

		// the preview goes first so a conversation deleted meanwhile fails the send before the insert
		if err := tx.Conversations().ApplyMessage(ctx, msg); err != nil {
			return err
		}
		return tx.Messages().Create(ctx, msg)
	})
	if err != nil {
		log.CtxError(ctx, "send message failed: conversation_id=%s, sender_id=%s, error=%v", conv.Id, req.SenderId, err)
		return nil, storeErr(err)
	}

	senderKind := "human"
	if entity.IsAIParticipant(req.SenderId) {
		senderKind = "ai"
	}
	metrics.MessagesSent.WithLabelValues(senderKind).Inc()
	log.CtxInfo(ctx, "message sent: conversation_id=%s, sender_id=%s, seq=%d", conv.Id, req.SenderId, msg.Seq)

	s.notifier.Publish(ctx, entity.Change{
		Kind:           entity.ChangeMessage,
		ConversationId: conv.Id,
		UserIds:        conv.ParticipantIds,
	})

	if s.trigger != nil {
		s.trigger.TriggerAIResponse(ctx, conv, msg.Clone())
	}
	return msg, nil
}

// MarkMessagesAsRead marks every message of the conversation as read by readerId and clears its unread count
func (s *MessageService) MarkMessagesAsRead(ctx context.Context, conversationId, readerId string) error {
	conv, err := loadParticipantConversation(ctx, s.store, conversationId, readerId)
	if err != nil {
		return err
	}

	var marked int64
	var reset bool
	err = s.store.Atomic(ctx, func(tx store.Store) error {
		var err error
		if marked, err = tx.Messages().MarkRead(ctx, conversationId, readerId); err != nil {
			return err
		}
		reset, err = tx.Conversations().ResetUnread(ctx, conversationId, readerId)
		return err
	})
	if err != nil {
		log.CtxError(ctx, "mark read failed: conversation_id=%s, reader_id=%s, error=%v", conversationId, readerId, err)
		return storeErr(err)
	}

	if marked == 0 && !reset {
		return nil
	}
	log.CtxDebug(ctx, "messages marked read: conversation_id=%s, reader_id=%s, count=%d", conversationId, readerId, marked)
	s.notifier.Publish(ctx, entity.Change{
		Kind:           entity.ChangeRead,
		ConversationId: conversationId,
		UserIds:        conv.ParticipantIds,
	})
	return nil
}

// ListMessages returns the conversation's messages ordered by (timestamp, seq)
func (s *MessageService) ListMessages(ctx context.Context, userId, conversationId string) ([]*entity.Message, error) {
	if _, err := loadParticipantConversation(ctx, s.store, conversationId, userId); err != nil {
		return nil, err
	}
	messages, err := s.store.Messages().ListByConversation(ctx, conversationId)
	if err != nil {
		log.CtxError(ctx, "list messages failed: conversation_id=%s, error=%v", conversationId, err)
		return nil, errcode.ErrStoreUnavailable.Wrap(err)
	}
	return messages, nil
}

// RecentMessages returns the newest limit messages, oldest first
func (s *MessageService) RecentMessages(ctx context.Context, conversationId string, limit int) ([]*entity.Message, error) {
	messages, err := s.store.Messages().Recent(ctx, conversationId, limit)
	if err != nil {
		return nil, errcode.ErrStoreUnavailable.Wrap(err)
	}
	return messages, nil
}
