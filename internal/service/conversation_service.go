package service

import (
	"context"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/unichat/internal/entity"
	"github.com/mbeoliero/unichat/internal/store"
	"github.com/mbeoliero/unichat/pkg/errcode"
)

// ConversationService handles conversation-related business logic
type ConversationService struct {
	store    store.Store
	seq      store.SeqAllocator
	identity IdentityProvider
	notifier Notifier
}

// NewConversationService creates a new ConversationService
func NewConversationService(st store.Store, seq store.SeqAllocator, identity IdentityProvider) *ConversationService {
	return &ConversationService{
		store:    st,
		seq:      seq,
		identity: identity,
		notifier: nopNotifier{},
	}
}

// SetNotifier sets the change notifier
func (s *ConversationService) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}

// GetOrCreateRequest names the two participants of a conversation.
// Names and avatars are snapshotted only when the conversation is created.
type GetOrCreateRequest struct {
	UserA   string `json:"user_a"`
	NameA   string `json:"name_a,omitempty"`
	AvatarA string `json:"avatar_a,omitempty"`
	UserB   string `json:"user_b"`
	NameB   string `json:"name_b,omitempty"`
	AvatarB string `json:"avatar_b,omitempty"`
}

// GetOrCreateConversation returns the id of the pair's conversation, creating it if needed
func (s *ConversationService) GetOrCreateConversation(ctx context.Context, req *GetOrCreateRequest) (string, error) {
	if req == nil || req.UserA == "" || req.UserB == "" || req.UserA == req.UserB {
		return "", errcode.ErrIdentityInvalid
	}

	conversationId := entity.GenSingleConversationId(req.UserA, req.UserB)
	existing, err := s.store.Conversations().Get(ctx, conversationId)
	if err != nil {
		log.CtxError(ctx, "get conversation failed: conversation_id=%s, error=%v", conversationId, err)
		return "", errcode.ErrStoreUnavailable.Wrap(err)
	}
	if existing != nil {
		return conversationId, nil
	}

	nameA, avatarA := s.fillIdentity(ctx, req.UserA, req.NameA, req.AvatarA)
	nameB, avatarB := s.fillIdentity(ctx, req.UserB, req.NameB, req.AvatarB)

	now := entity.NowUnixMilli()
	conv := &entity.Conversation{
		Id:                 conversationId,
		ParticipantIds:     entity.SortedPair(req.UserA, req.UserB),
		ParticipantNames:   map[string]string{req.UserA: nameA, req.UserB: nameB},
		ParticipantAvatars: map[string]string{req.UserA: avatarA, req.UserB: avatarB},
		UnreadCount:        map[string]int64{req.UserA: 0, req.UserB: 0},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	created, err := s.store.Conversations().CreateIfAbsent(ctx, conv)
	if err != nil {
		log.CtxError(ctx, "create conversation failed: conversation_id=%s, error=%v", conversationId, err)
		return "", errcode.ErrStoreUnavailable.Wrap(err)
	}
	if created {
		log.CtxInfo(ctx, "conversation created: conversation_id=%s", conversationId)
		s.notifier.Publish(ctx, entity.Change{
			Kind:           entity.ChangeConversation,
			ConversationId: conversationId,
			UserIds:        conv.ParticipantIds,
		})
	}
	return conversationId, nil
}

// fillIdentity completes a missing name or avatar from the identity provider
func (s *ConversationService) fillIdentity(ctx context.Context, userId, name, avatar string) (string, string) {
	if (name != "" && avatar != "") || s.identity == nil {
		return name, avatar
	}
	info, err := s.identity.Resolve(ctx, userId)
	if err != nil {
		log.CtxDebug(ctx, "resolve identity failed: user_id=%s, error=%v", userId, err)
		if name == "" {
			name = userId
		}
		return name, avatar
	}
	if name == "" {
		name = info.DisplayName
	}
	if avatar == "" {
		avatar = info.AvatarUrl
	}
	return name, avatar
}

// ListConversationsForUser returns the user's conversations, most recently updated first
func (s *ConversationService) ListConversationsForUser(ctx context.Context, userId string) ([]*entity.Conversation, error) {
	if userId == "" {
		return nil, errcode.ErrIdentityInvalid
	}
	convs, err := s.store.Conversations().ListByUser(ctx, userId)
	if err != nil {
		log.CtxError(ctx, "list conversations failed: user_id=%s, error=%v", userId, err)
		return nil, errcode.ErrStoreUnavailable.Wrap(err)
	}
	return convs, nil
}

// GetConversation gets a conversation the user participates in
func (s *ConversationService) GetConversation(ctx context.Context, userId, conversationId string) (*entity.Conversation, error) {
	return loadParticipantConversation(ctx, s.store, conversationId, userId)
}

// DeleteConversation removes the conversation and all its messages for both participants
func (s *ConversationService) DeleteConversation(ctx context.Context, conversationId, requestingUserId string) error {
	conv, err := loadParticipantConversation(ctx, s.store, conversationId, requestingUserId)
	if err != nil {
		return err
	}

	err = s.store.Atomic(ctx, func(tx store.Store) error {
		if err := tx.Messages().DeleteByConversation(ctx, conversationId); err != nil {
			return err
		}
		return tx.Conversations().Delete(ctx, conversationId)
	})
	if err != nil {
		log.CtxError(ctx, "delete conversation failed: conversation_id=%s, error=%v", conversationId, err)
		return storeErr(err)
	}

	if s.seq != nil {
		if err := s.seq.Release(ctx, conversationId); err != nil {
			log.CtxWarn(ctx, "release seq failed: conversation_id=%s, error=%v", conversationId, err)
		}
	}

	log.CtxInfo(ctx, "conversation deleted: conversation_id=%s, by=%s", conversationId, requestingUserId)
	s.notifier.Publish(ctx, entity.Change{
		Kind:           entity.ChangeConversationDeleted,
		ConversationId: conversationId,
		UserIds:        conv.ParticipantIds,
	})
	return nil
}

// loadParticipantConversation loads a conversation and checks that userId belongs to it
func loadParticipantConversation(ctx context.Context, st store.Store, conversationId, userId string) (*entity.Conversation, error) {
	if conversationId == "" {
		return nil, errcode.ErrInvalidParam
	}
	if userId == "" {
		return nil, errcode.ErrIdentityInvalid
	}
	conv, err := st.Conversations().Get(ctx, conversationId)
	if err != nil {
		log.CtxError(ctx, "get conversation failed: conversation_id=%s, error=%v", conversationId, err)
		return nil, errcode.ErrStoreUnavailable.Wrap(err)
	}
	if conv == nil {
		return nil, errcode.ErrConvNotFound
	}
	if !conv.HasParticipant(userId) {
		return nil, errcode.ErrNotParticipant
	}
	return conv, nil
}
