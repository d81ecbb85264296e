package service

import (
	"context"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/unichat/internal/entity"
	"github.com/mbeoliero/unichat/internal/store"
	"github.com/mbeoliero/unichat/pkg/errcode"
)

// IdentityProvider resolves a participant id to its display identity
type IdentityProvider interface {
	Resolve(ctx context.Context, userId string) (*entity.UserInfo, error)
}

// PersonaDirectory looks up AI personas by character id
type PersonaDirectory interface {
	LookupPersona(characterId string) (name, avatar string, ok bool)
}

// IdentityService resolves humans from the user store and AI personas from the persona directory
type IdentityService struct {
	users    store.UserStore
	personas PersonaDirectory
}

// NewIdentityService creates a new IdentityService
func NewIdentityService(users store.UserStore, personas PersonaDirectory) *IdentityService {
	return &IdentityService{
		users:    users,
		personas: personas,
	}
}

// Resolve gets the display identity of a participant
func (s *IdentityService) Resolve(ctx context.Context, userId string) (*entity.UserInfo, error) {
	if userId == "" {
		return nil, errcode.ErrIdentityInvalid
	}

	if entity.IsAIParticipant(userId) {
		characterId := entity.PersonaIdOf(userId)
		info := &entity.UserInfo{Id: userId, DisplayName: characterId, IsAI: true}
		if s.personas != nil {
			if name, avatar, ok := s.personas.LookupPersona(characterId); ok {
				info.DisplayName = name
				info.AvatarUrl = avatar
			}
		}
		return info, nil
	}

	if s.users == nil {
		return nil, errcode.ErrUserNotFound
	}
	user, err := s.users.GetById(ctx, userId)
	if err != nil {
		log.CtxError(ctx, "get user failed: user_id=%s, error=%v", userId, err)
		return nil, errcode.ErrStoreUnavailable.Wrap(err)
	}
	if user == nil {
		return nil, errcode.ErrUserNotFound
	}
	return user.ToUserInfo(), nil
}
