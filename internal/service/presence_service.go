package service

import (
	"context"
	"time"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/unichat/internal/entity"
	"github.com/mbeoliero/unichat/internal/store"
	"github.com/mbeoliero/unichat/pkg/errcode"
)

// PresenceService tracks who is online. Writes are last-write-wins.
type PresenceService struct {
	store      store.PresenceStore
	notifier   Notifier
	staleAfter time.Duration
	now        func() time.Time
}

// NewPresenceService creates a new PresenceService. A positive staleAfter reports
// online records without a recent heartbeat as offline.
func NewPresenceService(st store.PresenceStore, staleAfter time.Duration) *PresenceService {
	return &PresenceService{
		store:      st,
		notifier:   nopNotifier{},
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// SetNotifier sets the change notifier
func (s *PresenceService) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}

// UpdateUserOnlineStatus records the user's online state with lastSeen = now
func (s *PresenceService) UpdateUserOnlineStatus(ctx context.Context, userId string, isOnline bool) error {
	if userId == "" {
		return errcode.ErrIdentityInvalid
	}
	p := &entity.Presence{
		UserId:   userId,
		IsOnline: isOnline,
		LastSeen: s.now().UnixMilli(),
	}
	if err := s.store.Upsert(ctx, p); err != nil {
		log.CtxError(ctx, "update presence failed: user_id=%s, error=%v", userId, err)
		return errcode.ErrStoreUnavailable.Wrap(err)
	}

	log.CtxDebug(ctx, "presence updated: user_id=%s, online=%v", userId, isOnline)
	s.publish(ctx, userId)
	return nil
}

// GetUserOnlineStatus returns the user's presence; a user never seen is offline
func (s *PresenceService) GetUserOnlineStatus(ctx context.Context, userId string) (*entity.Presence, error) {
	if userId == "" {
		return nil, errcode.ErrIdentityInvalid
	}
	p, err := s.store.Get(ctx, userId)
	if err != nil {
		log.CtxError(ctx, "get presence failed: user_id=%s, error=%v", userId, err)
		return nil, errcode.ErrStoreUnavailable.Wrap(err)
	}
	if p == nil {
		return &entity.Presence{UserId: userId}, nil
	}
	if p.IsOnline && s.isStale(p) {
		p.IsOnline = false
	}
	return p, nil
}

// Heartbeat refreshes lastSeen of an online user. Subscribers are notified only
// when the effective state flips from offline to online.
func (s *PresenceService) Heartbeat(ctx context.Context, userId string) error {
	prev, err := s.GetUserOnlineStatus(ctx, userId)
	if err != nil {
		return err
	}

	p := &entity.Presence{
		UserId:   userId,
		IsOnline: true,
		LastSeen: s.now().UnixMilli(),
	}
	if err := s.store.Upsert(ctx, p); err != nil {
		log.CtxError(ctx, "heartbeat failed: user_id=%s, error=%v", userId, err)
		return errcode.ErrStoreUnavailable.Wrap(err)
	}

	if !prev.IsOnline {
		s.publish(ctx, userId)
	}
	return nil
}

func (s *PresenceService) isStale(p *entity.Presence) bool {
	if s.staleAfter <= 0 {
		return false
	}
	return s.now().Sub(time.UnixMilli(p.LastSeen)) > s.staleAfter
}

func (s *PresenceService) publish(ctx context.Context, userId string) {
	s.notifier.Publish(ctx, entity.Change{
		Kind:    entity.ChangePresence,
		UserIds: []string{userId},
	})
}
