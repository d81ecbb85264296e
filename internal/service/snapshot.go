package service

import (
	"context"

	"github.com/mbeoliero/unichat/internal/entity"
	"github.com/mbeoliero/unichat/internal/store"
)

// SnapshotLoader re-reads the current result set of a live query.
// Errors are returned raw; the fan-out hub logs and counts them.
type SnapshotLoader struct {
	store    store.Store
	presence *PresenceService
}

// NewSnapshotLoader creates a new SnapshotLoader
func NewSnapshotLoader(st store.Store, presence *PresenceService) *SnapshotLoader {
	return &SnapshotLoader{store: st, presence: presence}
}

// LoadMessages returns every message of the conversation ordered by (timestamp, seq)
func (l *SnapshotLoader) LoadMessages(ctx context.Context, conversationId string) ([]*entity.Message, error) {
	return l.store.Messages().ListByConversation(ctx, conversationId)
}

// LoadConversations returns the user's conversations, most recently updated first
func (l *SnapshotLoader) LoadConversations(ctx context.Context, userId string) ([]*entity.Conversation, error) {
	return l.store.Conversations().ListByUser(ctx, userId)
}

// LoadPresence returns the user's effective presence
func (l *SnapshotLoader) LoadPresence(ctx context.Context, userId string) (*entity.Presence, error) {
	return l.presence.GetUserOnlineStatus(ctx, userId)
}
