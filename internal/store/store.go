// Package store declares the persistence contracts shared by the mysql, mongo and memory drivers.
//
// Lookups return (nil, nil) when the record does not exist.
package store

import (
	"context"

	"github.com/mbeoliero/unichat/internal/entity"
)

// Store groups the conversation and message collections
type Store interface {
	Conversations() ConversationStore
	Messages() MessageStore
	// Atomic runs fn against a Store bound to one unit of work. Drivers without
	// multi-document transactions run fn directly.
	Atomic(ctx context.Context, fn func(tx Store) error) error
}

// ConversationStore persists conversation aggregates
type ConversationStore interface {
	// CreateIfAbsent inserts conv unless a conversation with the same id exists.
	CreateIfAbsent(ctx context.Context, conv *entity.Conversation) (created bool, err error)
	Get(ctx context.Context, conversationId string) (*entity.Conversation, error)
	// ListByUser returns the user's conversations, most recently updated first.
	ListByUser(ctx context.Context, userId string) ([]*entity.Conversation, error)
	// ApplyMessage sets the last message preview, bumps updatedAt and
	// increments the unread count of every participant except the sender.
	ApplyMessage(ctx context.Context, msg *entity.Message) error
	ResetUnread(ctx context.Context, conversationId, userId string) (changed bool, err error)
	Delete(ctx context.Context, conversationId string) error
}

// MessageStore persists messages
type MessageStore interface {
	Create(ctx context.Context, msg *entity.Message) error
	// ListByConversation returns every message ordered by (timestamp, seq).
	ListByConversation(ctx context.Context, conversationId string) ([]*entity.Message, error)
	// Recent returns the last limit messages, oldest first.
	Recent(ctx context.Context, conversationId string, limit int) ([]*entity.Message, error)
	// MarkRead adds readerId to readBy of every message lacking it.
	MarkRead(ctx context.Context, conversationId, readerId string) (updated int64, err error)
	DeleteByConversation(ctx context.Context, conversationId string) error
}

// SeqAllocator hands out per-conversation sequence numbers
type SeqAllocator interface {
	AllocSeq(ctx context.Context, conversationId string) (int64, error)
	Release(ctx context.Context, conversationId string) error
}

// PresenceStore persists presence records
type PresenceStore interface {
	Upsert(ctx context.Context, p *entity.Presence) error
	Get(ctx context.Context, userId string) (*entity.Presence, error)
}

// UserStore reads human user profiles
type UserStore interface {
	GetById(ctx context.Context, userId string) (*entity.User, error)
}

// Pinger reports backend health
type Pinger interface {
	Ping(ctx context.Context) error
}
