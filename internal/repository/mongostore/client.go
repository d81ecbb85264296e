// Package mongostore implements the store contracts on MongoDB.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/mbeoliero/unichat/internal/store"
)

const (
	collConversations = "conversations"
	collMessages      = "messages"
	collUsers         = "users"
)

// Store wraps a mongo.Client and exposes the chat collections
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var (
	_ store.Store     = (*Store)(nil)
	_ store.UserStore = (*Store)(nil)
	_ store.Pinger    = (*Store)(nil)
)

// New connects to MongoDB and verifies the connection with a ping
func New(ctx context.Context, uri, database string, connectTimeout time.Duration) (*Store, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(connectTimeout)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Store{client: client, db: client.Database(database)}, nil
}

// Conversations returns the conversation store
func (s *Store) Conversations() store.ConversationStore {
	return &ConversationStore{coll: s.db.Collection(collConversations)}
}

// Messages returns the message store
func (s *Store) Messages() store.MessageStore {
	return &MessageStore{coll: s.db.Collection(collMessages)}
}

// Atomic runs fn directly. Each write touches a single document or uses an
// idempotent multi-document update, so partial failure leaves readable state.
func (s *Store) Atomic(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Ping checks the primary
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects from MongoDB
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// CreateIndexes creates the indexes the queries rely on
func (s *Store) CreateIndexes(ctx context.Context) error {
	_, err := s.db.Collection(collConversations).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "participant_ids", Value: 1}, {Key: "updated_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create conversation indexes: %w", err)
	}

	_, err = s.db.Collection(collMessages).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "timestamp", Value: 1}, {Key: "seq", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}
	return nil
}
