package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mbeoliero/unichat/internal/entity"
)

// MessageStore keeps messages in a flat collection indexed by conversation
type MessageStore struct {
	coll *mongo.Collection
}

// Create inserts a message
func (s *MessageStore) Create(ctx context.Context, msg *entity.Message) error {
	_, err := s.coll.InsertOne(ctx, msg)
	return err
}

// ListByConversation returns all messages ordered by (timestamp, seq)
func (s *MessageStore) ListByConversation(ctx context.Context, conversationId string) ([]*entity.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "seq", Value: 1}})
	return s.find(ctx, conversationId, opts)
}

// Recent returns the newest limit messages, oldest first
func (s *MessageStore) Recent(ctx context.Context, conversationId string, limit int) ([]*entity.Message, error) {
	if limit <= 0 {
		return s.ListByConversation(ctx, conversationId)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "seq", Value: -1}}).
		SetLimit(int64(limit))
	messages, err := s.find(ctx, conversationId, opts)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *MessageStore) find(ctx context.Context, conversationId string, opts *options.FindOptionsBuilder) ([]*entity.Message, error) {
	cursor, err := s.coll.Find(ctx, bson.M{"conversation_id": conversationId}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	messages := make([]*entity.Message, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkRead adds readerId to every message's read_by set
func (s *MessageStore) MarkRead(ctx context.Context, conversationId, readerId string) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"conversation_id": conversationId, "read_by": bson.M{"$ne": readerId}},
		bson.M{"$addToSet": bson.M{"read_by": readerId}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// DeleteByConversation removes every message of a conversation
func (s *MessageStore) DeleteByConversation(ctx context.Context, conversationId string) error {
	_, err := s.coll.DeleteMany(ctx, bson.M{"conversation_id": conversationId})
	return err
}
