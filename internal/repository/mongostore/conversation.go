package mongostore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mbeoliero/unichat/internal/entity"
	"github.com/mbeoliero/unichat/pkg/errcode"
)

// ConversationStore keeps each conversation as one document keyed by its id
type ConversationStore struct {
	coll *mongo.Collection
}

// CreateIfAbsent inserts the document; a duplicate id means it already exists
func (s *ConversationStore) CreateIfAbsent(ctx context.Context, conv *entity.Conversation) (bool, error) {
	if _, err := s.coll.InsertOne(ctx, conv); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Get finds a conversation by id
func (s *ConversationStore) Get(ctx context.Context, conversationId string) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := s.coll.FindOne(ctx, bson.M{"_id": conversationId}).Decode(&conv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// ListByUser returns the user's conversations, most recently updated first
func (s *ConversationStore) ListByUser(ctx context.Context, userId string) ([]*entity.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := s.coll.Find(ctx, bson.M{"participant_ids": userId}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	convs := make([]*entity.Conversation, 0)
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// ApplyMessage sets the preview and increments unread counters in one update
func (s *ConversationStore) ApplyMessage(ctx context.Context, msg *entity.Message) error {
	conv, err := s.Get(ctx, msg.ConversationId)
	if err != nil {
		return err
	}
	if conv == nil {
		return errcode.ErrConvNotFound
	}

	inc := bson.M{}
	for _, uid := range conv.ParticipantIds {
		if uid != msg.SenderId {
			inc["unread_count."+uid] = 1
		}
	}
	update := bson.M{
		"$set": bson.M{
			"last_message": msg.ToLastMessage(),
			"updated_at":   msg.Timestamp,
		},
	}
	if len(inc) > 0 {
		update["$inc"] = inc
	}

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": msg.ConversationId}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return errcode.ErrConvNotFound
	}
	return nil
}

// ResetUnread zeroes one participant's counter if it is positive. A missing counter counts as zero.
func (s *ConversationStore) ResetUnread(ctx context.Context, conversationId, userId string) (bool, error) {
	field := "unread_count." + userId
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": conversationId, field: bson.M{"$gt": 0}},
		bson.M{"$set": bson.M{field: 0}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

// Delete removes the conversation document
func (s *ConversationStore) Delete(ctx context.Context, conversationId string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": conversationId})
	return err
}
