package mongostore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/mbeoliero/unichat/internal/entity"
)

// GetById reads a user profile from the users collection
func (s *Store) GetById(ctx context.Context, userId string) (*entity.User, error) {
	var user entity.User
	err := s.db.Collection(collUsers).FindOne(ctx, bson.M{"_id": userId}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}
