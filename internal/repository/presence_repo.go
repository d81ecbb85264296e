package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/unichat/internal/entity"
	"github.com/mbeoliero/unichat/pkg/constant"
)

const (
	presenceFieldOnline   = "online"
	presenceFieldLastSeen = "last_seen"
)

// PresenceRepo keeps one Redis hash per user: online flag and last_seen millis
type PresenceRepo struct {
	rdb *redis.Client
}

// NewPresenceRepo creates a new PresenceRepo
func NewPresenceRepo(rdb *redis.Client) *PresenceRepo {
	return &PresenceRepo{rdb: rdb}
}

// Upsert overwrites the user's record
func (r *PresenceRepo) Upsert(ctx context.Context, p *entity.Presence) error {
	key := fmt.Sprintf(constant.RedisKeyPresence(), p.UserId)
	online := "0"
	if p.IsOnline {
		online = "1"
	}
	return r.rdb.HSet(ctx, key, presenceFieldOnline, online, presenceFieldLastSeen, p.LastSeen).Err()
}

// Get reads the user's record, nil when the user was never seen
func (r *PresenceRepo) Get(ctx context.Context, userId string) (*entity.Presence, error) {
	key := fmt.Sprintf(constant.RedisKeyPresence(), userId)
	fields, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	lastSeen, err := strconv.ParseInt(fields[presenceFieldLastSeen], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid presence last_seen for %s: %w", userId, err)
	}
	return &entity.Presence{
		UserId:   userId,
		IsOnline: fields[presenceFieldOnline] == "1",
		LastSeen: lastSeen,
	}, nil
}
