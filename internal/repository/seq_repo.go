package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/unichat/pkg/constant"
)

// SeqRepo allocates per-conversation sequence numbers in Redis
type SeqRepo struct {
	rdb *redis.Client
}

// NewSeqRepo creates a new SeqRepo
func NewSeqRepo(rdb *redis.Client) *SeqRepo {
	return &SeqRepo{rdb: rdb}
}

// AllocSeq allocates a new sequence number for a conversation using Redis INCR
func (r *SeqRepo) AllocSeq(ctx context.Context, conversationId string) (int64, error) {
	key := fmt.Sprintf(constant.RedisKeySeqConversation(), conversationId)
	seq, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// Release drops the counter of a deleted conversation
func (r *SeqRepo) Release(ctx context.Context, conversationId string) error {
	key := fmt.Sprintf(constant.RedisKeySeqConversation(), conversationId)
	return r.rdb.Del(ctx, key).Err()
}
