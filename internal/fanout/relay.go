package fanout

import (
	"context"
	"encoding/json"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/unichat/internal/entity"
)

// Publisher accepts change notifications
type Publisher interface {
	Publish(ctx context.Context, change entity.Change)
}

// RedisRelay broadcasts changes over a redis channel so every instance's hub
// sees writes made on any instance. Changes are forwarded only after they
// come back from redis, including those published locally.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	local   Publisher
}

// NewRedisRelay creates a relay that forwards received changes to local
func NewRedisRelay(rdb *redis.Client, channel string, local Publisher) *RedisRelay {
	return &RedisRelay{
		rdb:     rdb,
		channel: channel,
		local:   local,
	}
}

// Publish sends the change to the channel. If redis is unreachable the change
// is delivered locally so this instance's viewers still refresh.
func (r *RedisRelay) Publish(ctx context.Context, change entity.Change) {
	data, err := json.Marshal(change)
	if err != nil {
		log.CtxError(ctx, "marshal change failed: kind=%s, error=%v", change.Kind, err)
		return
	}
	if err := r.rdb.Publish(ctx, r.channel, data).Err(); err != nil {
		log.CtxWarn(ctx, "relay publish failed, delivering locally: kind=%s, error=%v", change.Kind, err)
		r.local.Publish(ctx, change)
	}
}

// Run subscribes to the channel and forwards every change until ctx is done
func (r *RedisRelay) Run(ctx context.Context) {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	log.CtxInfo(ctx, "change relay subscribed: channel=%s", r.channel)
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var change entity.Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				log.CtxWarn(ctx, "drop malformed change: payload=%s, error=%v", msg.Payload, err)
				continue
			}
			r.local.Publish(ctx, change)
		}
	}
}
