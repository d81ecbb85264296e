package repository

import (
	"context"
	"fmt"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/unichat/internal/config"
	"github.com/mbeoliero/unichat/internal/repository/memstore"
	"github.com/mbeoliero/unichat/internal/repository/mongostore"
	"github.com/mbeoliero/unichat/internal/store"
)

// Backend bundles everything the services need from persistence
type Backend struct {
	Store    store.Store
	Users    store.UserStore
	Seq      store.SeqAllocator
	Presence store.PresenceStore
	// Redis is nil for the memory driver
	Redis *redis.Client

	pingers []store.Pinger
	closers []func() error
}

// Open builds the backend selected by cfg.Store.Driver
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.Store.Driver {
	case config.DriverMySQL:
		repos, err := NewRepositories(cfg)
		if err != nil {
			return nil, fmt.Errorf("open mysql store: %w", err)
		}
		return &Backend{
			Store:    repos,
			Users:    repos.User,
			Seq:      repos.Seq,
			Presence: repos.Presence,
			Redis:    repos.Redis,
			pingers:  []store.Pinger{repos},
			closers:  []func() error{repos.Close},
		}, nil

	case config.DriverMongo:
		ms, err := mongostore.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("open mongo store: %w", err)
		}
		if err := ms.CreateIndexes(ctx); err != nil {
			log.CtxWarn(ctx, "mongo index creation failed: %v", err)
		}
		rdb := NewRedisClient(cfg)
		return &Backend{
			Store:    ms,
			Users:    ms,
			Seq:      NewSeqRepo(rdb),
			Presence: NewPresenceRepo(rdb),
			Redis:    rdb,
			pingers:  []store.Pinger{ms, redisPinger{rdb}},
			closers: []func() error{
				func() error { return ms.Close(context.Background()) },
				rdb.Close,
			},
		}, nil

	case config.DriverMemory:
		mem := memstore.New()
		return &Backend{
			Store:    mem,
			Users:    mem,
			Seq:      mem,
			Presence: mem.Presence(),
			pingers:  []store.Pinger{mem},
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver: %q", cfg.Store.Driver)
	}
}

// Ping checks every underlying connection
func (b *Backend) Ping(ctx context.Context) error {
	for _, p := range b.pingers {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases every underlying connection
func (b *Backend) Close() error {
	var firstErr error
	for _, c := range b.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type redisPinger struct {
	rdb *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}
