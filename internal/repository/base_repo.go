package repository

import (
	"context"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mbeoliero/unichat/internal/config"
	"github.com/mbeoliero/unichat/internal/entity"
	"github.com/mbeoliero/unichat/internal/store"
)

// Repositories holds the MySQL and Redis backed repositories
type Repositories struct {
	DB           *gorm.DB
	Redis        *redis.Client
	User         *UserRepo
	Message      *MessageRepo
	Conversation *ConversationRepo
	Seq          *SeqRepo
	Presence     *PresenceRepo
}

var _ store.Store = (*Repositories)(nil)

// NewRepositories creates all repositories
func NewRepositories(cfg *config.Config) (*Repositories, error) {
	db, err := initMySQL(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.MySQL.AutoMigrate {
		if err := AutoMigrate(db); err != nil {
			return nil, err
		}
	}

	return newRepositories(db, NewRedisClient(cfg)), nil
}

func newRepositories(db *gorm.DB, rdb *redis.Client) *Repositories {
	return &Repositories{
		DB:           db,
		Redis:        rdb,
		User:         NewUserRepo(db),
		Message:      NewMessageRepo(db),
		Conversation: NewConversationRepo(db),
		Seq:          NewSeqRepo(rdb),
		Presence:     NewPresenceRepo(rdb),
	}
}

// initMySQL initializes MySQL connection
func initMySQL(cfg *config.Config) (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if cfg.Server.Mode == "debug" {
		logLevel = logger.Info
	} else {
		logLevel = logger.Warn
	}

	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// NewRedisClient initializes a Redis client
func NewRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// AutoMigrate creates or updates the chat tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.User{},
		&entity.ConversationRow{},
		&entity.ConversationMember{},
		&entity.Message{},
	)
}

// Conversations returns the conversation store
func (r *Repositories) Conversations() store.ConversationStore { return r.Conversation }

// Messages returns the message store
func (r *Repositories) Messages() store.MessageStore { return r.Message }

// Atomic executes fn in a MySQL transaction
func (r *Repositories) Atomic(ctx context.Context, fn func(tx store.Store) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newRepositories(tx, r.Redis))
	})
}

// Close closes all connections
func (r *Repositories) Close() error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return err
	}
	return r.Redis.Close()
}

// Ping checks if database and redis connections are alive
func (r *Repositories) Ping(ctx context.Context) error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		log.CtxError(ctx, "mysql ping failed: %v", err)
		return err
	}

	if err := r.Redis.Ping(ctx).Err(); err != nil {
		log.CtxError(ctx, "redis ping failed: %v", err)
		return err
	}

	return nil
}
