package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers
const (
	DriverMySQL  = "mysql"
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Config holds all configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Store        StoreConfig        `mapstructure:"store"`
	MySQL        MySQLConfig        `mapstructure:"mysql"`
	Mongo        MongoConfig        `mapstructure:"mongo"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	ExternalJWT  ExternalJWTConfig  `mapstructure:"external_jwt"`
	WebSocket    WebSocketConfig    `mapstructure:"websocket"`
	Subscription SubscriptionConfig `mapstructure:"subscription"`
	Presence     PresenceConfig     `mapstructure:"presence"`
	Chat         ChatConfig         `mapstructure:"chat"`
	AI           AIConfig           `mapstructure:"ai"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	HTTPPort       int      `mapstructure:"http_port"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MachineId      uint16   `mapstructure:"machine_id"`
}

// StoreConfig selects the persistent conversation store
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	// Relay fans changes out through redis pub/sub so every instance sees them.
	Relay bool `mapstructure:"relay"`
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	Charset      string `mapstructure:"charset"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

// DSN returns the MySQL data source name
func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database, c.Charset)
}

// MongoConfig holds MongoDB configuration
type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	KeyPrefix     string `mapstructure:"key_prefix"`
	ChangeChannel string `mapstructure:"change_channel"`
}

// Addr returns the Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// ExternalJWTConfig configures tokens issued by the platform's identity provider
type ExternalJWTConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Secret            string `mapstructure:"secret"`
	DefaultPlatformId int    `mapstructure:"default_platform_id"`
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	MaxConnNum       int64         `mapstructure:"max_conn_num"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	PushChannelSize  int           `mapstructure:"push_channel_size"`
	PushWorkerNum    int           `mapstructure:"push_worker_num"`
	WriteChannelSize int           `mapstructure:"write_channel_size"`
}

// SubscriptionConfig holds live subscription fan-out configuration
type SubscriptionConfig struct {
	WorkerNum     int           `mapstructure:"worker_num"`
	LoadTimeout   time.Duration `mapstructure:"load_timeout"`
	WarmupTimeout time.Duration `mapstructure:"warmup_timeout"`
}

// PresenceConfig holds presence tracker configuration
type PresenceConfig struct {
	// StaleAfter reports an online record as offline once lastSeen is older. Zero disables.
	StaleAfter        time.Duration `mapstructure:"stale_after"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// ChatConfig holds message channel limits
type ChatConfig struct {
	MaxContentLength  int `mapstructure:"max_content_length"`
	SendRatePerMinute int `mapstructure:"send_rate_per_minute"`
	SendBurst         int `mapstructure:"send_burst"`
}

// AIConfig holds AI reply orchestrator configuration
type AIConfig struct {
	Enabled       bool            `mapstructure:"enabled"`
	APIKey        string          `mapstructure:"api_key"`
	BaseURL       string          `mapstructure:"base_url"`
	Model         string          `mapstructure:"model"`
	MaxTokens     int             `mapstructure:"max_tokens"`
	Timeout       time.Duration   `mapstructure:"timeout"`
	MinTyping     time.Duration   `mapstructure:"min_typing"`
	MaxConcurrent int             `mapstructure:"max_concurrent"`
	HistoryLimit  int             `mapstructure:"history_limit"`
	Personas      []PersonaConfig `mapstructure:"personas"`
}

// PersonaConfig describes one AI character
type PersonaConfig struct {
	Id           string `mapstructure:"id"`
	Name         string `mapstructure:"name"`
	Avatar       string `mapstructure:"avatar"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

// Global config instance
var GlobalConfig *Config

// Load loads configuration from file. Environment variables prefixed with
// UNICHAT_ override file values, e.g. UNICHAT_AI_API_KEY.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("UNICHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	GlobalConfig = &cfg
	return &cfg, nil
}

// Default returns a config with every default applied and the in-memory store.
func Default() *Config {
	cfg := &Config{Store: StoreConfig{Driver: DriverMemory}}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero values
func ApplyDefaults(cfg *Config) {
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Server.MachineId == 0 {
		cfg.Server.MachineId = 1
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DriverMySQL
	}
	if cfg.MySQL.Charset == "" {
		cfg.MySQL.Charset = "utf8mb4"
	}
	if cfg.MySQL.MaxOpenConns == 0 {
		cfg.MySQL.MaxOpenConns = 100
	}
	if cfg.MySQL.MaxIdleConns == 0 {
		cfg.MySQL.MaxIdleConns = 10
	}
	if cfg.Mongo.Database == "" {
		cfg.Mongo.Database = "unichat"
	}
	if cfg.Mongo.ConnectTimeout == 0 {
		cfg.Mongo.ConnectTimeout = 10 * time.Second
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "unichat:"
	}
	if cfg.Redis.ChangeChannel == "" {
		cfg.Redis.ChangeChannel = "changes"
	}
	if cfg.JWT.ExpireHours == 0 {
		cfg.JWT.ExpireHours = 168 // 7 days
	}
	if cfg.WebSocket.MaxConnNum == 0 {
		cfg.WebSocket.MaxConnNum = 10000
	}
	if cfg.WebSocket.MaxMessageSize == 0 {
		cfg.WebSocket.MaxMessageSize = 51200
	}
	if cfg.WebSocket.WriteWait == 0 {
		cfg.WebSocket.WriteWait = 10 * time.Second
	}
	if cfg.WebSocket.PongWait == 0 {
		cfg.WebSocket.PongWait = 30 * time.Second
	}
	if cfg.WebSocket.PingPeriod == 0 {
		cfg.WebSocket.PingPeriod = cfg.WebSocket.PongWait * 9 / 10
	}
	if cfg.WebSocket.PushChannelSize == 0 {
		cfg.WebSocket.PushChannelSize = 10000
	}
	if cfg.WebSocket.PushWorkerNum == 0 {
		cfg.WebSocket.PushWorkerNum = 10
	}
	if cfg.WebSocket.WriteChannelSize == 0 {
		cfg.WebSocket.WriteChannelSize = 256
	}
	if cfg.Subscription.WorkerNum == 0 {
		cfg.Subscription.WorkerNum = 8
	}
	if cfg.Subscription.LoadTimeout == 0 {
		cfg.Subscription.LoadTimeout = 5 * time.Second
	}
	if cfg.Subscription.WarmupTimeout == 0 {
		cfg.Subscription.WarmupTimeout = 10 * time.Second
	}
	if cfg.Presence.HeartbeatInterval == 0 {
		cfg.Presence.HeartbeatInterval = 30 * time.Second
	}
	if cfg.Chat.MaxContentLength == 0 {
		cfg.Chat.MaxContentLength = 4000
	}
	if cfg.Chat.SendRatePerMinute == 0 {
		cfg.Chat.SendRatePerMinute = 120
	}
	if cfg.Chat.SendBurst == 0 {
		cfg.Chat.SendBurst = 20
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "gpt-4o-mini"
	}
	if cfg.AI.MaxTokens == 0 {
		cfg.AI.MaxTokens = 512
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 60 * time.Second
	}
	if cfg.AI.MinTyping == 0 {
		cfg.AI.MinTyping = 2 * time.Second
	}
	if cfg.AI.MaxConcurrent == 0 {
		cfg.AI.MaxConcurrent = 32
	}
	if cfg.AI.HistoryLimit == 0 {
		cfg.AI.HistoryLimit = 20
	}
}

// Validate checks settings that have no sensible default
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMySQL, DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("unknown store driver: %q", c.Store.Driver)
	}
	if c.Store.Driver == DriverMongo && c.Mongo.URI == "" {
		return fmt.Errorf("mongo.uri is required for the mongo store driver")
	}
	if c.Store.Relay && c.Store.Driver == DriverMemory {
		return fmt.Errorf("store.relay needs redis and cannot be used with the memory driver")
	}
	if c.AI.Enabled && c.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key is required when ai.enabled is set")
	}
	return nil
}
