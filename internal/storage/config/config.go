package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v6"
)

// MongoConfig holds the remote document store settings.
type MongoConfig struct {
	URI          string `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017"`
	DatabaseName string `env:"MONGODB_DATABASE" envDefault:"role_reactor_bot"`

	// Pool bounds: a small minimum keeps idle cost low.
	MaxPoolSize uint64        `env:"MONGODB_MAX_POOL_SIZE" envDefault:"20"`
	MinPoolSize uint64        `env:"MONGODB_MIN_POOL_SIZE" envDefault:"2"`
	MaxIdleTime time.Duration `env:"MONGODB_MAX_IDLE_TIME" envDefault:"30s"`

	ServerSelectionTimeout time.Duration `env:"MONGODB_SERVER_SELECTION_TIMEOUT" envDefault:"15s"`
	DialTimeout            time.Duration `env:"MONGODB_DIAL_TIMEOUT" envDefault:"15s"`
	SocketTimeout          time.Duration `env:"MONGODB_SOCKET_TIMEOUT" envDefault:"45s"`
	HeartbeatInterval      time.Duration `env:"MONGODB_HEARTBEAT_INTERVAL" envDefault:"10s"`

	// ConnectTimeout bounds a whole connect attempt (dial + first ping).
	ConnectTimeout       time.Duration `env:"MONGODB_CONNECT_TIMEOUT" envDefault:"30s"`
	MaxReconnectAttempts int           `env:"MONGODB_MAX_RECONNECT_ATTEMPTS" envDefault:"5"`
	ReconnectBaseDelay   time.Duration `env:"MONGODB_RECONNECT_BASE_DELAY" envDefault:"2s"`
	ReconnectMaxDelay    time.Duration `env:"MONGODB_RECONNECT_MAX_DELAY" envDefault:"60s"`
	HealthCheckInterval  time.Duration `env:"MONGODB_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
	PingTimeout          time.Duration `env:"MONGODB_PING_TIMEOUT" envDefault:"5s"`
}

// CacheConfig configures one in-process cache.
type CacheConfig struct {
	TTL             time.Duration
	MaxSize         int
	CleanupInterval time.Duration
}

// CachesConfig holds both cache tiers.
type CachesConfig struct {
	ObjectTTL           time.Duration `env:"CACHE_OBJECT_TTL" envDefault:"5m"`
	ObjectMaxSize       int           `env:"CACHE_OBJECT_MAX_SIZE" envDefault:"1000"`
	QueryTTL            time.Duration `env:"CACHE_QUERY_TTL" envDefault:"2m"`
	QueryMaxSize        int           `env:"CACHE_QUERY_MAX_SIZE" envDefault:"500"`
	CleanupInterval     time.Duration `env:"CACHE_CLEANUP_INTERVAL" envDefault:"1m"`
	InvalidationChannel string        `env:"CACHE_INVALIDATION_CHANNEL" envDefault:"role-reactor:cache-invalidation"`
}

// Object returns the object cache settings
func (c CachesConfig) Object() CacheConfig {
	return CacheConfig{TTL: c.ObjectTTL, MaxSize: c.ObjectMaxSize, CleanupInterval: c.CleanupInterval}
}

// Query returns the query cache settings
func (c CachesConfig) Query() CacheConfig {
	return CacheConfig{TTL: c.QueryTTL, MaxSize: c.QueryMaxSize, CleanupInterval: c.CleanupInterval}
}

// FileStoreConfig configures the local fallback store.
type FileStoreConfig struct {
	DataDir string `env:"STORAGE_DATA_DIR" envDefault:"./data"`
}

// StorageConfig is the full configuration of the persistent state layer.
type StorageConfig struct {
	Mongo     MongoConfig
	Caches    CachesConfig
	FileStore FileStoreConfig
	Redis     RedisConfig
}

// LoadConfig loads configuration from environment variables and applies defaults.
func LoadConfig() (*StorageConfig, error) {
	cfg := &StorageConfig{}

	if err := env.Parse(&cfg.Mongo); err != nil {
		return nil, errors.New("failed to load mongo configuration from environment: " + err.Error())
	}
	if err := env.Parse(&cfg.Caches); err != nil {
		return nil, errors.New("failed to load cache configuration from environment: " + err.Error())
	}
	if err := env.Parse(&cfg.FileStore); err != nil {
		return nil, errors.New("failed to load file store configuration from environment: " + err.Error())
	}
	if err := env.Parse(&cfg.Redis); err != nil {
		return nil, errors.New("failed to load redis configuration from environment: " + err.Error())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that would make the retry or cache logic meaningless.
func (c *StorageConfig) Validate() error {
	if c.Mongo.URI == "" {
		return errors.New("MONGODB_URI must not be empty")
	}
	if c.Mongo.MaxReconnectAttempts <= 0 {
		return errors.New("MONGODB_MAX_RECONNECT_ATTEMPTS must be positive")
	}
	if c.Mongo.MinPoolSize > c.Mongo.MaxPoolSize {
		return errors.New("MONGODB_MIN_POOL_SIZE exceeds MONGODB_MAX_POOL_SIZE")
	}
	if c.Caches.ObjectMaxSize <= 0 || c.Caches.QueryMaxSize <= 0 {
		return errors.New("cache sizes must be positive")
	}
	if c.FileStore.DataDir == "" {
		return errors.New("STORAGE_DATA_DIR must not be empty")
	}
	return nil
}

// DefaultStorageConfig returns a StorageConfig with default values.
func DefaultStorageConfig() *StorageConfig {
	return &StorageConfig{
		Mongo: MongoConfig{
			URI:                    "mongodb://localhost:27017",
			DatabaseName:           "role_reactor_bot",
			MaxPoolSize:            20,
			MinPoolSize:            2,
			MaxIdleTime:            30 * time.Second,
			ServerSelectionTimeout: 15 * time.Second,
			DialTimeout:            15 * time.Second,
			SocketTimeout:          45 * time.Second,
			HeartbeatInterval:      10 * time.Second,
			ConnectTimeout:         30 * time.Second,
			MaxReconnectAttempts:   5,
			ReconnectBaseDelay:     2 * time.Second,
			ReconnectMaxDelay:      60 * time.Second,
			HealthCheckInterval:    30 * time.Second,
			PingTimeout:            5 * time.Second,
		},
		Caches: CachesConfig{
			ObjectTTL:           5 * time.Minute,
			ObjectMaxSize:       1000,
			QueryTTL:            2 * time.Minute,
			QueryMaxSize:        500,
			CleanupInterval:     time.Minute,
			InvalidationChannel: "role-reactor:cache-invalidation",
		},
		FileStore: FileStoreConfig{DataDir: "./data"},
		Redis: RedisConfig{
			Port:            "6379",
			MaxRetries:      3,
			PoolSize:        10,
			MinIdleConns:    2,
			ConnMaxIdleTime: "30m",
			ConnMaxLifetime: "1h",
		},
	}
}
