// Package storage is the single entry point to the bot's persistent state.
// Callers ask StorageModule for a repository and get the mongo-backed one
// while the connection is healthy, or the local file store otherwise.
package storage

import (
	"context"
	"sync"

	apperrors "github.com/qodinger/role-reactor-bot-sub005/internal/shared/errors"
	"github.com/qodinger/role-reactor-bot-sub005/internal/shared/logger"
	"github.com/qodinger/role-reactor-bot-sub005/internal/shared/metrics"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/adapter/persistence"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/adapter/persistence/filestore"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/adapter/persistence/mongodb"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/cache"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/config"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/domain/model"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/domain/repository"

	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
)

// StorageModule owns the caches, the connection manager, both repository sets
// and the optional invalidation bus. Build one per process.
type StorageModule struct {
	Config      *config.StorageConfig
	Logger      logger.Logger
	Metrics     *metrics.Collector
	ObjectCache *cache.ObjectCache
	QueryCache  *cache.QueryCache
	FileStore   *filestore.Store
	Connection  *mongodb.ConnectionManager

	// Redis components for cross-shard cache invalidation; nil when REDIS_HOST is unset
	RedisClient     *redis.Client
	InvalidationBus *persistence.CacheInvalidationBus

	fallback *repository.Repositories
	repoOpts []mongodb.RepositoryOption

	mu        sync.RWMutex
	remote    *repository.Repositories
	remoteDB  mongodb.DatabaseInterface
	closeOnce sync.Once
}

// Option customises a StorageModule.
type Option func(*moduleOptions)

type moduleOptions struct {
	metrics     *metrics.Collector
	managerOpts []mongodb.ManagerOption
	repoOpts    []mongodb.RepositoryOption
	fileOpts    []filestore.Option
}

// WithMetrics records every component's metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *moduleOptions) { o.metrics = c }
}

// WithConnectionOptions passes options through to the connection manager.
func WithConnectionOptions(opts ...mongodb.ManagerOption) Option {
	return func(o *moduleOptions) { o.managerOpts = append(o.managerOpts, opts...) }
}

// WithRepositoryOptions passes options through to the mongo repositories.
func WithRepositoryOptions(opts ...mongodb.RepositoryOption) Option {
	return func(o *moduleOptions) { o.repoOpts = append(o.repoOpts, opts...) }
}

// WithFileStoreOptions passes options through to the fallback store.
func WithFileStoreOptions(opts ...filestore.Option) Option {
	return func(o *moduleOptions) { o.fileOpts = append(o.fileOpts, opts...) }
}

// NewStorageModule wires the storage layer. It does no network I/O: the
// database is dialled on the first DatabaseManager call and redis on Start.
func NewStorageModule(cfg *config.StorageConfig, log logger.Logger, opts ...Option) (*StorageModule, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if cfg == nil {
		cfg = config.DefaultStorageConfig()
		log.Info("No storage configuration provided, using defaults.")
	}
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.NewValidationError("invalid storage configuration").WithCause(err)
	}

	o := &moduleOptions{}
	for _, opt := range opts {
		opt(o)
	}
	log = log.WithComponent("storage")
	log.Info("Initializing storage module...")

	objects := cache.NewObjectCache(cfg.Caches.Object(), cache.WithMetrics(o.metrics))
	queries := cache.NewQueryCache(cfg.Caches.Query(), cache.WithMetrics(o.metrics))

	store, err := filestore.NewStore(cfg.FileStore.DataDir, log,
		append([]filestore.Option{filestore.WithMetrics(o.metrics)}, o.fileOpts...)...)
	if err != nil {
		objects.Close()
		queries.Close()
		return nil, apperrors.NewInfrastructureError("failed to initialize fallback store").WithCause(err)
	}
	log.WithFields(map[string]interface{}{"dir": store.Dir()}).Info("Fallback file store initialized")

	manager := mongodb.NewConnectionManager(cfg.Mongo, log,
		append([]mongodb.ManagerOption{mongodb.WithManagerMetrics(o.metrics)}, o.managerOpts...)...)

	m := &StorageModule{
		Config:      cfg,
		Logger:      log,
		Metrics:     o.metrics,
		ObjectCache: objects,
		QueryCache:  queries,
		FileStore:   store,
		Connection:  manager,
		fallback:    filestore.NewRepositories(store),
		repoOpts:    o.repoOpts,
	}

	// Repositories are rebuilt over the fresh database handle on every (re)connect.
	manager.OnConnected(m.rebuildRepositories)

	if cfg.Redis.Enabled() {
		m.RedisClient = config.NewRedisClient(&cfg.Redis)
		m.InvalidationBus = persistence.NewCacheInvalidationBus(
			m.RedisClient, cfg.Caches.InvalidationChannel, objects, queries, log)
	}

	log.Info("Storage module initialized successfully.")
	return m, nil
}

// Start brings up the invalidation bus when redis is configured. A redis
// failure is logged and the module keeps running with local invalidation only.
func (m *StorageModule) Start(ctx context.Context) {
	if m.InvalidationBus == nil {
		return
	}
	if err := m.InvalidationBus.Start(ctx); err != nil {
		m.Logger.Warnf("Cache invalidation bus unavailable, continuing without it: %v", err)
	}
}

func (m *StorageModule) rebuildRepositories(_ context.Context, db mongodb.DatabaseInterface) {
	repos := mongodb.NewRepositories(db, m.ObjectCache, m.QueryCache, m.Logger, m.repoOpts...)
	m.mu.Lock()
	m.remote = repos
	m.remoteDB = db
	m.mu.Unlock()
	m.Logger.WithFields(map[string]interface{}{"database": db.Name()}).Info("Repositories bound to database")
}

// DatabaseManager returns the mongo-backed repositories, connecting on first
// use. When the database cannot be reached it logs a warning and returns an
// UNAVAILABLE error instead; callers then use Fallback (or the per-collection
// accessors, which route automatically).
func (m *StorageModule) DatabaseManager(ctx context.Context) (*repository.Repositories, error) {
	if repos := m.healthyRemote(); repos != nil {
		return repos, nil
	}

	switch state := m.Connection.State(); state {
	case mongodb.StateReconnecting:
		// a retry is already scheduled; dialling here would burn an attempt
		return nil, m.unavailable(m.Connection.LastError())
	case mongodb.StateFailed:
		return nil, m.unavailable(apperrors.NewReconnectExhaustedError(m.Connection.Attempts()))
	}

	if _, err := m.Connection.Connect(ctx); err != nil {
		if apperrors.IsFatal(err) {
			m.Logger.Errorf("Database unavailable, restart required: %v", err)
		} else {
			m.Logger.Warnf("Database unavailable, using fallback store: %v", err)
		}
		return nil, m.unavailable(err)
	}
	if repos := m.healthyRemote(); repos != nil {
		return repos, nil
	}
	return nil, m.unavailable(nil)
}

func (m *StorageModule) unavailable(cause error) error {
	err := apperrors.NewUnavailableError("database unavailable").WithComponent("storage")
	if cause != nil {
		err = err.WithCause(cause)
	} else {
		err = err.WithCause(apperrors.ErrNotConnected)
	}
	return err
}

// healthyRemote returns the mongo repositories only when they are bound to
// the database handle the connection manager currently serves.
func (m *StorageModule) healthyRemote() *repository.Repositories {
	live := m.Connection.Database()
	if live == nil || !m.Connection.IsConnectionHealthy() {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.remote == nil || m.remoteDB != live {
		return nil
	}
	return m.remote
}

// Fallback returns the file-backed repositories.
func (m *StorageModule) Fallback() *repository.Repositories {
	return m.fallback
}

// Repositories returns the set that should serve the next operation on
// collection. Use the typed accessors below rather than calling this directly.
func (m *StorageModule) Repositories(collection string) *repository.Repositories {
	if repos := m.healthyRemote(); repos != nil {
		return repos
	}
	m.Metrics.FallbackOperation(collection)
	return m.fallback
}

func (m *StorageModule) RoleMappings() repository.RoleMappingRepository {
	return m.Repositories(model.CollectionRoleMappings).RoleMappings
}

func (m *StorageModule) TemporaryRoles() repository.TemporaryRoleRepository {
	return m.Repositories(model.CollectionTemporaryRoles).TemporaryRoles
}

func (m *StorageModule) UserExperience() repository.UserExperienceRepository {
	return m.Repositories(model.CollectionUserExperience).UserExperience
}

func (m *StorageModule) GuildSettings() repository.GuildSettingsRepository {
	return m.Repositories(model.CollectionGuildSettings).GuildSettings
}

func (m *StorageModule) WelcomeSettings() repository.WelcomeSettingsRepository {
	return m.Repositories(model.CollectionWelcomeSettings).WelcomeSettings
}

func (m *StorageModule) GoodbyeSettings() repository.GoodbyeSettingsRepository {
	return m.Repositories(model.CollectionGoodbyeSettings).GoodbyeSettings
}

func (m *StorageModule) Polls() repository.PollRepository {
	return m.Repositories(model.CollectionPolls).Polls
}

func (m *StorageModule) ModerationLogs() repository.ModerationLogRepository {
	return m.Repositories(model.CollectionModerationLogs).ModerationLogs
}

func (m *StorageModule) ScheduledRoles() repository.ScheduledRoleRepository {
	return m.Repositories(model.CollectionScheduledRoles).ScheduledRoles
}

func (m *StorageModule) Supporters() repository.SupporterRepository {
	return m.Repositories(model.CollectionSupporters).Supporters
}

func (m *StorageModule) CommandAnalytics() repository.AnalyticsRepository {
	return m.Repositories(model.CollectionCommandAnalytics).CommandAnalytics
}

// HealthStatus is the storage layer's view of itself for the health endpoint.
type HealthStatus struct {
	Healthy       bool   `json:"healthy"`
	State         string `json:"state"`
	Attempts      int    `json:"attempts"`
	LastError     string `json:"lastError,omitempty"`
	Fallback      bool   `json:"fallback"`
	ObjectEntries int    `json:"objectCacheEntries"`
	QueryEntries  int    `json:"queryCacheEntries"`
}

// HealthCheck reports the connection state. It does no I/O.
func (m *StorageModule) HealthCheck() HealthStatus {
	healthy := m.Connection.IsConnectionHealthy()
	status := HealthStatus{
		Healthy:       healthy,
		State:         m.Connection.State().String(),
		Attempts:      m.Connection.Attempts(),
		Fallback:      !healthy,
		ObjectEntries: m.ObjectCache.Len(),
		QueryEntries:  m.QueryCache.Len(),
	}
	if err := m.Connection.LastError(); err != nil {
		status.LastError = err.Error()
	}
	return status
}

// Close tears everything down once. Later calls return nil.
func (m *StorageModule) Close(ctx context.Context) error {
	var problems *multierror.Error
	m.closeOnce.Do(func() {
		m.Logger.Info("Shutting down storage module...")
		if m.InvalidationBus != nil {
			if err := m.InvalidationBus.Close(); err != nil {
				problems = multierror.Append(problems, err)
			}
		}
		if m.RedisClient != nil {
			if err := m.RedisClient.Close(); err != nil {
				problems = multierror.Append(problems, err)
			}
		}
		if err := m.Connection.Close(ctx); err != nil {
			problems = multierror.Append(problems, err)
		}
		m.ObjectCache.Close()
		m.QueryCache.Close()

		m.mu.Lock()
		m.remote = nil
		m.remoteDB = nil
		m.mu.Unlock()
	})
	return problems.ErrorOrNil()
}
