package di

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qodinger/role-reactor-bot-sub005/internal/shared/logger"
	"github.com/qodinger/role-reactor-bot-sub005/internal/shared/metrics"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/config"
)

const metricsNamespace = "role_reactor"

// Container owns the process-wide storage module and the observability it
// shares with it.
type Container struct {
	mu sync.RWMutex
	// Module instances
	StorageModule *storage.StorageModule
	// Configuration
	StorageConfig *config.StorageConfig
	// Observability
	Logger  logger.Logger
	Metrics *metrics.Collector
}

// NewContainer creates a new DI container
func NewContainer() *Container {
	return &Container{}
}

// InitializeStorage builds the storage module. A nil cfg is loaded from the
// environment; extra options are passed to the module (tests use them to
// inject a dialer).
func (c *Container) InitializeStorage(cfg *config.StorageConfig, opts ...storage.Option) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.StorageModule != nil {
		return fmt.Errorf("storage module already initialized")
	}
	if c.Logger == nil {
		c.Logger = logger.NewLogger()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewCollector(metricsNamespace)
	}
	if cfg == nil {
		loaded, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load storage configuration: %w", err)
		}
		cfg = loaded
	}
	c.StorageConfig = cfg

	opts = append([]storage.Option{storage.WithMetrics(c.Metrics)}, opts...)
	module, err := storage.NewStorageModule(cfg, c.Logger, opts...)
	if err != nil {
		return fmt.Errorf("failed to create storage module: %w", err)
	}

	c.StorageModule = module
	return nil
}

// GetStorageModule returns the storage module instance
func (c *Container) GetStorageModule() *storage.StorageModule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.StorageModule
}

// HealthCheck reports the storage layer's state. The error is non-nil while
// the bot is running on the fallback store.
func (c *Container) HealthCheck(ctx context.Context) (storage.HealthStatus, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.StorageModule == nil {
		return storage.HealthStatus{}, fmt.Errorf("storage module not initialized")
	}
	status := c.StorageModule.HealthCheck()
	if !status.Healthy {
		return status, fmt.Errorf("database %s, serving from fallback store", status.State)
	}
	return status, nil
}

// Cleanup closes the storage module. The container can be initialized again
// afterwards.
func (c *Container) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.StorageModule == nil {
		return nil
	}
	err := c.StorageModule.Close(ctx)
	c.StorageModule = nil
	if err != nil {
		return fmt.Errorf("failed to close storage module: %w", err)
	}
	return nil
}

// Close runs Cleanup with a 30s deadline.
func (c *Container) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.Cleanup(ctx); err != nil {
		if c.Logger != nil {
			c.Logger.Warnf("Cleanup errors occurred: %v", err)
		}
		return err
	}
	if c.Logger != nil {
		c.Logger.Info("DI container resources closed")
	}
	return nil
}
