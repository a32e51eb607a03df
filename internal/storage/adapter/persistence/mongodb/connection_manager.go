package mongodb

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	apperrors "github.com/qodinger/role-reactor-bot-sub005/internal/shared/errors"
	"github.com/qodinger/role-reactor-bot-sub005/internal/shared/logger"
	"github.com/qodinger/role-reactor-bot-sub005/internal/shared/metrics"
	"github.com/qodinger/role-reactor-bot-sub005/internal/storage/config"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"golang.org/x/sync/singleflight"
)

// ConnectionState is the lifecycle state of the remote connection.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Client is the part of *mongo.Client the manager needs.
type Client interface {
	Ping(ctx context.Context) error
	Database(name string) DatabaseInterface
	Disconnect(ctx context.Context) error
}

// Dialer opens a client. It must honour ctx for the whole attempt.
type Dialer func(ctx context.Context, cfg config.MongoConfig) (Client, error)

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. Timers never keep the process alive.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// OnConnectedFunc runs after every successful (re)connect.
type OnConnectedFunc func(ctx context.Context, db DatabaseInterface)

// ConnectionManager owns the single remote connection: connect with a bounded
// timeout, classified backoff reconnection, periodic pings, index provisioning
// and shutdown.
type ConnectionManager struct {
	cfg     config.MongoConfig
	dial    Dialer
	sched   Scheduler
	logger  logger.Logger
	metrics *metrics.Collector
	group   singleflight.Group

	mu             sync.Mutex
	state          ConnectionState
	client         Client
	db             DatabaseInterface
	attempts       int
	lastErr        error
	reconnectTimer Timer
	healthTimer    Timer
	hooks          []OnConnectedFunc
	closed         bool
	skipIndexes    bool
}

// ManagerOption customises a ConnectionManager.
type ManagerOption func(*ConnectionManager)

func WithDialer(d Dialer) ManagerOption {
	return func(m *ConnectionManager) { m.dial = d }
}

func WithScheduler(s Scheduler) ManagerOption {
	return func(m *ConnectionManager) { m.sched = s }
}

func WithManagerMetrics(c *metrics.Collector) ManagerOption {
	return func(m *ConnectionManager) { m.metrics = c }
}

// WithoutIndexProvisioning skips index setup after connecting.
func WithoutIndexProvisioning() ManagerOption {
	return func(m *ConnectionManager) { m.skipIndexes = true }
}

// NewConnectionManager creates a manager in the Disconnected state. Nothing is
// dialled until Connect is called.
func NewConnectionManager(cfg config.MongoConfig, log logger.Logger, opts ...ManagerOption) *ConnectionManager {
	if log == nil {
		log = logger.NewNopLogger()
	}
	m := &ConnectionManager{
		cfg:    cfg,
		dial:   DialMongo,
		sched:  realScheduler{},
		logger: log.WithComponent("connection-manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DialMongo builds a pooled driver client. The manager pings it before use.
func DialMongo(ctx context.Context, cfg config.MongoConfig) (Client, error) {
	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(cfg.MaxIdleTime).
		SetServerSelectionTimeout(cfg.ServerSelectionTimeout).
		SetConnectTimeout(cfg.DialTimeout).
		SetSocketTimeout(cfg.SocketTimeout).
		SetHeartbeatInterval(cfg.HeartbeatInterval).
		SetRetryWrites(true).
		SetRetryReads(true).
		SetWriteConcern(writeconcern.Majority())

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, err
	}
	return &mongoClient{client: client}, nil
}

type mongoClient struct {
	client *mongo.Client
}

func (c *mongoClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

func (c *mongoClient) Database(name string) DatabaseInterface {
	return NewMongoDatabaseAdapter(c.client.Database(name))
}

func (c *mongoClient) Disconnect(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// OnConnected registers a hook run after every successful (re)connect. If the
// manager is already connected the hook runs immediately.
func (m *ConnectionManager) OnConnected(hook OnConnectedFunc) {
	m.mu.Lock()
	m.hooks = append(m.hooks, hook)
	db := m.db
	connected := m.state == StateConnected && db != nil
	m.mu.Unlock()

	if connected {
		hook(context.Background(), db)
	}
}

// Connect returns the live database, dialling if needed. Concurrent callers
// share one in-flight attempt.
func (m *ConnectionManager) Connect(ctx context.Context) (DatabaseInterface, error) {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return nil, m.closedError()
	case m.state == StateFailed:
		attempts := m.attempts
		m.mu.Unlock()
		return nil, apperrors.NewReconnectExhaustedError(attempts).WithComponent("connection-manager")
	case m.state == StateConnected && m.db != nil:
		db := m.db
		m.mu.Unlock()
		return db, nil
	}
	m.mu.Unlock()

	ch := m.group.DoChan("connect", func() (interface{}, error) {
		return m.connect()
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(DatabaseInterface), nil
	}
}

// connect runs one attempt. It is detached from any caller context so a
// cancelled caller does not abort an attempt other callers share.
func (m *ConnectionManager) connect() (DatabaseInterface, error) {
	m.mu.Lock()
	if m.state == StateConnected && m.db != nil {
		db := m.db
		m.mu.Unlock()
		return db, nil
	}
	if m.attempts == 0 {
		m.setStateLocked(StateConnecting)
	} else {
		m.setStateLocked(StateReconnecting)
	}
	attempt := m.attempts + 1
	m.mu.Unlock()

	m.logger.WithFields(map[string]interface{}{
		"attempt":  attempt,
		"database": m.cfg.DatabaseName,
	}).Info("Connecting to MongoDB")

	ctx, cancel := context.WithTimeout(context.Background(), m.connectTimeout())
	defer cancel()

	client, err := m.dial(ctx, m.cfg)
	if err == nil {
		err = client.Ping(ctx)
		if err != nil {
			_ = client.Disconnect(context.Background())
		}
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = apperrors.NewConnectionTimeoutError(
				fmt.Sprintf("connection not established within %s", m.connectTimeout())).
				WithComponent("connection-manager").
				WithDetail("cause", err.Error())
		}
		return nil, m.handleFailure(err)
	}

	db := client.Database(m.cfg.DatabaseName)

	// hooks rebind callers to db before the state reads Connected
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = client.Disconnect(context.Background())
		return nil, m.closedError()
	}
	hooks := append([]OnConnectedFunc(nil), m.hooks...)
	m.mu.Unlock()
	for _, hook := range hooks {
		hook(context.Background(), db)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = client.Disconnect(context.Background())
		return nil, m.closedError()
	}
	previous := m.client
	m.client = client
	m.db = db
	m.attempts = 0
	m.lastErr = nil
	m.setStateLocked(StateConnected)
	m.stopTimerLocked(&m.reconnectTimer)
	m.armHealthCheckLocked()
	// registered while the hooks above ran
	late := append([]OnConnectedFunc(nil), m.hooks[len(hooks):]...)
	m.mu.Unlock()

	for _, hook := range late {
		hook(context.Background(), db)
	}
	if previous != nil && previous != client {
		go func() { _ = previous.Disconnect(context.Background()) }()
	}

	m.logger.WithFields(map[string]interface{}{"database": m.cfg.DatabaseName}).Info("Connected to MongoDB")

	if !m.skipIndexes {
		idxCtx, idxCancel := context.WithTimeout(context.Background(), m.connectTimeout())
		EnsureIndexes(idxCtx, db, m.logger, m.metrics)
		idxCancel()
	}
	return db, nil
}

func (m *ConnectionManager) closedError() error {
	return apperrors.NewUnavailableError("connection manager is closed").WithComponent("connection-manager")
}

// handleFailure records a failed attempt and either schedules the next one or
// gives up. The returned error is what the caller of Connect sees.
func (m *ConnectionManager) handleFailure(cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts++
	m.lastErr = cause
	m.metrics.ReconnectAttempt()
	m.stopTimerLocked(&m.reconnectTimer)

	if m.closed {
		return apperrors.NewUnavailableError("connection manager is closed").WithCause(cause)
	}

	if m.attempts >= m.maxAttempts() {
		m.setStateLocked(StateFailed)
		m.stopTimerLocked(&m.healthTimer)
		m.logger.WithFields(map[string]interface{}{
			"attempts": m.attempts,
			"error":    cause.Error(),
		}).Error("MongoDB reconnection attempts exhausted, restart required")
		return apperrors.NewReconnectExhaustedError(m.attempts).
			WithComponent("connection-manager").
			WithDetail("lastError", cause.Error())
	}

	delay := backoffDelay(m.cfg.ReconnectBaseDelay, m.cfg.ReconnectMaxDelay, m.attempts, cause)
	m.setStateLocked(StateReconnecting)
	m.reconnectTimer = m.sched.AfterFunc(delay, m.reconnect)
	m.logger.WithFields(map[string]interface{}{
		"attempt":     m.attempts,
		"maxAttempts": m.maxAttempts(),
		"delay":       delay.String(),
		"error":       cause.Error(),
	}).Warn("MongoDB connection failed, scheduling reconnect")

	if apperrors.IsUnavailable(cause) {
		return cause
	}
	return apperrors.NewUnavailableError("failed to connect to MongoDB").
		WithComponent("connection-manager").
		WithCause(cause)
}

func (m *ConnectionManager) reconnect() {
	m.mu.Lock()
	m.reconnectTimer = nil
	skip := m.closed || m.state == StateFailed || m.state == StateConnected
	m.mu.Unlock()
	if skip {
		return
	}
	_, _, _ = m.group.Do("connect", func() (interface{}, error) {
		return m.connect()
	})
}

// backoffDelay is base × attempts scaled by how likely the error is to clear
// up soon, capped at max.
func backoffDelay(base, max time.Duration, attempts int, cause error) time.Duration {
	if base <= 0 {
		base = 2 * time.Second
	}
	delay := time.Duration(float64(base) * float64(attempts) * backoffMultiplier(cause))
	if max > 0 && delay > max {
		delay = max
	}
	return delay
}

func backoffMultiplier(err error) float64 {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			return 2
		case dnsErr.IsTimeout:
			return 1.5
		}
	}
	if isTimeout(err) {
		return 1.2
	}
	return 1
}

func isTimeout(err error) bool {
	if mongo.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Type == apperrors.ErrorTypeConnectionTimeout {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (m *ConnectionManager) armHealthCheckLocked() {
	m.stopTimerLocked(&m.healthTimer)
	if m.cfg.HealthCheckInterval <= 0 || m.closed {
		return
	}
	m.healthTimer = m.sched.AfterFunc(m.cfg.HealthCheckInterval, m.healthCheck)
}

// healthCheck pings the current client. A failure marks the connection
// unhealthy and enters the reconnect path; a success after a failure restores it.
func (m *ConnectionManager) healthCheck() {
	m.mu.Lock()
	m.healthTimer = nil
	client := m.client
	if m.closed || client == nil || m.state == StateFailed {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	timeout := m.cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	err := client.Ping(ctx)
	cancel()

	if err != nil {
		m.mu.Lock()
		wasConnected := m.state == StateConnected
		if wasConnected {
			m.setStateLocked(StateReconnecting)
		}
		m.mu.Unlock()
		m.logger.WithFields(map[string]interface{}{"error": err.Error()}).Warn("MongoDB health check failed")
		if wasConnected {
			_ = m.handleFailure(err)
		}
	} else {
		m.mu.Lock()
		recovered := m.state == StateReconnecting && m.client == client
		if recovered {
			m.attempts = 0
			m.lastErr = nil
			m.setStateLocked(StateConnected)
			m.stopTimerLocked(&m.reconnectTimer)
		}
		m.mu.Unlock()
		if recovered {
			m.logger.Info("MongoDB connection recovered")
		}
	}

	m.mu.Lock()
	if m.client == client && m.state != StateFailed {
		m.armHealthCheckLocked()
	}
	m.mu.Unlock()
}

// Close stops background timers and disconnects. Safe without a prior Connect
// and safe to call twice.
func (m *ConnectionManager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.stopTimerLocked(&m.reconnectTimer)
	m.stopTimerLocked(&m.healthTimer)
	client := m.client
	m.client = nil
	m.db = nil
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if client == nil {
		return nil
	}
	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	m.logger.Info("Disconnected from MongoDB")
	return nil
}

// IsConnectionHealthy reports the last known state without doing any I/O.
func (m *ConnectionManager) IsConnectionHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected && m.client != nil && m.db != nil
}

// Database returns the live database accessor, or nil when not connected.
func (m *ConnectionManager) Database() DatabaseInterface {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		return nil
	}
	return m.db
}

func (m *ConnectionManager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *ConnectionManager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

func (m *ConnectionManager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *ConnectionManager) setStateLocked(s ConnectionState) {
	m.state = s
	m.metrics.SetConnectionState(int(s))
}

func (m *ConnectionManager) stopTimerLocked(t *Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (m *ConnectionManager) connectTimeout() time.Duration {
	if m.cfg.ConnectTimeout <= 0 {
		return 30 * time.Second
	}
	return m.cfg.ConnectTimeout
}

func (m *ConnectionManager) maxAttempts() int {
	if m.cfg.MaxReconnectAttempts <= 0 {
		return 5
	}
	return m.cfg.MaxReconnectAttempts
}
