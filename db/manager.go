package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/padraicbc/trms/config"
	"github.com/padraicbc/trms/models"
)

// Manager owns the active pool and which endpoint it is bound to.
//
// The pool is safe for concurrent use; mu only guards swapping it during
// a rebuild.
type Manager struct {
	cfg        config.Database
	open       Opener
	log        *zap.Logger
	retryDelay time.Duration

	mu     sync.RWMutex
	pool   Pool
	active Endpoint
}

func (m *Manager) config() config.Database {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Option configures a Manager.
type Option func(*Manager)

// WithOpener replaces the bun opener, mainly for tests.
func WithOpener(open Opener) Option {
	return func(m *Manager) { m.open = open }
}

// WithRetryDelay sets the pause before a pool rebuild.
func WithRetryDelay(d time.Duration) Option {
	return func(m *Manager) { m.retryDelay = d }
}

// Status describes the current binding. Connected is checked when Status is called.
type Status struct {
	Connected bool   `json:"connected"`
	Cloud     bool   `json:"isCloud"`
	Host      string `json:"host"`
	Database  string `json:"database"`
	PoolSize  int    `json:"poolSize"`
}

// Kind is "CLOUD" or "LOCAL".
func (s Status) Kind() string {
	if s.Cloud {
		return "CLOUD"
	}
	return "LOCAL"
}

// Connect builds the pool: the cloud endpoint first when configured, then the
// local endpoint. A local failure is returned and should stop startup.
func Connect(ctx context.Context, cfg config.Database, log *zap.Logger, opts ...Option) (*Manager, error) {
	m := &Manager{
		cfg:        cfg,
		log:        log,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.open == nil {
		m.open = BunOpener(log, log.Core().Enabled(zap.DebugLevel))
	}

	if err := m.initPool(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) initPool(ctx context.Context) error {
	cfg := m.config()
	if cfg.UseCloud && cfg.CloudHost != "" {
		if m.tryCloud(ctx, cloudEndpoint(cfg), cfg.AutoFailover) {
			return nil
		}
	}

	ep := localEndpoint(cfg)
	m.log.Info("connecting to local database", zap.String("host", ep.Addr()))
	pool, err := m.open(ctx, ep)
	if err != nil {
		m.log.Error("local database connection failed", zap.String("host", ep.Addr()), zap.Error(err))
		return fmt.Errorf("connect local database %s: %w", ep.Addr(), err)
	}
	m.swap(pool, ep)
	m.log.Info("connected to LOCAL database", zap.String("host", ep.Addr()), zap.Int("pool_size", ep.PoolSize))
	return nil
}

func (m *Manager) tryCloud(ctx context.Context, ep Endpoint, failover bool) bool {
	m.log.Info("attempting cloud database connection", zap.String("host", ep.Addr()))

	pool, err := m.open(ctx, ep)
	if err == nil {
		if err = checkAlive(ctx, pool); err != nil {
			_ = pool.Close()
		}
	}
	if err != nil {
		m.log.Warn("cloud database connection failed", zap.String("host", ep.Addr()), zap.Error(err))
		if failover {
			m.log.Info("attempting failover to local database")
		}
		return false
	}

	m.swap(pool, ep)
	m.log.Info("connected to CLOUD database", zap.String("host", ep.Addr()), zap.Int("pool_size", ep.PoolSize))
	return true
}

func checkAlive(ctx context.Context, pool Pool) error {
	conn, err := pool.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	rows, err := conn.Query(ctx, "SELECT 1")
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return errors.New("liveness query returned no rows")
	}
	return nil
}

// swap installs pool as the active one and closes the previous pool.
func (m *Manager) swap(pool Pool, ep Endpoint) {
	m.mu.Lock()
	old := m.pool
	m.pool = pool
	m.active = ep
	m.mu.Unlock()

	if old != nil && old != pool {
		if err := old.Close(); err != nil {
			m.log.Warn("closing previous pool", zap.Error(err))
		}
	}
}

func (m *Manager) current() Pool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pool
}

// WithConnection checks out a connection, runs fn and always hands the
// connection back. An exhausted pool is rebuilt once and the checkout retried;
// any further failure is returned.
func (m *Manager) WithConnection(ctx context.Context, fn func(Conn) error) error {
	conn, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			m.log.Warn("releasing connection", zap.Error(cerr))
		}
	}()
	return fn(conn)
}

func (m *Manager) acquire(ctx context.Context) (Conn, error) {
	pool := m.current()
	if pool == nil {
		return nil, ErrClosed
	}
	conn, err := pool.Conn(ctx)
	if err == nil {
		return conn, nil
	}
	m.log.Error("database connection error", zap.Error(err))
	if !errors.Is(err, ErrPoolExhausted) {
		return nil, err
	}

	select {
	case <-time.After(m.retryDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := m.initPool(ctx); err != nil {
		return nil, fmt.Errorf("rebuild pool: %w", err)
	}

	conn, err = m.current().Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire after pool rebuild: %w", err)
	}
	return conn, nil
}

// Reconfigure rebinds the manager to cfg, trying the cloud endpoint first
// again. When no endpoint of cfg can be reached the previous settings and
// pool stay in place.
func (m *Manager) Reconfigure(ctx context.Context, cfg config.Database) error {
	m.mu.Lock()
	prev := m.cfg
	m.cfg = cfg
	m.mu.Unlock()

	if err := m.initPool(ctx); err != nil {
		m.mu.Lock()
		m.cfg = prev
		m.mu.Unlock()
		return err
	}
	return nil
}

// TestConnection reports whether a trivial round trip succeeds.
func (m *Manager) TestConnection(ctx context.Context) bool {
	var ok bool
	err := m.WithConnection(ctx, func(c Conn) error {
		rows, err := c.Query(ctx, "SELECT 1")
		ok = len(rows) > 0
		return err
	})
	if err != nil {
		m.log.Error("connection test failed", zap.Error(err))
		return false
	}
	return ok
}

// ExecuteQuery runs a read statement and returns every row.
func (m *Manager) ExecuteQuery(ctx context.Context, query string, args ...any) ([]Row, error) {
	var rows []Row
	err := m.WithConnection(ctx, func(c Conn) error {
		var err error
		rows, err = c.Query(ctx, query, args...)
		return err
	})
	if err != nil {
		m.log.Error("query failed", zap.Error(err))
		return nil, err
	}
	return rows, nil
}

// QueryInto runs a read statement and lets bun scan the result into dest,
// typically a pointer to a model or a slice of models.
func (m *Manager) QueryInto(ctx context.Context, dest any, query string, args ...any) error {
	err := m.WithConnection(ctx, func(c Conn) error {
		return c.Scan(ctx, dest, query, args...)
	})
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		m.log.Error("query failed", zap.Error(err))
	}
	return err
}

// ServerVersion asks the bound server for its version string.
func (m *Manager) ServerVersion(ctx context.Context) (string, error) {
	rows, err := m.ExecuteQuery(ctx, "SELECT version() AS version")
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", errors.New("version query returned no rows")
	}
	return fmt.Sprint(rows[0]["version"]), nil
}

// ExecuteUpdate runs a write statement, commits and returns the affected row count.
func (m *Manager) ExecuteUpdate(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	err := m.WithConnection(ctx, func(c Conn) error {
		var err error
		n, err = c.Exec(ctx, query, args...)
		return err
	})
	if err != nil {
		m.log.Error("update failed", zap.Error(err))
		return 0, err
	}
	return n, nil
}

// ExecuteInsert runs an INSERT, commits and returns the generated idColumn value.
func (m *Manager) ExecuteInsert(ctx context.Context, query, idColumn string, args ...any) (int64, error) {
	var id int64
	err := m.WithConnection(ctx, func(c Conn) error {
		var err error
		id, err = c.Insert(ctx, query, idColumn, args...)
		return err
	})
	if err != nil {
		m.log.Error("insert failed", zap.Error(err))
		return 0, err
	}
	return id, nil
}

// Status reports the active endpoint and checks connectivity.
func (m *Manager) Status(ctx context.Context) Status {
	m.mu.RLock()
	ep, bound := m.active, m.pool != nil
	m.mu.RUnlock()

	st := Status{
		Cloud:    ep.Kind == Cloud,
		Host:     ep.Host,
		Database: ep.Database,
	}
	if bound {
		st.PoolSize = ep.PoolSize
	}
	st.Connected = m.TestConnection(ctx)
	return st
}

// Migrate creates the tables in dependency order if they do not exist.
func (m *Manager) Migrate(ctx context.Context) error {
	tables := []interface{}{
		(*models.Race)(nil),
		(*models.User)(nil),
	}
	return m.WithConnection(ctx, func(c Conn) error {
		for _, model := range tables {
			if err := c.CreateTable(ctx, model); err != nil {
				return fmt.Errorf("creating table for %T: %w", model, err)
			}
		}
		return nil
	})
}

// Close shuts the active pool down.
func (m *Manager) Close() error {
	m.mu.Lock()
	pool := m.pool
	m.pool = nil
	m.mu.Unlock()

	if pool == nil {
		return nil
	}
	return pool.Close()
}
