package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
	"go.uber.org/zap"

	"github.com/padraicbc/trms/config"
)

// DefaultAcquireTimeout bounds how long a checkout waits on a saturated pool
// before it is reported as ErrPoolExhausted. Dialing a new connection is
// bounded only by the endpoint's DialTimeout and the caller's context.
const DefaultAcquireTimeout = 3 * time.Second

const (
	mysqlTooManyConnections = 1040
	pgTooManyConnections    = "53300"
)

// BunOpener opens endpoints with bun over the configured driver. When debug
// is set every query is written to log through bundebug.
func BunOpener(log *zap.Logger, debug bool) Opener {
	return func(ctx context.Context, ep Endpoint) (Pool, error) {
		sqldb, dialect, err := openSQL(ep)
		if err != nil {
			return nil, err
		}
		pool, err := newBunPool(ctx, sqldb, dialect, ep, log, debug)
		if err != nil {
			return nil, err
		}
		return pool, nil
	}
}

// newBunPool sizes sqldb for ep and pings it, closing it again when the
// server does not answer.
func newBunPool(ctx context.Context, sqldb *sql.DB, dialect schema.Dialect, ep Endpoint, log *zap.Logger, debug bool) (*bunPool, error) {
	sqldb.SetMaxOpenConns(ep.PoolSize)
	sqldb.SetMaxIdleConns(ep.PoolSize)

	bdb := bun.NewDB(sqldb, dialect)
	if debug {
		bdb.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.WithWriter(zap.NewStdLog(log).Writer()),
		))
	}

	if err := bdb.PingContext(ctx); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("ping %s database at %s: %w", ep.Kind, ep.Addr(), err)
	}
	return &bunPool{
		db:             bdb,
		returning:      dialect.Features().Has(feature.InsertReturning),
		acquireTimeout: DefaultAcquireTimeout,
	}, nil
}

func openSQL(ep Endpoint) (*sql.DB, schema.Dialect, error) {
	switch ep.Driver {
	case config.DriverMySQL, "":
		mc := mysql.NewConfig()
		mc.User = ep.User
		mc.Passwd = ep.Password
		mc.Net = "tcp"
		mc.Addr = ep.Addr()
		mc.DBName = ep.Database
		mc.ParseTime = true
		// report matched rows, not changed rows, so an idempotent UPDATE still counts
		mc.ClientFoundRows = true
		mc.Timeout = ep.DialTimeout
		connector, err := mysql.NewConnector(mc)
		if err != nil {
			return nil, nil, fmt.Errorf("mysql connector: %w", err)
		}
		return sql.OpenDB(connector), mysqldialect.New(), nil
	case config.DriverPostgres:
		opts := []pgdriver.Option{
			pgdriver.WithAddr(ep.Addr()),
			pgdriver.WithUser(ep.User),
			pgdriver.WithPassword(ep.Password),
			pgdriver.WithDatabase(ep.Database),
			pgdriver.WithInsecure(ep.SSLMode == "" || ep.SSLMode == "disable"),
			pgdriver.WithApplicationName("trms"),
		}
		if ep.DialTimeout > 0 {
			opts = append(opts, pgdriver.WithDialTimeout(ep.DialTimeout))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), pgdialect.New(), nil
	}
	return nil, nil, fmt.Errorf("unsupported driver %q", ep.Driver)
}

type bunPool struct {
	db             *bun.DB
	returning      bool
	acquireTimeout time.Duration
}

func (p *bunPool) Conn(ctx context.Context) (Conn, error) {
	actx := ctx
	if p.saturated() {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}

	conn, err := p.db.Conn(actx)
	if err != nil {
		// only a wait on a full pool counts as exhaustion; a slow or
		// unreachable server is reported as is
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && p.saturated() {
			return nil, fmt.Errorf("%w: no connection free after %s", ErrPoolExhausted, p.acquireTimeout)
		}
		if isTooManyConnections(err) {
			return nil, fmt.Errorf("%w: %w", ErrPoolExhausted, err)
		}
		return nil, err
	}
	return &bunConn{conn: conn, returning: p.returning}, nil
}

// saturated reports whether every connection the pool may open is checked out.
func (p *bunPool) saturated() bool {
	st := p.db.Stats()
	return st.MaxOpenConnections > 0 && st.InUse >= st.MaxOpenConnections
}

func (p *bunPool) Close() error {
	return p.db.Close()
}

// isTooManyConnections recognises server-side connection limit errors.
func isTooManyConnections(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlTooManyConnections {
		return true
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == pgTooManyConnections {
		return true
	}
	return false
}

type bunConn struct {
	conn      bun.Conn
	returning bool
}

func (c *bunConn) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	var rows []map[string]interface{}
	if err := c.conn.NewRaw(query, args...).Scan(ctx, &rows); err != nil {
		return nil, err
	}
	out := make([]Row, len(rows))
	for i, row := range rows {
		for k, v := range row {
			// drivers hand back text columns as []byte
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		out[i] = row
	}
	return out, nil
}

func (c *bunConn) Scan(ctx context.Context, dest any, query string, args ...any) error {
	return c.conn.NewRaw(query, args...).Scan(ctx, dest)
}

func (c *bunConn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	var affected int64
	err := c.inTx(ctx, func(tx bun.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

func (c *bunConn) Insert(ctx context.Context, query, idColumn string, args ...any) (int64, error) {
	var id int64
	err := c.inTx(ctx, func(tx bun.Tx) error {
		if c.returning {
			return tx.QueryRowContext(ctx, query+" RETURNING "+idColumn, args...).Scan(&id)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

func (c *bunConn) CreateTable(ctx context.Context, model any) error {
	_, err := c.conn.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
	return err
}

func (c *bunConn) Close() error {
	return c.conn.Close()
}

// inTx runs fn in a transaction and commits it, rolling back on error.
func (c *bunConn) inTx(ctx context.Context, fn func(tx bun.Tx) error) error {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
