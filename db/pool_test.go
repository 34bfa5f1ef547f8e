package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/schema"
	"go.uber.org/zap"

	"github.com/padraicbc/trms/models"
)

// stubServer is a database/sql driver that answers from canned results and
// records what the pool sends it.
type stubServer struct {
	mu        sync.Mutex
	dial      func(ctx context.Context) error
	pingErr   error
	execErr   error
	results   map[string]*stubRows // keyed by a query prefix
	affected  int64
	lastID    int64
	queries   []string
	commits   int
	rollbacks int
}

func (s *stubServer) Connect(ctx context.Context) (driver.Conn, error) {
	if s.dial != nil {
		if err := s.dial(ctx); err != nil {
			return nil, err
		}
	}
	return &stubConn{srv: s}, nil
}

func (s *stubServer) Driver() driver.Driver { return stubDriver{} }

func (s *stubServer) record(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
}

func (s *stubServer) lastQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queries) == 0 {
		return ""
	}
	return s.queries[len(s.queries)-1]
}

type stubDriver struct{}

func (stubDriver) Open(string) (driver.Conn, error) { return nil, errors.New("open through the connector") }

type stubConn struct{ srv *stubServer }

func (c *stubConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("prepared statements not supported")
}

func (c *stubConn) Close() error { return nil }

func (c *stubConn) Begin() (driver.Tx, error) { return &stubTx{srv: c.srv}, nil }

func (c *stubConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	return &stubTx{srv: c.srv}, nil
}

func (c *stubConn) Ping(ctx context.Context) error { return c.srv.pingErr }

func (c *stubConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.srv.record(query)
	if c.srv.execErr != nil {
		return nil, c.srv.execErr
	}
	return stubResult{id: c.srv.lastID, n: c.srv.affected}, nil
}

func (c *stubConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.srv.record(query)
	for prefix, rows := range c.srv.results {
		if strings.HasPrefix(query, prefix) {
			return rows.clone(), nil
		}
	}
	return nil, errors.New("no result for " + query)
}

type stubTx struct{ srv *stubServer }

func (t *stubTx) Commit() error {
	t.srv.mu.Lock()
	defer t.srv.mu.Unlock()
	t.srv.commits++
	return nil
}

func (t *stubTx) Rollback() error {
	t.srv.mu.Lock()
	defer t.srv.mu.Unlock()
	t.srv.rollbacks++
	return nil
}

type stubResult struct{ id, n int64 }

func (r stubResult) LastInsertId() (int64, error) { return r.id, nil }
func (r stubResult) RowsAffected() (int64, error) { return r.n, nil }

type stubRows struct {
	cols []string
	vals [][]driver.Value
	next int
}

func (r *stubRows) clone() *stubRows { return &stubRows{cols: r.cols, vals: r.vals} }

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.next >= len(r.vals) {
		return io.EOF
	}
	copy(dest, r.vals[r.next])
	r.next++
	return nil
}

func newStubPool(t *testing.T, srv *stubServer, dialect schema.Dialect, maxOpen int) *bunPool {
	t.Helper()
	sqldb := sql.OpenDB(srv)
	sqldb.SetMaxOpenConns(maxOpen)
	p := &bunPool{
		db:             bun.NewDB(sqldb, dialect),
		returning:      dialect.Features().Has(feature.InsertReturning),
		acquireTimeout: 200 * time.Millisecond,
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestSlowServerIsNotExhaustion(t *testing.T) {
	refused := errors.New("dial tcp 10.0.0.9:3306: connect: connection refused")
	srv := &stubServer{dial: func(ctx context.Context) error {
		select {
		case <-time.After(400 * time.Millisecond):
			return refused
		case <-ctx.Done():
			return ctx.Err()
		}
	}}
	p := newStubPool(t, srv, pgdialect.New(), 5)

	conn, err := p.Conn(context.Background())
	require.Error(t, err)
	assert.Nil(t, conn)
	assert.ErrorIs(t, err, refused, "dial error outlives the acquire timeout")
	assert.NotErrorIs(t, err, ErrPoolExhausted)
	assert.Zero(t, p.db.Stats().InUse)
}

func TestSaturatedPoolIsExhaustion(t *testing.T) {
	p := newStubPool(t, &stubServer{}, pgdialect.New(), 1)

	held, err := p.Conn(context.Background())
	require.NoError(t, err)

	_, err = p.Conn(context.Background())
	assert.ErrorIs(t, err, ErrPoolExhausted)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Conn(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrPoolExhausted, "a caller giving up is not exhaustion")

	require.NoError(t, held.Close())
	conn, err := p.Conn(context.Background())
	require.NoError(t, err)
	assert.NoError(t, conn.Close())
}

func TestQueryMaterialisesTextColumns(t *testing.T) {
	srv := &stubServer{results: map[string]*stubRows{
		"SELECT race_id": {
			cols: []string{"race_id", "race_name", "race_venue"},
			vals: [][]driver.Value{
				{int64(1), []byte("Spring 5K"), nil},
				{int64(2), []byte("Winter 10K"), []byte("City Park")},
			},
		},
	}}
	p := newStubPool(t, srv, pgdialect.New(), 5)
	conn, err := p.Conn(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	rows, err := conn.Query(context.Background(), "SELECT race_id, race_name, race_venue FROM races WHERE race_id > ?", 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{"race_id": int64(1), "race_name": "Spring 5K", "race_venue": nil}, rows[0])
	assert.Equal(t, "City Park", rows[1]["race_venue"])
	assert.Equal(t, "SELECT race_id, race_name, race_venue FROM races WHERE race_id > 0", srv.lastQuery())
}

func TestScanFillsBunModels(t *testing.T) {
	day := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	srv := &stubServer{results: map[string]*stubRows{
		"SELECT * FROM races": {
			cols: []string{"race_id", "race_name", "race_date", "race_time", "race_type", "registration_open", "chip_timing", "entry_fee", "registration_limit"},
			vals: [][]driver.Value{
				{int64(4), []byte("Spring 5K"), day, []byte("08:30:00"), []byte("road_race"), int64(1), int64(0), []byte("25.00"), nil},
			},
		},
	}}
	p := newStubPool(t, srv, mysqldialect.New(), 5)
	conn, err := p.Conn(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	var races []models.Race
	require.NoError(t, conn.Scan(context.Background(), &races, "SELECT * FROM races"))
	require.Len(t, races, 1)
	r := races[0]
	assert.EqualValues(t, 4, r.ID)
	assert.Equal(t, "Spring 5K", r.Name)
	assert.Equal(t, day, r.Date)
	require.NotNil(t, r.TimeOfDay)
	assert.Equal(t, "08:30:00", *r.TimeOfDay)
	assert.Equal(t, models.RoadRace, r.Type)
	assert.True(t, r.RegistrationOpen)
	assert.False(t, r.ChipTiming)
	require.NotNil(t, r.EntryFee)
	assert.InDelta(t, 25.0, *r.EntryFee, 0.001)
	assert.Nil(t, r.RegistrationLimit)

	var user models.User
	err = conn.Scan(context.Background(), &user, "SELECT * FROM races")
	assert.Error(t, err, "columns must match the model")
}

func TestExecCommitsAndCountsRows(t *testing.T) {
	srv := &stubServer{affected: 3}
	p := newStubPool(t, srv, mysqldialect.New(), 5)
	conn, err := p.Conn(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	n, err := conn.Exec(context.Background(), "UPDATE races SET chip_timing = ? WHERE race_type = ?", true, "track")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, 1, srv.commits)
	assert.Zero(t, srv.rollbacks)
	assert.Equal(t, "UPDATE races SET chip_timing = TRUE WHERE race_type = 'track'", srv.lastQuery())
}

func TestExecRollsBackOnError(t *testing.T) {
	srv := &stubServer{execErr: errors.New("Duplicate entry")}
	p := newStubPool(t, srv, mysqldialect.New(), 5)
	conn, err := p.Conn(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec(context.Background(), "DELETE FROM races WHERE race_id = ?", 1)
	assert.Error(t, err)
	_, err = conn.Insert(context.Background(), "INSERT INTO users (username, password) VALUES (?, ?)", "id", "timer", "x")
	assert.Error(t, err)

	assert.Equal(t, 2, srv.rollbacks)
	assert.Zero(t, srv.commits)
}

func TestInsertUsesLastInsertIDWithoutReturning(t *testing.T) {
	srv := &stubServer{lastID: 41, affected: 1}
	p := newStubPool(t, srv, mysqldialect.New(), 5)
	require.False(t, p.returning)
	conn, err := p.Conn(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	id, err := conn.Insert(context.Background(), "INSERT INTO races (race_name) VALUES (?)", "race_id", "Spring 5K")
	require.NoError(t, err)
	assert.EqualValues(t, 41, id)
	assert.NotContains(t, srv.lastQuery(), "RETURNING")
	assert.Equal(t, 1, srv.commits)
}

func TestInsertUsesReturning(t *testing.T) {
	srv := &stubServer{results: map[string]*stubRows{
		"INSERT INTO races": {cols: []string{"race_id"}, vals: [][]driver.Value{{int64(77)}}},
	}}
	p := newStubPool(t, srv, pgdialect.New(), 5)
	require.True(t, p.returning)
	conn, err := p.Conn(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	id, err := conn.Insert(context.Background(), "INSERT INTO races (race_name) VALUES (?)", "race_id", "Spring 5K")
	require.NoError(t, err)
	assert.EqualValues(t, 77, id)
	assert.Equal(t, "INSERT INTO races (race_name) VALUES ('Spring 5K') RETURNING race_id", srv.lastQuery())
	assert.Equal(t, 1, srv.commits)
}

func TestNewBunPoolPingsServer(t *testing.T) {
	ep := Endpoint{Kind: Local, Host: "localhost", Port: 5432, PoolSize: LocalPoolSize}

	srv := &stubServer{}
	p, err := newBunPool(context.Background(), sql.OpenDB(srv), pgdialect.New(), ep, zap.NewNop(), true)
	require.NoError(t, err)
	assert.Equal(t, LocalPoolSize, p.db.Stats().MaxOpenConnections)
	assert.True(t, p.returning)
	assert.Equal(t, DefaultAcquireTimeout, p.acquireTimeout)
	require.NoError(t, p.Close())

	down := &stubServer{pingErr: errors.New("server is starting up")}
	sqldb := sql.OpenDB(down)
	p, err = newBunPool(context.Background(), sqldb, pgdialect.New(), ep, zap.NewNop(), false)
	require.Error(t, err)
	assert.Nil(t, p)
	assert.Contains(t, err.Error(), "ping local database at localhost:5432")
	assert.ErrorContains(t, sqldb.Ping(), "database is closed")
}

func TestOpenSQLRejectsUnknownDriver(t *testing.T) {
	_, _, err := openSQL(Endpoint{Driver: "sqlite"})
	assert.ErrorContains(t, err, `unsupported driver "sqlite"`)
}
