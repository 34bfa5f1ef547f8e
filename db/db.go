// Package db owns the pooled database connection of a TRMS process: it
// prefers the cloud endpoint, falls back to the local one and rebuilds the
// pool once when it runs out of connections.
package db

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/padraicbc/trms/config"
)

// Pool capacities and timeouts per endpoint.
const (
	CloudPoolSize     = 10
	LocalPoolSize     = 5
	CloudDialTimeout  = 10 * time.Second
	DefaultRetryDelay = time.Second
)

var (
	// ErrPoolExhausted marks a checkout that found no free connection.
	ErrPoolExhausted = errors.New("connection pool exhausted")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("database manager closed")
)

// Row is one result row keyed by column name.
type Row = map[string]any

// Conn is a connection checked out of a Pool. Close hands it back.
type Conn interface {
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
	// Scan runs a read statement and scans the result into dest, a pointer
	// to a bun model, a slice of models or scalar values.
	Scan(ctx context.Context, dest any, query string, args ...any) error
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Insert(ctx context.Context, query, idColumn string, args ...any) (int64, error)
	CreateTable(ctx context.Context, model any) error
	Close() error
}

// Pool hands out connections up to a fixed capacity.
type Pool interface {
	Conn(ctx context.Context) (Conn, error)
	Close() error
}

// Opener builds a pool for ep and makes sure the server answers.
type Opener func(ctx context.Context, ep Endpoint) (Pool, error)

// EndpointKind says which configured server an Endpoint points at.
type EndpointKind string

const (
	Cloud EndpointKind = "cloud"
	Local EndpointKind = "local"
)

// Endpoint is everything needed to open one pool.
type Endpoint struct {
	Kind        EndpointKind
	Driver      string
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSLMode     string
	PoolSize    int
	DialTimeout time.Duration
}

// Addr is host:port.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func cloudEndpoint(cfg config.Database) Endpoint {
	return Endpoint{
		Kind:        Cloud,
		Driver:      cfg.Driver,
		Host:        cfg.CloudHost,
		Port:        cfg.CloudPort,
		User:        cfg.User,
		Password:    cfg.Password,
		Database:    cfg.Database,
		SSLMode:     cfg.SSLMode,
		PoolSize:    CloudPoolSize,
		DialTimeout: CloudDialTimeout,
	}
}

func localEndpoint(cfg config.Database) Endpoint {
	return Endpoint{
		Kind:     Local,
		Driver:   cfg.Driver,
		Host:     cfg.LocalHost,
		Port:     cfg.LocalPort,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Database,
		SSLMode:  cfg.SSLMode,
		PoolSize: LocalPoolSize,
	}
}
