// Package store maps races and users to rows through the connection manager.
//
// Race methods never return errors: failures are logged and reported as an
// empty result or false, so callers only need to render them.
package store

import (
	"context"

	"github.com/padraicbc/trms/db"
)

// Executor is the part of *db.Manager the stores use.
type Executor interface {
	QueryInto(ctx context.Context, dest any, query string, args ...any) error
	ExecuteUpdate(ctx context.Context, query string, args ...any) (int64, error)
	ExecuteInsert(ctx context.Context, query, idColumn string, args ...any) (int64, error)
}

var _ Executor = (*db.Manager)(nil)
