package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/padraicbc/trms/models"
)

// ErrNotFound is returned when a requested user does not exist.
var ErrNotFound = errors.New("not found")

// Users stores web API accounts.
type Users struct {
	db  Executor
	log *zap.Logger
}

// NewUsers returns a Users backed by exec.
func NewUsers(exec Executor, log *zap.Logger) *Users {
	return &Users{db: exec, log: log}
}

// ByUsername returns the user or ErrNotFound.
func (u *Users) ByUsername(ctx context.Context, username string) (*models.User, error) {
	user := new(models.User)
	err := u.db.QueryInto(ctx, user, "SELECT * FROM users WHERE username = ?", username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// Save sets the password hash of username, creating the user if needed.
func (u *Users) Save(ctx context.Context, username, hash string) error {
	n, err := u.db.ExecuteUpdate(ctx, "UPDATE users SET password = ? WHERE username = ?", hash, username)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n > 0 {
		u.log.Info("user password updated", zap.String("username", username))
		return nil
	}
	if _, err := u.db.ExecuteInsert(ctx, "INSERT INTO users (username, password) VALUES (?, ?)", "id", username, hash); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.log.Info("user created", zap.String("username", username))
	return nil
}
