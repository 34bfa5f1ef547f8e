package handlers

import (
	"context"

	"go.uber.org/zap"

	"github.com/padraicbc/trms/db"
	"github.com/padraicbc/trms/models"
)

// RaceStore is the race accessor behind the race routes.
type RaceStore interface {
	Create(ctx context.Context, r *models.Race) (int64, bool)
	GetAll(ctx context.Context) []models.Race
	GetByID(ctx context.Context, id int64) *models.Race
	Update(ctx context.Context, id int64, r *models.Race) bool
	Delete(ctx context.Context, id int64) bool
	GetUpcoming(ctx context.Context) []models.Race
}

// UserStore looks up and saves API accounts.
type UserStore interface {
	ByUsername(ctx context.Context, username string) (*models.User, error)
	Save(ctx context.Context, username, hash string) error
}

// StatusReporter reports the database binding.
type StatusReporter interface {
	Status(ctx context.Context) db.Status
}

// Handler holds shared dependencies used by all route handlers.
type Handler struct {
	races  RaceStore
	users  UserStore
	status StatusReporter
	log    *zap.Logger
	JWTKey []byte
}

// New creates a Handler over the given stores and JWT signing key.
func New(races RaceStore, users UserStore, status StatusReporter, jwtKey []byte, log *zap.Logger) *Handler {
	return &Handler{races: races, users: users, status: status, JWTKey: jwtKey, log: log}
}
