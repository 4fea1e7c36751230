package handlers

import (
	"context"
	"net/http"

	"fincil-server/src/logger"
	"fincil-server/src/middleware"
	"fincil-server/src/models"

	"github.com/rs/zerolog"
)

// Store is the account, profile and transaction persistence the HTTP layer
// needs. Both the Postgres and the SQL stores implement it.
type Store interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, req models.RegisterRequest, hashedPassword string) (*models.User, error)
	GetUserByID(ctx context.Context, userID int64) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	UpdateUserLastLogin(ctx context.Context, userID int64) error
	UpdateUserPassword(ctx context.Context, userID int64, hashedPassword string) error

	GetProfile(ctx context.Context, userID int64) (models.Profile, error)
	CreateProfile(ctx context.Context, p models.Profile) (models.Profile, error)
	UpdateProfile(ctx context.Context, p models.Profile) (models.Profile, error)

	ListTransactions(ctx context.Context, userID int64, f models.TransactionFilter) ([]models.Transaction, error)
	ImportTransactions(ctx context.Context, txns []models.Transaction) error

	CreateTransactionRule(ctx context.Context, rule *models.TransactionRule) (*models.TransactionRule, error)
	ListTransactionRules(ctx context.Context, userID int64) ([]models.TransactionRule, error)
	UpdateTransactionRule(ctx context.Context, rule *models.TransactionRule) (*models.TransactionRule, error)
	DeleteTransactionRule(ctx context.Context, userID, ruleID int64) error
}

// ProfileCache is the part of the profile cache handlers touch.
type ProfileCache interface {
	Invalidate(userID int64)
	ClearAll()
}

// requireUser returns the authenticated user id and the request logger, or
// writes a 401 and returns false.
func requireUser(w http.ResponseWriter, r *http.Request) (int64, zerolog.Logger, bool) {
	log := logger.FromContext(r.Context())
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return 0, log, false
	}
	return userID, log, true
}
