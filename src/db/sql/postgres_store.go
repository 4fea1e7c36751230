package db

import (
	"context"
	"errors"
	"fmt"

	"fincil-server/src/db"
	"fincil-server/src/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore backs the workflow and the HTTP handlers with a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID int64) (models.Profile, error) {
	return GetProfile(ctx, s.pool, userID)
}

func (s *PostgresStore) CreateProfile(ctx context.Context, p models.Profile) (models.Profile, error) {
	return CreateProfile(ctx, s.pool, p)
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, p models.Profile) (models.Profile, error) {
	return UpdateProfile(ctx, s.pool, p)
}

func (s *PostgresStore) ListRecentTransactions(ctx context.Context, userID int64, limit int) ([]models.Transaction, error) {
	return ListRecentTransactions(ctx, s.pool, userID, limit)
}

func (s *PostgresStore) ListTransactions(ctx context.Context, userID int64, f models.TransactionFilter) ([]models.Transaction, error) {
	return ListTransactions(ctx, s.pool, userID, f)
}

func (s *PostgresStore) ImportTransactions(ctx context.Context, txns []models.Transaction) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return InsertTransactions(ctx, tx, txns)
	})
}

func (s *PostgresStore) CreateConversation(ctx context.Context, c *models.Conversation) error {
	return InsertConversation(ctx, s.pool, c)
}

func (s *PostgresStore) GetConversation(ctx context.Context, conversationID string, userID int64) (models.Conversation, error) {
	return GetConversation(ctx, s.pool, conversationID, userID)
}

func (s *PostgresStore) ListConversations(ctx context.Context, userID int64) ([]models.Conversation, error) {
	return ListConversations(ctx, s.pool, userID)
}

func (s *PostgresStore) ListAppealRounds(ctx context.Context, conversationID string) ([]models.AppealRound, error) {
	return ListAppealRounds(ctx, s.pool, conversationID)
}

func (s *PostgresStore) RecordAppeal(ctx context.Context, round *models.AppealRound, state models.WorkflowState) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		conv, err := lockConversation(ctx, tx, round.ConversationID, round.UserID)
		if err != nil {
			return err
		}
		if conv.State != models.StateAwaitingDecision || conv.LastVerdict != models.VerdictRejected {
			return db.ErrStaleState
		}
		if conv.AppealCount != round.Round-1 {
			return fmt.Errorf("expected round %d, got %d: %w", conv.AppealCount+1, round.Round, db.ErrRoundConflict)
		}
		if err := InsertAppealRound(ctx, tx, round); err != nil {
			return err
		}
		return updateConversationAfterAppeal(ctx, tx, conv.ID, round.Round, round.Verdict, state)
	})
}

func (s *PostgresStore) RecordPurchase(ctx context.Context, conversationID string, txn *models.Transaction) (models.Profile, error) {
	var profile models.Profile
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		conv, err := lockConversation(ctx, tx, conversationID, txn.UserID)
		if err != nil {
			return err
		}
		if conv.State != models.StateAwaitingDecision {
			return db.ErrStaleState
		}
		if err := InsertTransaction(ctx, tx, txn); err != nil {
			return err
		}
		profile, err = getProfileForUpdate(ctx, tx, txn.UserID)
		if err != nil {
			return fmt.Errorf("profile: %w", err)
		}
		profile.MonthlyExpenses -= txn.Amount
		if err := UpdateProfileExpenses(ctx, tx, txn.UserID, profile.MonthlyExpenses); err != nil {
			return err
		}
		changed, err := setConversationState(ctx, tx, conversationID, txn.UserID, models.StateBought)
		if err != nil {
			return err
		}
		if !changed {
			return db.ErrStaleState
		}
		return nil
	})
	return profile, err
}

func (s *PostgresStore) RecordSaved(ctx context.Context, conversationID string, userID int64) error {
	changed, err := setConversationState(ctx, s.pool, conversationID, userID, models.StateSaved)
	if err != nil {
		return err
	}
	if changed {
		return nil
	}
	if _, err := GetConversation(ctx, s.pool, conversationID, userID); err != nil {
		return err
	}
	return db.ErrStaleState
}

func (s *PostgresStore) CreateUser(ctx context.Context, req models.RegisterRequest, hashedPassword string) (*models.User, error) {
	return CreateUser(ctx, s.pool, req, hashedPassword)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	return GetUserByID(ctx, s.pool, userID)
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID int64, hashedPassword string) error {
	return UpdateUserPassword(ctx, s.pool, userID, hashedPassword)
}

// GetUserByLogin accepts either a username or an email address.
func (s *PostgresStore) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	user, err := GetUserByUsername(ctx, s.pool, login)
	if errors.Is(err, db.ErrNotFound) {
		return GetUserByEmail(ctx, s.pool, login)
	}
	return user, err
}

func (s *PostgresStore) UpdateUserLastLogin(ctx context.Context, userID int64) error {
	return UpdateUserLastLogin(ctx, s.pool, userID)
}

func (s *PostgresStore) CreateTransactionRule(ctx context.Context, rule *models.TransactionRule) (*models.TransactionRule, error) {
	return CreateTransactionRule(ctx, s.pool, rule)
}

func (s *PostgresStore) ListTransactionRules(ctx context.Context, userID int64) ([]models.TransactionRule, error) {
	return GetAllTransactionRules(ctx, s.pool, userID)
}

func (s *PostgresStore) GetTransactionRule(ctx context.Context, userID, ruleID int64) (*models.TransactionRule, error) {
	return GetTransactionRuleByID(ctx, s.pool, userID, ruleID)
}

func (s *PostgresStore) UpdateTransactionRule(ctx context.Context, rule *models.TransactionRule) (*models.TransactionRule, error) {
	return UpdateTransactionRule(ctx, s.pool, rule)
}

func (s *PostgresStore) DeleteTransactionRule(ctx context.Context, userID, ruleID int64) error {
	return DeleteTransactionRule(ctx, s.pool, userID, ruleID)
}
