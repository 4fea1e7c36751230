package workflow

import (
	"context"

	"fincil-server/src/models"
)

// Store is the persistence the workflow needs. Not-found results are reported
// with db.ErrNotFound. The Record methods each run in a single database
// transaction and lock the conversation row for its duration.
type Store interface {
	GetProfile(ctx context.Context, userID int64) (models.Profile, error)
	ListRecentTransactions(ctx context.Context, userID int64, limit int) ([]models.Transaction, error)

	CreateConversation(ctx context.Context, c *models.Conversation) error
	GetConversation(ctx context.Context, conversationID string, userID int64) (models.Conversation, error)
	ListConversations(ctx context.Context, userID int64) ([]models.Conversation, error)
	ListAppealRounds(ctx context.Context, conversationID string) ([]models.AppealRound, error)

	// RecordAppeal inserts round and moves the conversation to state. It
	// fails with db.ErrRoundConflict unless the stored appeal count is
	// round.Round-1, and with db.ErrStaleState unless the conversation is
	// awaiting a decision on a REJECTED verdict.
	RecordAppeal(ctx context.Context, round *models.AppealRound, state models.WorkflowState) error

	// RecordPurchase inserts txn, adds -txn.Amount to the profile's monthly
	// expenses and marks the conversation bought. It returns the updated
	// profile.
	RecordPurchase(ctx context.Context, conversationID string, txn *models.Transaction) (models.Profile, error)

	RecordSaved(ctx context.Context, conversationID string, userID int64) error
}

// ProfileCache holds profile snapshots. Generation is read before the
// database read and passed to Set, which drops the row if the profile was
// invalidated in between.
type ProfileCache interface {
	Get(userID int64) (models.Profile, bool)
	Generation(userID int64) uint64
	Set(p models.Profile, generation uint64) bool
	Invalidate(userID int64)
}
