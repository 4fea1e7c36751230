package db

import (
	"context"
	"errors"
	"fmt"

	"fincil-server/src/db"
	"fincil-server/src/models"

	"github.com/jackc/pgx/v5"
)

const conversationColumns = `id, user_id, query, amount, cautious_opinion, growth_opinion, synthesis_opinion,
	verdict, outcome, appeal_count, last_verdict, state, context, created_at, updated_at`

func scanConversation(row pgx.Row) (models.Conversation, error) {
	var c models.Conversation
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Query,
		&c.Amount,
		&c.Opinions.Cautious,
		&c.Opinions.Growth,
		&c.Opinions.Synthesis,
		&c.Verdict,
		&c.Outcome,
		&c.AppealCount,
		&c.LastVerdict,
		&c.State,
		&c.Context,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, db.ErrNotFound
	}
	return c, err
}

func InsertConversation(ctx context.Context, q Querier, c *models.Conversation) error {
	query := `
		INSERT INTO conversations (id, user_id, query, amount, cautious_opinion, growth_opinion, synthesis_opinion,
			verdict, outcome, appeal_count, last_verdict, state, context, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := q.Exec(ctx, query,
		c.ID, c.UserID, c.Query, c.Amount,
		c.Opinions.Cautious, c.Opinions.Growth, c.Opinions.Synthesis,
		c.Verdict, c.Outcome, c.AppealCount, c.LastVerdict, c.State,
		jsonOrEmpty(c.Context), c.CreatedAt, c.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("conversation %s: %w", c.ID, db.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

func GetConversation(ctx context.Context, q Querier, conversationID string, userID int64) (models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1 AND user_id = $2`
	return scanConversation(q.QueryRow(ctx, query, conversationID, userID))
}

// lockConversation reads the row with FOR UPDATE; the lock is held until tx ends.
func lockConversation(ctx context.Context, tx pgx.Tx, conversationID string, userID int64) (models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1 AND user_id = $2 FOR UPDATE`
	return scanConversation(tx.QueryRow(ctx, query, conversationID, userID))
}

func ListConversations(ctx context.Context, q Querier, userID int64) ([]models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := q.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convs := []models.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func updateConversationAfterAppeal(ctx context.Context, q Querier, conversationID string, round int, verdict models.Verdict, state models.WorkflowState) error {
	query := `
		UPDATE conversations
		SET appeal_count = $2, last_verdict = $3, state = $4, updated_at = NOW()
		WHERE id = $1
	`
	_, err := q.Exec(ctx, query, conversationID, round, verdict, state)
	return err
}

// setConversationState moves a conversation that is still awaiting a decision
// to state. It reports whether a row changed.
func setConversationState(ctx context.Context, q Querier, conversationID string, userID int64, state models.WorkflowState) (bool, error) {
	query := `
		UPDATE conversations
		SET state = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND state = $4
	`
	cmd, err := q.Exec(ctx, query, conversationID, userID, state, models.StateAwaitingDecision)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}
