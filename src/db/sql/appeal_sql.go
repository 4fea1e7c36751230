package db

import (
	"context"
	"encoding/json"
	"fmt"

	"fincil-server/src/db"
	"fincil-server/src/models"
)

func InsertAppealRound(ctx context.Context, q Querier, r *models.AppealRound) error {
	prior, err := json.Marshal(r.PriorTranscript)
	if err != nil {
		return fmt.Errorf("failed to encode prior transcript: %w", err)
	}
	next, err := json.Marshal(r.NewTranscript)
	if err != nil {
		return fmt.Errorf("failed to encode new transcript: %w", err)
	}

	query := `
		INSERT INTO appeal_rounds (id, conversation_id, user_id, round, justification, prior_transcript,
			new_transcript, verdict, outcome, context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = q.Exec(ctx, query,
		r.ID, r.ConversationID, r.UserID, r.Round, r.Justification, prior, next,
		r.Verdict, r.Outcome, jsonOrEmpty(r.Context), r.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("round %d of conversation %s: %w", r.Round, r.ConversationID, db.ErrRoundConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert appeal round: %w", err)
	}
	return nil
}

func ListAppealRounds(ctx context.Context, q Querier, conversationID string) ([]models.AppealRound, error) {
	query := `
		SELECT id, conversation_id, user_id, round, justification, prior_transcript, new_transcript,
			verdict, outcome, context, created_at
		FROM appeal_rounds
		WHERE conversation_id = $1
		ORDER BY round
	`
	rows, err := q.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rounds := []models.AppealRound{}
	for rows.Next() {
		var r models.AppealRound
		var prior, next []byte
		err := rows.Scan(&r.ID, &r.ConversationID, &r.UserID, &r.Round, &r.Justification, &prior, &next,
			&r.Verdict, &r.Outcome, &r.Context, &r.CreatedAt)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(prior, &r.PriorTranscript); err != nil {
			return nil, fmt.Errorf("failed to decode prior transcript: %w", err)
		}
		if err := json.Unmarshal(next, &r.NewTranscript); err != nil {
			return nil, fmt.Errorf("failed to decode new transcript: %w", err)
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}
