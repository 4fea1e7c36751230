package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"fincil-server/src/db"
	"fincil-server/src/models"
)

const profileColumns = `user_id, income_type, risk_tolerance, financial_goal, monthly_income, monthly_expenses, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (models.Profile, error) {
	var p models.Profile
	var created, updated string
	err := row.Scan(&p.UserID, &p.IncomeType, &p.RiskTolerance, &p.FinancialGoal,
		&p.MonthlyIncome, &p.MonthlyExpenses, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return p, db.ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if p.CreatedAt, err = parseTime(created); err != nil {
		return p, err
	}
	p.UpdatedAt, err = parseTime(updated)
	return p, err
}

func (s *Store) getProfile(ctx context.Context, q queryer, userID int64, lock bool) (models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = ?`
	if lock {
		query += s.dialect.forUpdate
	}
	return scanProfile(q.QueryRowContext(ctx, query, userID))
}

func (s *Store) GetProfile(ctx context.Context, userID int64) (models.Profile, error) {
	return s.getProfile(ctx, s.db, userID, false)
}

// UpdateProfileExpenses sets the cached monthly expenses to an absolute value.
func (s *Store) UpdateProfileExpenses(ctx context.Context, userID int64, monthlyExpenses float64) error {
	return s.updateProfileExpenses(ctx, s.db, userID, monthlyExpenses)
}

func (s *Store) updateProfileExpenses(ctx context.Context, q queryer, userID int64, monthlyExpenses float64) error {
	res, err := q.ExecContext(ctx, `UPDATE profiles SET monthly_expenses = ?, updated_at = ? WHERE user_id = ?`,
		monthlyExpenses, formatTime(s.now()), userID)
	if err != nil {
		return fmt.Errorf("failed to update monthly expenses: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (s *Store) InsertTransaction(ctx context.Context, t *models.Transaction) error {
	return insertTransaction(ctx, s.db, t)
}

func insertTransaction(ctx context.Context, q queryer, t *models.Transaction) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, amount, description, category, source, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Amount, t.Description, t.Category, string(t.Source), formatTime(t.Date), formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (s *Store) ImportTransactions(ctx context.Context, txns []models.Transaction) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for i := range txns {
			if err := insertTransaction(ctx, tx, &txns[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListRecentTransactions(ctx context.Context, userID int64, limit int) ([]models.Transaction, error) {
	return s.ListTransactions(ctx, userID, models.TransactionFilter{Limit: limit})
}

func (s *Store) ListTransactions(ctx context.Context, userID int64, f models.TransactionFilter) ([]models.Transaction, error) {
	where := []string{"user_id = ?"}
	args := []any{userID}
	if f.Category != "" {
		where = append(where, "LOWER(category) = LOWER(?)")
		args = append(args, f.Category)
	}
	if f.Source != "" {
		where = append(where, "source = ?")
		args = append(args, string(f.Source))
	}
	if f.Since != nil {
		where = append(where, "date >= ?")
		args = append(args, formatTime(*f.Since))
	}
	query := `SELECT id, user_id, amount, description, category, source, date, created_at FROM transactions WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY date DESC, created_at DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txns := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		var date, created string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Description, &t.Category, &t.Source, &date, &created); err != nil {
			return nil, err
		}
		if t.Date, err = parseTime(date); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

const conversationColumns = `id, user_id, query, amount, cautious_opinion, growth_opinion, synthesis_opinion,
	verdict, outcome, appeal_count, last_verdict, state, context, created_at, updated_at`

func scanConversation(row scanner) (models.Conversation, error) {
	var c models.Conversation
	var amount sql.NullFloat64
	var evalCtx, created, updated string
	err := row.Scan(&c.ID, &c.UserID, &c.Query, &amount,
		&c.Opinions.Cautious, &c.Opinions.Growth, &c.Opinions.Synthesis,
		&c.Verdict, &c.Outcome, &c.AppealCount, &c.LastVerdict, &c.State,
		&evalCtx, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return c, db.ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if amount.Valid {
		v := amount.Float64
		c.Amount = &v
	}
	c.Context = json.RawMessage(evalCtx)
	if c.CreatedAt, err = parseTime(created); err != nil {
		return c, err
	}
	c.UpdatedAt, err = parseTime(updated)
	return c, err
}

func (s *Store) InsertConversation(ctx context.Context, c *models.Conversation) error {
	var amount sql.NullFloat64
	if c.Amount != nil {
		amount = sql.NullFloat64{Float64: *c.Amount, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, query, amount, cautious_opinion, growth_opinion, synthesis_opinion,
			verdict, outcome, appeal_count, last_verdict, state, context, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Query, amount,
		c.Opinions.Cautious, c.Opinions.Growth, c.Opinions.Synthesis,
		string(c.Verdict), string(c.Outcome), c.AppealCount, string(c.LastVerdict), string(c.State),
		jsonOrEmpty(c.Context), formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if s.dialect.isUniqueViolation(err) {
		return fmt.Errorf("conversation %s: %w", c.ID, db.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

// CreateConversation stores a newly evaluated conversation.
func (s *Store) CreateConversation(ctx context.Context, c *models.Conversation) error {
	return s.InsertConversation(ctx, c)
}

func (s *Store) getConversation(ctx context.Context, q queryer, conversationID string, userID int64, lock bool) (models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ? AND user_id = ?`
	if lock {
		query += s.dialect.forUpdate
	}
	return scanConversation(q.QueryRowContext(ctx, query, conversationID, userID))
}

func (s *Store) GetConversation(ctx context.Context, conversationID string, userID int64) (models.Conversation, error) {
	return s.getConversation(ctx, s.db, conversationID, userID, false)
}

func (s *Store) ListConversations(ctx context.Context, userID int64) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE user_id = ? ORDER BY created_at DESC`, userID)
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

func (s *Store) InsertAppealRound(ctx context.Context, r *models.AppealRound) error {
	return s.insertAppealRound(ctx, s.db, r)
}

func (s *Store) insertAppealRound(ctx context.Context, q queryer, r *models.AppealRound) error {
	prior, err := json.Marshal(r.PriorTranscript)
	if err != nil {
		return fmt.Errorf("failed to encode prior transcript: %w", err)
	}
	next, err := json.Marshal(r.NewTranscript)
	if err != nil {
		return fmt.Errorf("failed to encode new transcript: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO appeal_rounds (id, conversation_id, user_id, round, justification, prior_transcript,
			new_transcript, verdict, outcome, context, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ConversationID, r.UserID, r.Round, r.Justification, string(prior), string(next),
		string(r.Verdict), string(r.Outcome), jsonOrEmpty(r.Context), formatTime(r.CreatedAt))
	if s.dialect.isUniqueViolation(err) {
		return fmt.Errorf("round %d of conversation %s: %w", r.Round, r.ConversationID, db.ErrRoundConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert appeal round: %w", err)
	}
	return nil
}

func (s *Store) ListAppealRounds(ctx context.Context, conversationID string) ([]models.AppealRound, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, user_id, round, justification, prior_transcript, new_transcript,
			verdict, outcome, context, created_at
		FROM appeal_rounds
		WHERE conversation_id = ?
		ORDER BY round`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rounds := []models.AppealRound{}
	for rows.Next() {
		var r models.AppealRound
		var prior, next, evalCtx, created string
		err := rows.Scan(&r.ID, &r.ConversationID, &r.UserID, &r.Round, &r.Justification, &prior, &next,
			&r.Verdict, &r.Outcome, &evalCtx, &created)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(prior), &r.PriorTranscript); err != nil {
			return nil, fmt.Errorf("failed to decode prior transcript: %w", err)
		}
		if err := json.Unmarshal([]byte(next), &r.NewTranscript); err != nil {
			return nil, fmt.Errorf("failed to decode new transcript: %w", err)
		}
		r.Context = json.RawMessage(evalCtx)
		if r.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

func (s *Store) RecordAppeal(ctx context.Context, round *models.AppealRound, state models.WorkflowState) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		conv, err := s.getConversation(ctx, tx, round.ConversationID, round.UserID, true)
		if err != nil {
			return err
		}
		if conv.State != models.StateAwaitingDecision || conv.LastVerdict != models.VerdictRejected {
			return db.ErrStaleState
		}
		if conv.AppealCount != round.Round-1 {
			return fmt.Errorf("expected round %d, got %d: %w", conv.AppealCount+1, round.Round, db.ErrRoundConflict)
		}
		if err := s.insertAppealRound(ctx, tx, round); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE conversations SET appeal_count = ?, last_verdict = ?, state = ?, updated_at = ? WHERE id = ?`,
			round.Round, string(round.Verdict), string(state), formatTime(s.now()), conv.ID)
		return err
	})
}

func (s *Store) RecordPurchase(ctx context.Context, conversationID string, txn *models.Transaction) (models.Profile, error) {
	var profile models.Profile
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		conv, err := s.getConversation(ctx, tx, conversationID, txn.UserID, true)
		if err != nil {
			return err
		}
		if conv.State != models.StateAwaitingDecision {
			return db.ErrStaleState
		}
		if err := insertTransaction(ctx, tx, txn); err != nil {
			return err
		}
		profile, err = s.getProfile(ctx, tx, txn.UserID, true)
		if err != nil {
			return fmt.Errorf("profile: %w", err)
		}
		profile.MonthlyExpenses -= txn.Amount
		if err := s.updateProfileExpenses(ctx, tx, txn.UserID, profile.MonthlyExpenses); err != nil {
			return err
		}
		return s.setState(ctx, tx, conversationID, txn.UserID, models.StateBought)
	})
	return profile, err
}

func (s *Store) RecordSaved(ctx context.Context, conversationID string, userID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.getConversation(ctx, tx, conversationID, userID, true); err != nil {
			return err
		}
		return s.setState(ctx, tx, conversationID, userID, models.StateSaved)
	})
}

// setState moves a conversation that is still awaiting a decision to state.
func (s *Store) setState(ctx context.Context, tx *sql.Tx, conversationID string, userID int64, state models.WorkflowState) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET state = ?, updated_at = ? WHERE id = ? AND user_id = ? AND state = ?`,
		string(state), formatTime(s.now()), conversationID, userID, string(models.StateAwaitingDecision))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return db.ErrStaleState
	}
	return nil
}
