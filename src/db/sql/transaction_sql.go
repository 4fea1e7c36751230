package db

import (
	"context"
	"fmt"
	"strings"

	"fincil-server/src/models"

	"github.com/jackc/pgx/v5"
)

const transactionColumns = `id, user_id, amount, description, category, source, date, created_at`

func InsertTransaction(ctx context.Context, q Querier, t *models.Transaction) error {
	query := `
		INSERT INTO transactions (id, user_id, amount, description, category, source, date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := q.Exec(ctx, query, t.ID, t.UserID, t.Amount, t.Description, t.Category, t.Source, t.Date, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// ListRecentTransactions returns the newest transactions first.
func ListRecentTransactions(ctx context.Context, q Querier, userID int64, limit int) ([]models.Transaction, error) {
	return ListTransactions(ctx, q, userID, models.TransactionFilter{Limit: limit})
}

func ListTransactions(ctx context.Context, q Querier, userID int64, f models.TransactionFilter) ([]models.Transaction, error) {
	where := []string{"user_id = $1"}
	args := []any{userID}
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("LOWER(category) = LOWER($%d)", len(args)))
	}
	if f.Source != "" {
		args = append(args, f.Source)
		where = append(where, fmt.Sprintf("source = $%d", len(args)))
	}
	if f.Since != nil {
		args = append(args, *f.Since)
		where = append(where, fmt.Sprintf("date >= $%d", len(args)))
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY date DESC, created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txns := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Description, &t.Category, &t.Source, &t.Date, &t.CreatedAt); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// InsertTransactions writes a whole import in one transaction.
func InsertTransactions(ctx context.Context, tx pgx.Tx, txns []models.Transaction) error {
	for i := range txns {
		if err := InsertTransaction(ctx, tx, &txns[i]); err != nil {
			return err
		}
	}
	return nil
}
