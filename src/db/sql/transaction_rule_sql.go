package db

import (
	"context"
	"errors"
	"fmt"

	"fincil-server/src/db"
	"fincil-server/src/models"

	"github.com/jackc/pgx/v5"
)

func CreateTransactionRule(ctx context.Context, q Querier, rule *models.TransactionRule) (*models.TransactionRule, error) {
	query := `
		INSERT INTO transaction_rules (user_id, name, conditions, category)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, name, conditions, category, created_at
	`
	var r models.TransactionRule
	err := q.QueryRow(ctx, query, rule.UserID, rule.Name, rule.Conditions, rule.Category).
		Scan(&r.ID, &r.UserID, &r.Name, &r.Conditions, &r.Category, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func GetTransactionRuleByID(ctx context.Context, q Querier, userID, ruleID int64) (*models.TransactionRule, error) {
	query := `
		SELECT id, user_id, name, conditions, category, created_at
		FROM transaction_rules
		WHERE id = $1 AND user_id = $2
	`
	var r models.TransactionRule
	err := q.QueryRow(ctx, query, ruleID, userID).
		Scan(&r.ID, &r.UserID, &r.Name, &r.Conditions, &r.Category, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transaction rule %d: %w", ruleID, db.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func GetAllTransactionRules(ctx context.Context, q Querier, userID int64) ([]models.TransactionRule, error) {
	query := `
		SELECT id, user_id, name, conditions, category, created_at
		FROM transaction_rules
		WHERE user_id = $1
		ORDER BY id
	`
	rows, err := q.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := []models.TransactionRule{}
	for rows.Next() {
		var r models.TransactionRule
		err := rows.Scan(&r.ID, &r.UserID, &r.Name, &r.Conditions, &r.Category, &r.CreatedAt)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func UpdateTransactionRule(ctx context.Context, q Querier, rule *models.TransactionRule) (*models.TransactionRule, error) {
	query := `
		UPDATE transaction_rules
		SET name = $1, conditions = $2, category = $3
		WHERE id = $4 AND user_id = $5
		RETURNING id, user_id, name, conditions, category, created_at
	`
	var r models.TransactionRule
	err := q.QueryRow(ctx, query, rule.Name, rule.Conditions, rule.Category, rule.ID, rule.UserID).
		Scan(&r.ID, &r.UserID, &r.Name, &r.Conditions, &r.Category, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transaction rule %d: %w", rule.ID, db.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func DeleteTransactionRule(ctx context.Context, q Querier, userID, ruleID int64) error {
	query := `DELETE FROM transaction_rules WHERE id = $1 AND user_id = $2`
	cmd, err := q.Exec(ctx, query, ruleID, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("transaction rule %d: %w", ruleID, db.ErrNotFound)
	}
	return nil
}
