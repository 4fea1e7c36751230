package db

import (
	"context"
	"errors"
	"fmt"

	"fincil-server/src/db"
	"fincil-server/src/models"

	"github.com/jackc/pgx/v5"
)

const profileColumns = `user_id, income_type, risk_tolerance, financial_goal, monthly_income, monthly_expenses, created_at, updated_at`

func scanProfile(row pgx.Row) (models.Profile, error) {
	var p models.Profile
	err := row.Scan(
		&p.UserID,
		&p.IncomeType,
		&p.RiskTolerance,
		&p.FinancialGoal,
		&p.MonthlyIncome,
		&p.MonthlyExpenses,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, db.ErrNotFound
	}
	return p, err
}

func GetProfile(ctx context.Context, q Querier, userID int64) (models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`
	return scanProfile(q.QueryRow(ctx, query, userID))
}

func getProfileForUpdate(ctx context.Context, tx pgx.Tx, userID int64) (models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1 FOR UPDATE`
	return scanProfile(tx.QueryRow(ctx, query, userID))
}

func CreateProfile(ctx context.Context, q Querier, p models.Profile) (models.Profile, error) {
	query := `
		INSERT INTO profiles (user_id, income_type, risk_tolerance, financial_goal, monthly_income, monthly_expenses)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + profileColumns
	created, err := scanProfile(q.QueryRow(ctx, query,
		p.UserID, p.IncomeType, p.RiskTolerance, p.FinancialGoal, p.MonthlyIncome, p.MonthlyExpenses))
	if isUniqueViolation(err) {
		return created, fmt.Errorf("profile for user %d: %w", p.UserID, db.ErrDuplicate)
	}
	return created, err
}

func UpdateProfile(ctx context.Context, q Querier, p models.Profile) (models.Profile, error) {
	query := `
		UPDATE profiles
		SET income_type = $2, risk_tolerance = $3, financial_goal = $4,
		    monthly_income = $5, monthly_expenses = $6, updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + profileColumns
	return scanProfile(q.QueryRow(ctx, query,
		p.UserID, p.IncomeType, p.RiskTolerance, p.FinancialGoal, p.MonthlyIncome, p.MonthlyExpenses))
}

// UpdateProfileExpenses sets the cached monthly expenses to an absolute value.
func UpdateProfileExpenses(ctx context.Context, q Querier, userID int64, monthlyExpenses float64) error {
	query := `UPDATE profiles SET monthly_expenses = $2, updated_at = NOW() WHERE user_id = $1`
	cmd, err := q.Exec(ctx, query, userID, monthlyExpenses)
	if err != nil {
		return fmt.Errorf("failed to update monthly expenses: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}
