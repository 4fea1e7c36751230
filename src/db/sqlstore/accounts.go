package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"fincil-server/src/db"
	"fincil-server/src/models"
)

func (s *Store) CreateProfile(ctx context.Context, p models.Profile) (models.Profile, error) {
	now := formatTime(s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, income_type, risk_tolerance, financial_goal, monthly_income, monthly_expenses, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, string(p.IncomeType), string(p.RiskTolerance), p.FinancialGoal, p.MonthlyIncome, p.MonthlyExpenses, now, now)
	if s.dialect.isUniqueViolation(err) {
		return models.Profile{}, fmt.Errorf("profile for user %d: %w", p.UserID, db.ErrDuplicate)
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("failed to create profile: %w", err)
	}
	return s.GetProfile(ctx, p.UserID)
}

func (s *Store) UpdateProfile(ctx context.Context, p models.Profile) (models.Profile, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET income_type = ?, risk_tolerance = ?, financial_goal = ?, monthly_income = ?, monthly_expenses = ?, updated_at = ?
		WHERE user_id = ?`,
		string(p.IncomeType), string(p.RiskTolerance), p.FinancialGoal, p.MonthlyIncome, p.MonthlyExpenses,
		formatTime(s.now()), p.UserID)
	if err != nil {
		return models.Profile{}, fmt.Errorf("failed to update profile: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.Profile{}, db.ErrNotFound
	}
	return s.GetProfile(ctx, p.UserID)
}

const userColumns = `id, username, email, password_hash, super_admin, created_at, last_login`

func scanUser(row scanner) (*models.User, error) {
	var user models.User
	var hash, created string
	var lastLogin sql.NullString
	err := row.Scan(&user.ID, &user.Username, &user.Email, &hash, &user.SuperAdmin, &created, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	user.PasswordHash = []byte(hash)
	if user.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t, err := parseTime(lastLogin.String)
		if err != nil {
			return nil, err
		}
		user.LastLogin = &t
	}
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, req models.RegisterRequest, hashedPassword string) (*models.User, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, super_admin, created_at) VALUES (?, ?, ?, ?, ?)`,
		req.Username, req.Email, hashedPassword, 0, formatTime(s.now()))
	if s.dialect.isUniqueViolation(err) {
		return nil, fmt.Errorf("user %s: %w", req.Username, db.ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read user id: %w", err)
	}
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (s *Store) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID))
}

// GetUserByLogin accepts either a username or an email address.
func (s *Store) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(username) = LOWER(?) OR LOWER(email) = LOWER(?) ORDER BY id LIMIT 1`,
		login, login))
}

func (s *Store) UpdateUserLastLogin(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, formatTime(s.now()), userID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, userID int64, hashedPassword string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hashedPassword, userID)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return db.ErrNotFound
	}
	return nil
}

// SetSuperAdmin is used by tests and operators; there is no HTTP route for it.
func (s *Store) SetSuperAdmin(ctx context.Context, userID int64, superAdmin bool) error {
	flag := 0
	if superAdmin {
		flag = 1
	}
	_, err := s.db.ExecContext(ctx, `UPDATE users SET super_admin = ? WHERE id = ?`, flag, userID)
	return err
}

func (s *Store) CreateTransactionRule(ctx context.Context, rule *models.TransactionRule) (*models.TransactionRule, error) {
	created := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO transaction_rules (user_id, name, conditions, category, created_at) VALUES (?, ?, ?, ?, ?)`,
		rule.UserID, rule.Name, string(rule.Conditions), rule.Category, formatTime(created))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read rule id: %w", err)
	}
	r := *rule
	r.ID = id
	r.CreatedAt, _ = parseTime(formatTime(created))
	return &r, nil
}

func (s *Store) ListTransactionRules(ctx context.Context, userID int64) ([]models.TransactionRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, conditions, category, created_at FROM transaction_rules WHERE user_id = ? ORDER BY id`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := []models.TransactionRule{}
	for rows.Next() {
		var r models.TransactionRule
		var conditions, created string
		if err := rows.Scan(&r.ID, &r.UserID, &r.Name, &conditions, &r.Category, &created); err != nil {
			return nil, err
		}
		r.Conditions = json.RawMessage(conditions)
		if r.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *Store) GetTransactionRule(ctx context.Context, userID, ruleID int64) (*models.TransactionRule, error) {
	var r models.TransactionRule
	var conditions, created string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, conditions, category, created_at FROM transaction_rules WHERE id = ? AND user_id = ?`,
		ruleID, userID).Scan(&r.ID, &r.UserID, &r.Name, &conditions, &r.Category, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction rule %d: %w", ruleID, db.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	r.Conditions = json.RawMessage(conditions)
	if r.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) UpdateTransactionRule(ctx context.Context, rule *models.TransactionRule) (*models.TransactionRule, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transaction_rules SET name = ?, conditions = ?, category = ? WHERE id = ? AND user_id = ?`,
		rule.Name, string(rule.Conditions), rule.Category, rule.ID, rule.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction rule: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("transaction rule %d: %w", rule.ID, db.ErrNotFound)
	}
	return s.GetTransactionRule(ctx, rule.UserID, rule.ID)
}

func (s *Store) DeleteTransactionRule(ctx context.Context, userID, ruleID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transaction_rules WHERE id = ? AND user_id = ?`, ruleID, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("transaction rule %d: %w", ruleID, db.ErrNotFound)
	}
	return nil
}
