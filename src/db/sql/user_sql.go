package db

import (
	"context"
	"errors"
	"fmt"

	"fincil-server/src/db"
	"fincil-server/src/models"

	"github.com/jackc/pgx/v5"
)

const userColumns = `id, username, email, password_hash, super_admin, created_at, last_login`

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.SuperAdmin,
		&user.CreatedAt,
		&user.LastLogin,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("query error: %w", err)
	}
	return &user, nil
}

func GetUserByID(ctx context.Context, q Querier, userID int64) (*models.User, error) {
	return scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
}

func GetUserByUsername(ctx context.Context, q Querier, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(username) = LOWER($1)`
	return scanUser(q.QueryRow(ctx, query, username))
}

func GetUserByEmail(ctx context.Context, q Querier, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanUser(q.QueryRow(ctx, query, email))
}

func CreateUser(ctx context.Context, q Querier, req models.RegisterRequest, hashedPassword string) (*models.User, error) {
	query := `
		INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING ` + userColumns
	user, err := scanUser(q.QueryRow(ctx, query, req.Username, req.Email, hashedPassword))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user %s: %w", req.Username, db.ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func UpdateUserLastLogin(ctx context.Context, q Querier, userID int64) error {
	_, err := q.Exec(ctx, `UPDATE users SET last_login = NOW() WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

func UpdateUserPassword(ctx context.Context, q Querier, userID int64, hashedPassword string) error {
	cmd, err := q.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, hashedPassword)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}
