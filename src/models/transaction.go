package models

import "time"

type TransactionSource string

const (
	SourceUploaded TransactionSource = "uploaded"
	SourceLogged   TransactionSource = "logged"
)

// Transaction amounts are signed: negative is money out.
type Transaction struct {
	ID          string            `json:"id"`
	UserID      int64             `json:"user_id"`
	Amount      float64           `json:"amount"`
	Description string            `json:"description"`
	Category    string            `json:"category"`
	Source      TransactionSource `json:"source"`
	Date        time.Time         `json:"date"`
	CreatedAt   time.Time         `json:"created_at"`
}

// TransactionFilter narrows a transaction listing. Zero values match
// everything; Limit 0 means no limit.
type TransactionFilter struct {
	Limit    int
	Category string
	Source   TransactionSource
	Since    *time.Time
}
