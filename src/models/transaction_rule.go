package models

import (
	"encoding/json"
	"time"
)

type TransactionRule struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"user_id"`
	Name       string          `json:"name"`
	Conditions json.RawMessage `json:"conditions"` // JSONB
	Category   string          `json:"category"`
	CreatedAt  time.Time       `json:"created_at"`
}
