package models

import (
	"encoding/json"
	"time"
)

type TranscriptEntry struct {
	Speaker string `json:"speaker"` // cautious, growth, synthesis or user
	Round   int    `json:"round"`
	Content string `json:"content"`
}

type AppealRound struct {
	ID              string            `json:"id"`
	ConversationID  string            `json:"conversation_id"`
	UserID          int64             `json:"user_id"`
	Round           int               `json:"round"`
	Justification   string            `json:"justification"`
	PriorTranscript []TranscriptEntry `json:"prior_transcript"`
	NewTranscript   []TranscriptEntry `json:"new_transcript"`
	Verdict         Verdict           `json:"verdict"`
	Outcome         Outcome           `json:"outcome"`
	Context         json.RawMessage   `json:"context"` // JSONB
	CreatedAt       time.Time         `json:"created_at"`
}
