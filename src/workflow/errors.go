package workflow

import "errors"

var (
	ErrProfileNotFound          = errors.New("profile setup incomplete")
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrEmptyQuery               = errors.New("query is required")
	ErrEmptyJustification       = errors.New("justification is required")
	ErrPersistenceFailure       = errors.New("failed to save, please retry")
	ErrConcurrentAppealConflict = errors.New("appeal round conflict, reload the conversation and retry")
	ErrConversationNotFound     = errors.New("conversation not found")
	ErrInvalidTransition        = errors.New("invalid workflow transition")
	ErrAppealNotAllowed         = errors.New("only rejected decisions can be appealed")
)
