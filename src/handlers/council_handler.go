package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"fincil-server/src/middleware"
	"fincil-server/src/models"
	"fincil-server/src/workflow"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Council is the decision workflow as the HTTP layer sees it.
type Council interface {
	SubmitQuery(ctx context.Context, req workflow.SubmitQueryRequest) (workflow.SubmitQueryResult, error)
	SubmitAppeal(ctx context.Context, req workflow.SubmitAppealRequest) (workflow.SubmitAppealResult, error)
	Buy(ctx context.Context, conversationID string, userID int64) (workflow.BuyResult, error)
	Save(ctx context.Context, conversationID string, userID int64) error
	GetConversation(ctx context.Context, conversationID string, userID int64) (workflow.ConversationDetail, error)
	ListConversations(ctx context.Context, userID int64) ([]models.Conversation, error)
	ListAppealRounds(ctx context.Context, conversationID string, userID int64) ([]models.AppealRound, error)
}

var workflowErrors = []struct {
	err    error
	status int
}{
	{workflow.ErrProfileNotFound, http.StatusNotFound},
	{workflow.ErrConversationNotFound, http.StatusNotFound},
	{workflow.ErrInvalidAmount, http.StatusBadRequest},
	{workflow.ErrEmptyQuery, http.StatusBadRequest},
	{workflow.ErrEmptyJustification, http.StatusBadRequest},
	{workflow.ErrConcurrentAppealConflict, http.StatusConflict},
	{workflow.ErrAppealNotAllowed, http.StatusConflict},
	{workflow.ErrInvalidTransition, http.StatusConflict},
	{workflow.ErrPersistenceFailure, http.StatusServiceUnavailable},
}

// writeWorkflowError maps a workflow sentinel to its status and message.
// Anything unrecognized is a 500.
func writeWorkflowError(w http.ResponseWriter, log zerolog.Logger, userID int64, op string, err error) {
	for _, e := range workflowErrors {
		if errors.Is(err, e.err) {
			if e.status >= http.StatusInternalServerError {
				log.Error().Err(err).Int64("user_id", userID).Str("operation", op).Msg("Council operation failed")
			}
			middleware.WriteError(w, e.status, e.err.Error())
			return
		}
	}
	log.Error().Err(err).Int64("user_id", userID).Str("operation", op).Msg("Council operation failed")
	middleware.WriteError(w, http.StatusInternalServerError, "internal error")
}

func SubmitQuery(council Council) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, log, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req struct {
			Query  string   `json:"query"`
			Amount *float64 `json:"amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to decode council query body")
			middleware.WriteError(w, http.StatusBadRequest, "invalid request")
			return
		}
		res, err := council.SubmitQuery(r.Context(), workflow.SubmitQueryRequest{
			UserID: userID,
			Query:  req.Query,
			Amount: req.Amount,
		})
		if err != nil {
			writeWorkflowError(w, log, userID, "submit_query", err)
			return
		}
		middleware.WriteJSON(w, http.StatusCreated, res)
	}
}

func SubmitAppeal(council Council) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, log, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req struct {
			OriginalQuery string   `json:"original_query"`
			Amount        *float64 `json:"amount"`
			Justification string   `json:"justification"`
			AppealRound   int      `json:"appeal_round"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to decode appeal body")
			middleware.WriteError(w, http.StatusBadRequest, "invalid request")
			return
		}
		if req.AppealRound < 0 {
			middleware.WriteError(w, http.StatusBadRequest, "appeal_round must be positive")
			return
		}
		res, err := council.SubmitAppeal(r.Context(), workflow.SubmitAppealRequest{
			ConversationID: chi.URLParam(r, "conversation_id"),
			UserID:         userID,
			OriginalQuery:  req.OriginalQuery,
			Amount:         req.Amount,
			Justification:  req.Justification,
			AppealRound:    req.AppealRound,
		})
		if err != nil {
			writeWorkflowError(w, log, userID, "submit_appeal", err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, res)
	}
}

func BuyDecision(council Council) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, log, ok := requireUser(w, r)
		if !ok {
			return
		}
		res, err := council.Buy(r.Context(), chi.URLParam(r, "conversation_id"), userID)
		if err != nil {
			writeWorkflowError(w, log, userID, "buy", err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, res)
	}
}

func SaveDecision(council Council) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, log, ok := requireUser(w, r)
		if !ok {
			return
		}
		conversationID := chi.URLParam(r, "conversation_id")
		if err := council.Save(r.Context(), conversationID, userID); err != nil {
			writeWorkflowError(w, log, userID, "save", err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"conversation_id": conversationID,
			"state":           string(models.StateSaved),
		})
	}
}

func GetConversation(council Council) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, log, ok := requireUser(w, r)
		if !ok {
			return
		}
		detail, err := council.GetConversation(r.Context(), chi.URLParam(r, "conversation_id"), userID)
		if err != nil {
			writeWorkflowError(w, log, userID, "get_conversation", err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, detail)
	}
}

func ListConversations(council Council) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, log, ok := requireUser(w, r)
		if !ok {
			return
		}
		convs, err := council.ListConversations(r.Context(), userID)
		if err != nil {
			writeWorkflowError(w, log, userID, "list_conversations", err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, convs)
	}
}

func ListAppealRounds(council Council) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, log, ok := requireUser(w, r)
		if !ok {
			return
		}
		rounds, err := council.ListAppealRounds(r.Context(), chi.URLParam(r, "conversation_id"), userID)
		if err != nil {
			writeWorkflowError(w, log, userID, "list_appeal_rounds", err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, rounds)
	}
}
