package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"fincil-server/src/db"
	"fincil-server/src/middleware"
	"fincil-server/src/models"
	"fincil-server/src/rules"

	"github.com/go-chi/chi/v5"
)

func CreateTransactionRule(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, log, ok := requireUser(w, r)
		if !ok {
			return
		}
		var req struct {
			Name       string          `json:"name"`
			Conditions json.RawMessage `json:"conditions"`
			Category   string          `json:"category"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to decode create transaction rule request body")
			middleware.WriteError(w, http.StatusBadRequest, "invalid request")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		req.Category = strings.TrimSpace(req.Category)
		if req.Name == "" || req.Category == "" {
			middleware.WriteError(w, http.StatusBadRequest, "name and category are required")
			return
		}
		if _, err := rules.Parse(req.Conditions); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		created, err := store.CreateTransactionRule(r.Context(), &models.TransactionRule{
			UserID:     userID,
			Name:       req.Name,
			Conditions: req.Conditions,
			Category:   req.Category,
		})
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to create transaction rule")
			middleware.WriteError(w, http.StatusInternalServerError, "failed to create transaction rule")
			return
		}
		log.Info().Int64("rule_id", created.ID).Int64("user_id", userID).Str("name", created.Name).Msg("Created transaction rule")
		middleware.WriteJSON(w, http.StatusCreated, created)
	}
}

func GetAllTransactionRules(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, log, ok := requireUser(w, r)
		if !ok {
			return
		}
		list, err := store.ListTransactionRules(r.Context(), userID)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to get transaction rules")
			middleware.WriteError(w, http.StatusInternalServerError, "failed to get transaction rules")
			return
		}
		middleware.WriteJSON(w, http.StatusOK, list)
	}
}

func UpdateTransactionRule(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, log, ok := requireUser(w, r)
		if !ok {
			return
		}
		ruleID, err := strconv.ParseInt(chi.URLParam(r, "rule_id"), 10, 64)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid rule id")
			return
		}
		var req struct {
			Name       string          `json:"name"`
			Conditions json.RawMessage `json:"conditions"`
			Category   string          `json:"category"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to decode update transaction rule request body")
			middleware.WriteError(w, http.StatusBadRequest, "invalid request")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		req.Category = strings.TrimSpace(req.Category)
		if req.Name == "" || req.Category == "" {
			middleware.WriteError(w, http.StatusBadRequest, "name and category are required")
			return
		}
		if _, err := rules.Parse(req.Conditions); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		updated, err := store.UpdateTransactionRule(r.Context(), &models.TransactionRule{
			ID:         ruleID,
			UserID:     userID,
			Name:       req.Name,
			Conditions: req.Conditions,
			Category:   req.Category,
		})
		if errors.Is(err, db.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "transaction rule not found")
			return
		}
		if err != nil {
			log.Error().Err(err).Int64("rule_id", ruleID).Int64("user_id", userID).Msg("Failed to update transaction rule")
			middleware.WriteError(w, http.StatusInternalServerError, "failed to update transaction rule")
			return
		}
		log.Info().Int64("rule_id", ruleID).Int64("user_id", userID).Msg("Updated transaction rule")
		middleware.WriteJSON(w, http.StatusOK, updated)
	}
}

func DeleteTransactionRule(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, log, ok := requireUser(w, r)
		if !ok {
			return
		}
		ruleIDStr := chi.URLParam(r, "rule_id")
		ruleID, err := strconv.ParseInt(ruleIDStr, 10, 64)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid rule id")
			return
		}
		err = store.DeleteTransactionRule(r.Context(), userID, ruleID)
		if errors.Is(err, db.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "transaction rule not found")
			return
		}
		if err != nil {
			log.Error().Err(err).Int64("rule_id", ruleID).Int64("user_id", userID).Msg("Failed to delete transaction rule")
			middleware.WriteError(w, http.StatusInternalServerError, "failed to delete transaction rule")
			return
		}
		log.Info().Int64("rule_id", ruleID).Int64("user_id", userID).Msg("Deleted transaction rule")
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"message": "transaction rule deleted"})
	}
}
