package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"fincil-server/src/middleware"
	"fincil-server/src/models"
	"fincil-server/src/rules"
	"fincil-server/src/util"

	"github.com/google/uuid"
)

const (
	defaultTransactionLimit = 50
	maxTransactionLimit     = 500
	maxImportSize           = 1000
	uncategorized           = "uncategorized"
)

type importRow struct {
	Amount      float64    `json:"amount"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Date        *time.Time `json:"date"`
}

func parseTransactionFilter(r *http.Request) (models.TransactionFilter, error) {
	q := r.URL.Query()
	f := models.TransactionFilter{Limit: defaultTransactionLimit, Category: q.Get("category")}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxTransactionLimit {
			return f, fmt.Errorf("limit must be between 1 and %d", maxTransactionLimit)
		}
		f.Limit = n
	}
	switch src := models.TransactionSource(q.Get("source")); src {
	case "", models.SourceUploaded, models.SourceLogged:
		f.Source = src
	default:
		return f, errors.New("source must be uploaded or logged")
	}
	return f, nil
}

func GetTransactions(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, log, ok := requireUser(w, r)
		if !ok {
			return
		}
		f, err := parseTransactionFilter(r)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		txns, err := store.ListTransactions(r.Context(), userID, f)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to list transactions")
			middleware.WriteError(w, http.StatusInternalServerError, "failed to get transactions")
			return
		}
		middleware.WriteJSON(w, http.StatusOK, txns)
	}
}

// ImportTransactions stores a batch of uploaded transactions in one database
// transaction. Rows without a category are categorized by the user's rules.
func ImportTransactions(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, log, ok := requireUser(w, r)
		if !ok {
			return
		}

		var req struct {
			Transactions []importRow `json:"transactions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to decode import request body")
			middleware.WriteError(w, http.StatusBadRequest, "invalid request")
			return
		}
		if len(req.Transactions) == 0 || len(req.Transactions) > maxImportSize {
			middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("import between 1 and %d transactions", maxImportSize))
			return
		}

		now := time.Now().UTC()
		txns := make([]models.Transaction, 0, len(req.Transactions))
		for i, row := range req.Transactions {
			t := models.Transaction{
				ID:          uuid.NewString(),
				UserID:      userID,
				Amount:      row.Amount,
				Description: row.Description,
				Category:    row.Category,
				Source:      models.SourceUploaded,
				Date:        now,
				CreatedAt:   now,
			}
			if row.Date != nil {
				t.Date = row.Date.UTC()
			}
			if err := util.ValidateImportedTransaction(&t); err != nil {
				middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("transaction %d: %v", i, err))
				return
			}
			txns = append(txns, t)
		}

		userRules, err := store.ListTransactionRules(r.Context(), userID)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to fetch transaction rules")
			middleware.WriteError(w, http.StatusInternalServerError, "failed to import transactions")
			return
		}
		categorized := rules.Categorize(userRules, txns)
		for i := range txns {
			if txns[i].Category == "" {
				txns[i].Category = uncategorized
			}
		}

		if err := store.ImportTransactions(r.Context(), txns); err != nil {
			log.Error().Err(err).Int64("user_id", userID).Int("count", len(txns)).Msg("Failed to import transactions")
			middleware.WriteError(w, http.StatusInternalServerError, "failed to import transactions")
			return
		}

		log.Info().Int64("user_id", userID).Int("count", len(txns)).Int("categorized", categorized).Msg("Imported transactions")
		middleware.WriteJSON(w, http.StatusCreated, map[string]int{
			"imported":    len(txns),
			"categorized": categorized,
		})
	}
}
