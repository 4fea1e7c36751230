package handlers

import (
	"net/http"
	"strconv"
	"time"

	"fincil-server/src/analytics"
	"fincil-server/src/middleware"
	"fincil-server/src/models"
)

const maxAnalyticsDays = 366

// windowTransactions loads every transaction dated within the last ?days
// (default 30).
func windowTransactions(w http.ResponseWriter, r *http.Request, store Store) ([]models.Transaction, int, bool) {
	userID, log, ok := requireUser(w, r)
	if !ok {
		return nil, 0, false
	}
	days := analytics.DefaultDays
	if s := r.URL.Query().Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxAnalyticsDays {
			middleware.WriteError(w, http.StatusBadRequest, "days must be between 1 and 366")
			return nil, 0, false
		}
		days = n
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	txns, err := store.ListTransactions(r.Context(), userID, models.TransactionFilter{Since: &since})
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Failed to load transactions for analytics")
		middleware.WriteError(w, http.StatusInternalServerError, "failed to load transactions")
		return nil, 0, false
	}
	return txns, days, true
}

func GetSpendingSummary(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		txns, days, ok := windowTransactions(w, r, store)
		if !ok {
			return
		}
		middleware.WriteJSON(w, http.StatusOK, analytics.Summarize(txns, days))
	}
}

func GetCategoryBreakdown(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		txns, _, ok := windowTransactions(w, r, store)
		if !ok {
			return
		}
		middleware.WriteJSON(w, http.StatusOK, analytics.Categories(txns))
	}
}

func GetSpendingTrends(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		period, err := analytics.ParsePeriod(r.URL.Query().Get("period"))
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		txns, _, ok := windowTransactions(w, r, store)
		if !ok {
			return
		}
		middleware.WriteJSON(w, http.StatusOK, analytics.Trends(txns, period))
	}
}
