package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"fincil-server/src/db"
	"fincil-server/src/middleware"
	"fincil-server/src/models"
	"fincil-server/src/util"
)

type profileRequest struct {
	IncomeType      models.IncomeType    `json:"income_type"`
	RiskTolerance   models.RiskTolerance `json:"risk_tolerance"`
	FinancialGoal   string               `json:"financial_goal"`
	MonthlyIncome   float64              `json:"monthly_income"`
	MonthlyExpenses float64              `json:"monthly_expenses"`
}

func (req profileRequest) profile(userID int64) models.Profile {
	return models.Profile{
		UserID:          userID,
		IncomeType:      req.IncomeType,
		RiskTolerance:   req.RiskTolerance,
		FinancialGoal:   req.FinancialGoal,
		MonthlyIncome:   req.MonthlyIncome,
		MonthlyExpenses: req.MonthlyExpenses,
	}
}

func GetProfile(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, log, ok := requireUser(w, r)
		if !ok {
			return
		}
		profile, err := store.GetProfile(r.Context(), userID)
		if errors.Is(err, db.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "profile setup incomplete")
			return
		}
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to get profile")
			middleware.WriteError(w, http.StatusInternalServerError, "failed to get profile")
			return
		}
		middleware.WriteJSON(w, http.StatusOK, profile)
	}
}

// SaveProfile handles both profile creation (POST) and replacement (PUT).
func SaveProfile(store Store, cache ProfileCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, log, ok := requireUser(w, r)
		if !ok {
			return
		}

		var req profileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to decode profile request body")
			middleware.WriteError(w, http.StatusBadRequest, "invalid request")
			return
		}
		p := req.profile(userID)
		if err := util.ValidateProfile(&p); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		var saved models.Profile
		var err error
		status := http.StatusOK
		if r.Method == http.MethodPost {
			saved, err = store.CreateProfile(r.Context(), p)
			status = http.StatusCreated
		} else {
			saved, err = store.UpdateProfile(r.Context(), p)
		}
		if cache != nil {
			cache.Invalidate(userID)
		}

		switch {
		case errors.Is(err, db.ErrDuplicate):
			middleware.WriteError(w, http.StatusConflict, "profile already exists")
			return
		case errors.Is(err, db.ErrNotFound):
			middleware.WriteError(w, http.StatusNotFound, "profile setup incomplete")
			return
		case err != nil:
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to save profile")
			middleware.WriteError(w, http.StatusInternalServerError, "failed to save profile")
			return
		}

		log.Info().Int64("user_id", userID).Str("method", r.Method).Msg("Saved profile")
		middleware.WriteJSON(w, status, saved)
	}
}
