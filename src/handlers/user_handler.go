package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"fincil-server/src/db"
	"fincil-server/src/middleware"
	"fincil-server/src/util"

	"golang.org/x/crypto/bcrypt"
)

// GetCurrentUser returns the authenticated account.
func GetCurrentUser(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, log, ok := requireUser(w, r)
		if !ok {
			return
		}
		user, err := store.GetUserByID(r.Context(), userID)
		if errors.Is(err, db.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "user not found")
			return
		}
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to get user")
			middleware.WriteError(w, http.StatusInternalServerError, "internal error")
			return
		}
		middleware.WriteJSON(w, http.StatusOK, user)
	}
}

func ChangePassword(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, log, ok := requireUser(w, r)
		if !ok {
			return
		}

		var req struct {
			CurrentPassword string `json:"current_password"`
			NewPassword     string `json:"new_password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to decode change password request body")
			middleware.WriteError(w, http.StatusBadRequest, "invalid request")
			return
		}

		user, err := store.GetUserByID(r.Context(), userID)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to get user for password change")
			middleware.WriteError(w, http.StatusNotFound, "user not found")
			return
		}
		if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(req.CurrentPassword)); err != nil {
			log.Warn().Int64("user_id", userID).Msg("Invalid current password attempt")
			middleware.WriteError(w, http.StatusUnauthorized, "current password is incorrect")
			return
		}
		if !util.ValidatePassword(req.NewPassword) {
			middleware.WriteError(w, http.StatusBadRequest, "password must be at least 8 characters with uppercase, lowercase, digit, and special character")
			return
		}

		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to hash new password")
			middleware.WriteError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if err := store.UpdateUserPassword(r.Context(), userID, string(hashedPassword)); err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("Failed to update user password")
			middleware.WriteError(w, http.StatusInternalServerError, "internal error")
			return
		}

		log.Info().Int64("user_id", userID).Msg("User password changed")
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"message": "password changed successfully"})
	}
}
