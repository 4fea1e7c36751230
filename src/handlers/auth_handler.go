package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"fincil-server/src/db"
	"fincil-server/src/logger"
	"fincil-server/src/middleware"
	"fincil-server/src/models"
	"fincil-server/src/util"

	"golang.org/x/crypto/bcrypt"
)

func Register(store Store, jwtSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var req models.RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Error().Err(err).Msg("Failed to decode register request body")
			middleware.WriteError(w, http.StatusBadRequest, "invalid request")
			return
		}

		req.Email = strings.TrimSpace(req.Email)
		req.Username = strings.TrimSpace(req.Username)

		if !util.ValidateEmail(req.Email) {
			log.Error().Str("email", req.Email).Msg("Email validation failed during registration")
			middleware.WriteError(w, http.StatusBadRequest, "invalid email format")
			return
		}
		if !util.ValidateUsername(req.Username) {
			log.Error().Str("username", req.Username).Msg("Username validation failed during registration")
			middleware.WriteError(w, http.StatusBadRequest, "username must be between 3 and 30 characters")
			return
		}
		if !util.ValidatePassword(req.Password) {
			log.Error().Str("username", req.Username).Msg("Password validation failed during registration")
			middleware.WriteError(w, http.StatusBadRequest, "password must be at least 8 characters with uppercase, lowercase, digit, and special character")
			return
		}

		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Error().Err(err).Str("username", req.Username).Msg("Failed to hash password")
			middleware.WriteError(w, http.StatusInternalServerError, "internal error")
			return
		}

		user, err := store.CreateUser(r.Context(), req, string(hashedPassword))
		if errors.Is(err, db.ErrDuplicate) {
			log.Error().Str("email", req.Email).Str("username", req.Username).Msg("Registration failed, email or username already exists")
			middleware.WriteError(w, http.StatusConflict, "email or username already exists")
			return
		}
		if err != nil {
			log.Error().Err(err).Str("username", req.Username).Msg("Failed to create user")
			middleware.WriteError(w, http.StatusInternalServerError, "internal error")
			return
		}

		log.Info().Str("username", user.Username).Int64("user_id", user.ID).Msg("Successful registration")

		tokenString, err := middleware.IssueToken(jwtSecret, user, time.Now())
		if err != nil {
			log.Error().Err(err).Str("username", user.Username).Msg("Failed to generate JWT token")
			middleware.WriteError(w, http.StatusInternalServerError, "Error generating token")
			return
		}
		middleware.WriteJSON(w, http.StatusCreated, map[string]string{"token": tokenString})
	}
}

func Login(store Store, jwtSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var credentials struct {
			UsernameOrEmail string `json:"username"`
			Password        string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
			log.Error().Err(err).Msg("Failed to decode login request body")
			middleware.WriteError(w, http.StatusBadRequest, "invalid request")
			return
		}

		login := strings.TrimSpace(credentials.UsernameOrEmail)
		user, err := store.GetUserByLogin(r.Context(), login)
		if err != nil {
			if !errors.Is(err, db.ErrNotFound) {
				log.Error().Err(err).Str("login", login).Msg("Failed to look up user during login")
				middleware.WriteError(w, http.StatusInternalServerError, "internal error")
				return
			}
			log.Error().Str("login", login).Msg("Failed to find user during login")
			middleware.WriteError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(credentials.Password)); err != nil {
			log.Error().Str("login", login).Str("remote_addr", r.RemoteAddr).Msg("Invalid password attempt")
			middleware.WriteError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		tokenString, err := middleware.IssueToken(jwtSecret, user, time.Now())
		if err != nil {
			log.Error().Err(err).Str("username", user.Username).Msg("Failed to generate JWT token")
			middleware.WriteError(w, http.StatusInternalServerError, "Error generating token")
			return
		}

		if err := store.UpdateUserLastLogin(r.Context(), user.ID); err != nil {
			log.Error().Err(err).Str("username", user.Username).Msg("Failed to update last_login")
		}

		log.Info().Str("username", user.Username).Int64("user_id", user.ID).Msg("Successful login")
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"token": tokenString})
	}
}
